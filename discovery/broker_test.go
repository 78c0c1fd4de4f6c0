package discovery

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func testBrokerPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "broker.sock")
}

func testClientPath(t *testing.T, name string) string {
	return filepath.Join(t.TempDir(), fmt.Sprintf("%s.sock", name))
}

func startBroker(t *testing.T, path string) *Broker {
	t.Helper()
	b, err := NewBroker(path, nil)
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go b.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		b.Close()
	})
	return b
}

func recvPeer(t *testing.T, p *Participant) PeerNotification {
	t.Helper()
	select {
	case peer, ok := <-p.Peers():
		if !ok {
			t.Fatal("Peers() channel closed before delivering a notification")
		}
		return peer
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a PEER notification")
		return PeerNotification{}
	}
}

func TestRegisterRendezvous(t *testing.T) {
	brokerPath := testBrokerPath(t)
	startBroker(t, brokerPath)

	producer, err := NewParticipant(ParticipantOptions{
		SocketPath: testClientPath(t, "producer"),
		BrokerPath: brokerPath,
		ServiceKey: "demo",
		RingName:   "/r1",
	})
	if err != nil {
		t.Fatalf("producer NewParticipant: %v", err)
	}
	defer producer.Close()

	consumer, err := NewParticipant(ParticipantOptions{
		SocketPath: testClientPath(t, "consumer"),
		BrokerPath: brokerPath,
		ServiceKey: "demo",
	})
	if err != nil {
		t.Fatalf("consumer NewParticipant: %v", err)
	}
	defer consumer.Close()

	peer := recvPeer(t, consumer)
	if peer.ServiceKey != "demo" || peer.RingName != "/r1" {
		t.Fatalf("consumer got %+v, want ring /r1 under demo", peer)
	}

	peer = recvPeer(t, producer)
	if peer.ServiceKey != "demo" || peer.HasRing() {
		t.Fatalf("producer got %+v, want ringless peer", peer)
	}
}

func TestForwardsToEarlierJoiners(t *testing.T) {
	brokerPath := testBrokerPath(t)
	startBroker(t, brokerPath)

	producer, err := NewParticipant(ParticipantOptions{
		SocketPath: testClientPath(t, "producer"),
		BrokerPath: brokerPath,
		ServiceKey: "demo",
		RingName:   "/r1",
	})
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	defer producer.Close()

	a, err := NewParticipant(ParticipantOptions{
		SocketPath: testClientPath(t, "a"),
		BrokerPath: brokerPath,
		ServiceKey: "demo",
	})
	if err != nil {
		t.Fatalf("consumer a: %v", err)
	}
	defer a.Close()
	recvPeer(t, a)        // producer's peer record
	recvPeer(t, producer) // a's peer record

	b, err := NewParticipant(ParticipantOptions{
		SocketPath: testClientPath(t, "b"),
		BrokerPath: brokerPath,
		ServiceKey: "demo",
	})
	if err != nil {
		t.Fatalf("consumer b: %v", err)
	}
	defer b.Close()

	recvPeer(t, b) // producer's peer record
	recvPeer(t, b) // a's peer record

	recvPeer(t, a) // b's peer record, forwarded to the earlier joiner

	pPeer := recvPeer(t, producer) // b's peer record, forwarded to the producer
	if pPeer.ServiceKey != "demo" {
		t.Fatalf("producer got %+v, want demo service", pPeer)
	}
}

func TestDeregisterRemovesRecord(t *testing.T) {
	brokerPath := testBrokerPath(t)
	b := startBroker(t, brokerPath)

	producer, err := NewParticipant(ParticipantOptions{
		SocketPath: testClientPath(t, "producer"),
		BrokerPath: brokerPath,
		ServiceKey: "demo",
		RingName:   "/r1",
	})
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	producer.Close()

	time.Sleep(50 * time.Millisecond)
	b.mu.Lock()
	records := b.registry["demo"]
	b.mu.Unlock()
	if len(records) != 0 {
		t.Fatalf("registry after deregister = %+v, want empty", records)
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	brokerPath := testBrokerPath(t)
	b := startBroker(t, brokerPath)

	clientPath := testClientPath(t, "garbage")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: clientPath, Net: "unixgram"})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	_, err = conn.WriteToUnix([]byte("NOT A VALID COMMAND HERE"), &net.UnixAddr{Name: brokerPath, Net: "unixgram"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	b.mu.Lock()
	n := len(b.registry)
	b.mu.Unlock()
	if n != 0 {
		t.Fatalf("registry mutated by unknown command: %+v", b.registry)
	}
}
