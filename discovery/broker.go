package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/localipc/shmring/internal/telemetry"
)

// DefaultSocketPath is the well-known filesystem path the broker binds by
// convention, matching the address producers and consumers default to
// when no explicit broker address is configured.
const DefaultSocketPath = "/tmp/ipc_daemon.sock"

// participantRecord is the broker's bookkeeping for one registered client.
type participantRecord struct {
	address  string
	ringName string
}

// Broker is a UNIX-datagram rendezvous point for ring producers and
// consumers. Participants register under a service key; the broker
// exchanges PEER notifications so each learns every other's shared-memory
// ring name without polling.
//
// A Broker has no persistence: the registry lives only as long as the
// process does, which matches the Participant Record lifetime described
// for this system (register until deregister or broker restart).
type Broker struct {
	log *zap.Logger

	mu       sync.Mutex
	registry map[string][]participantRecord // service key -> participants

	conn *net.UnixConn
}

// NewBroker constructs a Broker bound to path. The caller must call Serve
// to begin processing datagrams.
func NewBroker(path string, log *zap.Logger) (*Broker, error) {
	if log == nil {
		log = zap.NewNop()
	}
	os.Remove(path)
	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, fmt.Errorf("discovery: listen %s: %w", path, err)
	}
	return &Broker{
		log:      log,
		registry: make(map[string][]participantRecord),
		conn:     conn,
	}, nil
}

// Serve reads datagrams until ctx is canceled or the socket is closed. It
// never returns an error for a malformed or unsendable datagram — those
// are logged and the registry continues serving the rest of its clients,
// matching the broker's "never blocks on a slow client" failure model.
func (b *Broker) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.conn.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, from, err := b.conn.ReadFromUnix(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("discovery: read: %w", err)
		}
		b.handleDatagram(string(buf[:n]), from)
	}
}

// Close closes the broker's listening socket and removes its path.
func (b *Broker) Close() error {
	path := b.conn.LocalAddr().String()
	err := b.conn.Close()
	os.Remove(path)
	return err
}

func (b *Broker) handleDatagram(s string, from *net.UnixAddr) {
	reg, ok := decodeRegistration(s)
	if !ok {
		b.log.Warn("discovery: unknown command", zap.String("datagram", s))
		return
	}

	switch reg.kind {
	case cmdRegister:
		b.register(reg)
		telemetry.DiscoveryRegistrations.Inc()
	case cmdDeregister:
		b.deregister(reg)
		telemetry.DiscoveryDeregistrations.Inc()
	}
}

// register implements the three-step algorithm: tell the new client about
// every existing peer under its service key, record the new client, then
// tell every pre-existing peer about the new client.
func (b *Broker) register(reg registration) {
	b.mu.Lock()
	existing := append([]participantRecord(nil), b.registry[reg.service]...)
	b.registry[reg.service] = append(b.registry[reg.service], participantRecord{
		address:  reg.address,
		ringName: reg.ringName,
	})
	b.mu.Unlock()

	for _, peer := range existing {
		b.notify(reg.address, peerNotification{
			service:  reg.service,
			address:  peer.address,
			ringName: peer.ringName,
		})
	}
	for _, peer := range existing {
		b.notify(peer.address, peerNotification{
			service:  reg.service,
			address:  reg.address,
			ringName: reg.ringName,
		})
	}
}

// deregister removes the matching record. Notifying peers of departure is
// permitted but not required, and this broker does not do it.
func (b *Broker) deregister(reg registration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	records := b.registry[reg.service]
	for i, p := range records {
		if p.address == reg.address {
			b.registry[reg.service] = append(records[:i], records[i+1:]...)
			return
		}
	}
}

// notify sends a PEER datagram to addr. A failed send is logged and
// dropped: no retry, no registry mutation, per the broker's stated
// failure semantics.
func (b *Broker) notify(addr string, peer peerNotification) {
	raddr := &net.UnixAddr{Name: addr, Net: "unixgram"}
	_, err := b.conn.WriteToUnix([]byte(peer.encode()), raddr)
	if err != nil {
		b.log.Debug("discovery: notify failed, dropping",
			zap.String("address", addr), zap.Error(err))
		telemetry.DiscoveryNotificationsDropped.Inc()
		return
	}
	telemetry.DiscoveryNotificationsSent.Inc()
}
