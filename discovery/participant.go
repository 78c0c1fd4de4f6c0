package discovery

import (
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"
)

// peerChanCapacity bounds how many undelivered PEER notifications a
// Participant buffers before Peers() backs up; a slow consumer of the
// channel does not block the goroutine reading the socket beyond this.
const peerChanCapacity = 32

// Participant is the client side of the discovery protocol: it binds its
// own socket, registers with the broker on construction, and feeds
// decoded peer notifications to a channel as they arrive. Deregistering
// and removing its own socket file are the caller's responsibility via
// Close, mirroring the adapter's stated ownership of the socket file.
type Participant struct {
	log *zap.Logger

	conn       *net.UnixConn
	socketPath string
	brokerAddr *net.UnixAddr

	service  string
	ringName string

	peers chan PeerNotification
	done  chan struct{}
}

// ParticipantOptions configures NewParticipant.
type ParticipantOptions struct {
	// SocketPath is the filesystem path this participant binds its own
	// datagram socket to. Callers typically derive this from their own
	// process ID to avoid collisions between concurrent producers or
	// consumers on the same host.
	SocketPath string

	// BrokerPath is the broker's listening socket path.
	BrokerPath string

	// ServiceKey is the symbolic rendezvous key.
	ServiceKey string

	// RingName is this participant's own shared-memory ring name, or ""
	// for a participant that has none to advertise (e.g. a consumer).
	RingName string

	Log *zap.Logger
}

// NewParticipant binds a socket at opts.SocketPath, sends a REGISTER
// datagram to the broker at opts.BrokerPath, and starts a goroutine that
// decodes incoming PEER datagrams onto the channel returned by Peers.
func NewParticipant(opts ParticipantOptions) (*Participant, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	os.Remove(opts.SocketPath)
	laddr := &net.UnixAddr{Name: opts.SocketPath, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", laddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: bind %s: %w", opts.SocketPath, err)
	}

	ringName := opts.RingName
	if ringName == "" {
		ringName = noRing
	}

	p := &Participant{
		log:        log,
		conn:       conn,
		socketPath: opts.SocketPath,
		brokerAddr: &net.UnixAddr{Name: opts.BrokerPath, Net: "unixgram"},
		service:    opts.ServiceKey,
		ringName:   ringName,
		peers:      make(chan PeerNotification, peerChanCapacity),
		done:       make(chan struct{}),
	}

	reg := registration{kind: cmdRegister, service: p.service, address: p.socketPath, ringName: p.ringName}
	if _, err := conn.WriteToUnix([]byte(reg.encode()), p.brokerAddr); err != nil {
		conn.Close()
		os.Remove(opts.SocketPath)
		return nil, fmt.Errorf("discovery: register: %w", err)
	}

	go p.readLoop()
	return p, nil
}

// Peers returns the channel of decoded PEER notifications. It is closed
// once the participant's socket is closed.
func (p *Participant) Peers() <-chan PeerNotification {
	return p.peers
}

func (p *Participant) readLoop() {
	defer close(p.peers)
	buf := make([]byte, 4096)
	for {
		n, err := p.conn.Read(buf)
		if err != nil {
			return
		}
		peer, ok := decodePeer(string(buf[:n]))
		if !ok {
			p.log.Warn("discovery: unexpected datagram", zap.String("datagram", string(buf[:n])))
			continue
		}
		select {
		case p.peers <- peer:
		case <-p.done:
			return
		}
	}
}

// Close sends a DEREGISTER datagram, closes this participant's socket,
// stops its read goroutine, and removes its socket file, matching the
// adapter's ownership of that file.
func (p *Participant) Close() error {
	dereg := registration{kind: cmdDeregister, service: p.service, address: p.socketPath, ringName: p.ringName}
	p.conn.WriteToUnix([]byte(dereg.encode()), p.brokerAddr)

	close(p.done)
	err := p.conn.Close()
	os.Remove(p.socketPath)
	return err
}
