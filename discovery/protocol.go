package discovery

import (
	"fmt"
	"strings"
)

// noRing is the placeholder used in place of a ring name by a participant
// that has none to advertise (a consumer, before it creates nothing).
const noRing = "-"

// commandKind distinguishes the two client-to-broker datagram kinds.
type commandKind string

const (
	cmdRegister   commandKind = "REGISTER"
	cmdDeregister commandKind = "DEREGISTER"
	cmdPeer       commandKind = "PEER"
)

// registration is a decoded REGISTER or DEREGISTER datagram:
// "<KIND> <service_key> <client_address> <ring_name_or_->".
type registration struct {
	kind      commandKind
	service   string
	address   string
	ringName  string // noRing if the sender has none to advertise
}

// encode renders a registration back to wire form.
func (r registration) encode() string {
	return fmt.Sprintf("%s %s %s %s", r.kind, r.service, r.address, r.ringName)
}

// peerNotification is a decoded or to-be-sent PEER datagram:
// "PEER <service_key> <peer_address> <peer_ring_or_->".
type peerNotification struct {
	service  string
	address  string
	ringName string
}

// HasRing reports whether the peer this notification describes has a ring
// to attach to.
func (p peerNotification) HasRing() bool { return p.ringName != noRing }

func (p peerNotification) encode() string {
	return fmt.Sprintf("%s %s %s %s", cmdPeer, p.service, p.address, p.ringName)
}

// PeerNotification is the decoded form of a PEER datagram, as delivered to
// Participant callers on the channel returned by Peers().
type PeerNotification struct {
	ServiceKey string
	Address    string
	RingName   string
}

// HasRing reports whether the peer described by this notification
// advertised a ring name to attach to.
func (p PeerNotification) HasRing() bool { return p.RingName != noRing }

// decodeDatagram splits one received datagram into its command kind and
// the three fields that follow it; decodeRegistration and decodePeer build
// the typed values from those. ok is false for anything that doesn't match
// the known grammar; callers log and ignore such datagrams per the broker's
// unknown-command handling.
func decodeDatagram(s string) (kind commandKind, fields []string, ok bool) {
	parts := strings.Fields(s)
	if len(parts) != 4 {
		return "", nil, false
	}
	switch commandKind(parts[0]) {
	case cmdRegister, cmdDeregister, cmdPeer:
		return commandKind(parts[0]), parts[1:], true
	default:
		return "", nil, false
	}
}

func decodeRegistration(s string) (registration, bool) {
	kind, fields, ok := decodeDatagram(s)
	if !ok || (kind != cmdRegister && kind != cmdDeregister) {
		return registration{}, false
	}
	return registration{kind: kind, service: fields[0], address: fields[1], ringName: fields[2]}, true
}

func decodePeer(s string) (PeerNotification, bool) {
	kind, fields, ok := decodeDatagram(s)
	if !ok || kind != cmdPeer {
		return PeerNotification{}, false
	}
	return PeerNotification{ServiceKey: fields[0], Address: fields[1], RingName: fields[2]}, true
}
