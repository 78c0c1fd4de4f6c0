// Package discovery implements a tiny UNIX-datagram service-discovery
// broker that rendezvous ring producers and consumers by a symbolic
// service key.
//
// A Broker listens on a well-known socket path and maintains, per service
// key, the set of registered participant addresses and the shared-memory
// ring name (if any) each participant advertised. Registering triggers an
// exchange of PEER notifications so every participant learns every other
// participant's ring name without polling.
//
// Participant is the client side of the same protocol: it binds its own
// socket, registers once, and exposes peer notifications as they arrive
// on the channel returned by Peers.
package discovery
