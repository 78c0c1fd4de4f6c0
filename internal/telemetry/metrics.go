// Package telemetry declares the prometheus metrics emitted by the ring
// and discovery packages, realizing the "diagnostic channel" that ring
// reads, writes and attach failures and broker traffic report to.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RingErrors counts ring operations that failed, labeled by the
	// taxonomy member returned (e.g. "bad_magic", "attach_failed").
	RingErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shmring_ring_errors_total",
		Help: "Ring operations that returned a non-nil error, by taxonomy kind.",
	}, []string{"kind"})

	// RingMessagesWritten counts successful WriteMessage calls, labeled by
	// ring name.
	RingMessagesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shmring_messages_written_total",
		Help: "Messages successfully enqueued via WriteMessage.",
	}, []string{"ring"})

	// RingMessagesRead counts successful ReadMessage calls, labeled by
	// ring name.
	RingMessagesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shmring_messages_read_total",
		Help: "Messages successfully dequeued via ReadMessage.",
	}, []string{"ring"})

	// RingSlotsUsed is the occupied-slot count (the filled semaphore's
	// value) immediately after the most recent WriteMessage/ReadMessage on
	// a ring, labeled by ring name.
	RingSlotsUsed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shmring_slots_used",
		Help: "Occupied slots in a ring, sampled after the last write or read.",
	}, []string{"ring"})

	// RingSlotsFree is the free-slot count (the free semaphore's value)
	// immediately after the most recent WriteMessage/ReadMessage on a
	// ring, labeled by ring name.
	RingSlotsFree = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shmring_slots_free",
		Help: "Free slots in a ring, sampled after the last write or read.",
	}, []string{"ring"})

	// DiscoveryRegistrations counts REGISTER datagrams processed by the
	// broker.
	DiscoveryRegistrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shmring_discovery_registrations_total",
		Help: "REGISTER datagrams processed by the broker.",
	})

	// DiscoveryDeregistrations counts DEREGISTER datagrams processed by
	// the broker.
	DiscoveryDeregistrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shmring_discovery_deregistrations_total",
		Help: "DEREGISTER datagrams processed by the broker.",
	})

	// DiscoveryNotificationsSent counts PEER datagrams the broker
	// successfully delivered.
	DiscoveryNotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shmring_discovery_notifications_sent_total",
		Help: "PEER datagrams successfully written to a participant's socket.",
	})

	// DiscoveryNotificationsDropped counts PEER datagrams the broker
	// failed to deliver and dropped, per its no-retry failure semantics.
	DiscoveryNotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shmring_discovery_notifications_dropped_total",
		Help: "PEER datagrams dropped because the destination socket was unreachable.",
	})
)
