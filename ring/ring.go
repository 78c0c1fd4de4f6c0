package ring

import (
	"fmt"
	"time"

	"github.com/localipc/shmring/internal/telemetry"
)

// AttachRetries and AttachInterval bound how long an attachee waits for
// the owner to finish creating a ring's region and semaphore triple.
// They are package-level variables, not constants, so a process can tune
// them from its own configuration at startup; see internal/config.
var (
	AttachRetries  = 20
	AttachInterval = 100 * time.Millisecond
)

// Ring is a handle to a shared-memory ring buffer: one process is its
// owner (the process that called Create) and any number of other
// processes may be attachees (processes that called Attach).
//
// Exactly one process should write to a given ring (WriteMessage); any
// number may read from it concurrently (ReadMessage) — readers compete for
// the same messages rather than each seeing every message, matching a
// single logical consumer group, not a broadcast fan-out.
type Ring struct {
	name      string
	owner     bool
	region    *region
	slotCount uint32
	slotSize  uint32

	free   *namedSemaphore
	filled *namedSemaphore
	mutex  *namedSemaphore
}

// Create creates a new ring named name with the given slot geometry. The
// calling process becomes the ring's owner: it is the only process
// permitted to call UnlinkResources, and the only process that should call
// WriteMessage under the single-producer model.
func Create(name string, slotCount, slotSize uint32) (*Ring, error) {
	size := regionSize(slotCount, slotSize)
	reg, err := createRegion(name, size)
	if err != nil {
		return nil, err
	}

	h := headerAt(reg.mem)
	h.SetMagic(ringMagic)
	h.SetVersion(ringVersion)
	h.SetSlotCount(slotCount)
	h.SetSlotSize(slotSize)
	h.SetHead(0)
	h.SetTail(0)
	for i := headerSize; i < len(reg.mem); i++ {
		reg.mem[i] = 0
	}

	free, err := createSemaphore(semaphoreName(name, "free"), slotCount)
	if err != nil {
		reg.close()
		unlinkRegion(name)
		return nil, fmt.Errorf("%w: %v", ErrInternalSynchronizer, err)
	}
	filled, err := createSemaphore(semaphoreName(name, "filled"), 0)
	if err != nil {
		free.close()
		unlinkSemaphore(semaphoreName(name, "free"))
		reg.close()
		unlinkRegion(name)
		return nil, fmt.Errorf("%w: %v", ErrInternalSynchronizer, err)
	}
	mutex, err := createSemaphore(semaphoreName(name, "mutex"), 1)
	if err != nil {
		free.close()
		filled.close()
		unlinkSemaphore(semaphoreName(name, "free"))
		unlinkSemaphore(semaphoreName(name, "filled"))
		reg.close()
		unlinkRegion(name)
		return nil, fmt.Errorf("%w: %v", ErrInternalSynchronizer, err)
	}

	return &Ring{
		name:      name,
		owner:     true,
		region:    reg,
		slotCount: slotCount,
		slotSize:  slotSize,
		free:      free,
		filled:    filled,
		mutex:     mutex,
	}, nil
}

// Attach opens an existing ring named name, retrying for roughly two
// seconds to tolerate the ordinary race where an attachee starts just
// before the owner has finished creating the region and its semaphores.
// The slot_count and slot_size recorded in the region header win over
// anything the caller might expect; Attach has no way to request a
// geometry, since the owner alone decides it at Create time.
func Attach(name string) (*Ring, error) {
	var reg *region
	var err error
	for attempt := 0; attempt < AttachRetries; attempt++ {
		reg, err = openRegion(name)
		if err == nil {
			break
		}
		time.Sleep(AttachInterval)
	}
	if err != nil {
		telemetry.RingErrors.WithLabelValues("attach_failed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrAttachFailed, err)
	}

	h := headerAt(reg.mem)
	if h.Magic() != ringMagic {
		reg.close()
		telemetry.RingErrors.WithLabelValues("bad_magic").Inc()
		return nil, fmt.Errorf("%w: got %#x want %#x", ErrBadMagic, h.Magic(), ringMagic)
	}
	slotCount := h.SlotCount()
	slotSize := h.SlotSize()
	want := regionSize(slotCount, slotSize)
	if uint64(len(reg.mem)) < want {
		reg.close()
		telemetry.RingErrors.WithLabelValues("region_too_small").Inc()
		return nil, fmt.Errorf("%w: %d bytes, header implies %d", ErrRegionTooSmall, len(reg.mem), want)
	}

	free, err := attachSemaphore(semaphoreName(name, "free"))
	if err != nil {
		reg.close()
		return nil, err
	}
	filled, err := attachSemaphore(semaphoreName(name, "filled"))
	if err != nil {
		free.close()
		reg.close()
		return nil, err
	}
	mutex, err := attachSemaphore(semaphoreName(name, "mutex"))
	if err != nil {
		free.close()
		filled.close()
		reg.close()
		return nil, err
	}

	return &Ring{
		name:      name,
		owner:     false,
		region:    reg,
		slotCount: slotCount,
		slotSize:  slotSize,
		free:      free,
		filled:    filled,
		mutex:     mutex,
	}, nil
}

// attachSemaphore opens a named semaphore with the same bounded retry
// window Attach uses for the region itself, since the owner creates the
// region and the three semaphores in separate syscalls and an attachee may
// race any one of them.
func attachSemaphore(name string) (*namedSemaphore, error) {
	var sem *namedSemaphore
	var err error
	for attempt := 0; attempt < AttachRetries; attempt++ {
		sem, err = openSemaphore(name)
		if err == nil {
			return sem, nil
		}
		time.Sleep(AttachInterval)
	}
	return nil, fmt.Errorf("%w: %v", ErrAttachFailed, err)
}

// SlotCount returns the ring's fixed number of slots.
func (r *Ring) SlotCount() uint32 { return r.slotCount }

// SlotSize returns the maximum payload length, in bytes, of one message.
func (r *Ring) SlotSize() uint32 { return r.slotSize }

// Name returns the name the ring was created or attached under.
func (r *Ring) Name() string { return r.name }

// IsOwner reports whether this handle was returned by Create rather than
// Attach.
func (r *Ring) IsOwner() bool { return r.owner }

// WriteMessage enqueues payload as the next message. It blocks until a
// slot is free. Only one process should call WriteMessage on a given ring
// at a time; concurrent writers would interleave slot claims under mutex
// safely, but the ring has no notion of message ownership beyond FIFO
// order, so interleaved writes from independent producers would simply
// merge into one stream.
//
// If len(payload) exceeds SlotSize, WriteMessage returns
// ErrPayloadTooLarge without waiting on the free semaphore, so a
// programming error never consumes ring capacity.
func (r *Ring) WriteMessage(payload []byte) error {
	if uint32(len(payload)) > r.slotSize {
		telemetry.RingErrors.WithLabelValues("payload_too_large").Inc()
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), r.slotSize)
	}

	if err := r.free.wait(); err != nil {
		telemetry.RingErrors.WithLabelValues("internal_synchronizer").Inc()
		return fmt.Errorf("%w: %v", ErrInternalSynchronizer, err)
	}
	if err := r.mutex.wait(); err != nil {
		// free was already acquired above; this does not post it back, so
		// a mutex failure here leaks one free-slot token.
		telemetry.RingErrors.WithLabelValues("internal_synchronizer").Inc()
		return fmt.Errorf("%w: %v", ErrInternalSynchronizer, err)
	}

	h := headerAt(r.region.mem)
	tail := h.Tail()
	slot := slotAt(r.region.mem, tail, r.slotSize)
	slot.setLength(uint32(len(payload)))
	copy(slot.payload, payload)
	h.SetTail((tail + 1) % r.slotCount)

	if err := r.mutex.post(); err != nil {
		telemetry.RingErrors.WithLabelValues("internal_synchronizer").Inc()
		return fmt.Errorf("%w: %v", ErrInternalSynchronizer, err)
	}
	if err := r.filled.post(); err != nil {
		telemetry.RingErrors.WithLabelValues("internal_synchronizer").Inc()
		return fmt.Errorf("%w: %v", ErrInternalSynchronizer, err)
	}
	telemetry.RingMessagesWritten.WithLabelValues(r.name).Inc()
	r.sampleOccupancy()
	return nil
}

// ReadMessage dequeues the next message, blocking until the writer has
// produced one. The returned slice is a fresh copy safe to retain after
// ReadMessage returns; the slot it was copied from may be overwritten by a
// subsequent WriteMessage as soon as this call returns.
func (r *Ring) ReadMessage() ([]byte, error) {
	if err := r.filled.wait(); err != nil {
		telemetry.RingErrors.WithLabelValues("internal_synchronizer").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInternalSynchronizer, err)
	}
	if err := r.mutex.wait(); err != nil {
		// filled was already acquired above; this leaks one filled-slot
		// token on the same class of failure WriteMessage can leak free.
		telemetry.RingErrors.WithLabelValues("internal_synchronizer").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInternalSynchronizer, err)
	}

	h := headerAt(r.region.mem)
	head := h.Head()
	slot := slotAt(r.region.mem, head, r.slotSize)
	n := slot.length()
	payload := make([]byte, n)
	copy(payload, slot.payload[:n])
	h.SetHead((head + 1) % r.slotCount)

	if err := r.mutex.post(); err != nil {
		telemetry.RingErrors.WithLabelValues("internal_synchronizer").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInternalSynchronizer, err)
	}
	if err := r.free.post(); err != nil {
		telemetry.RingErrors.WithLabelValues("internal_synchronizer").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInternalSynchronizer, err)
	}
	telemetry.RingMessagesRead.WithLabelValues(r.name).Inc()
	r.sampleOccupancy()
	return payload, nil
}

// sampleOccupancy publishes the ring's current used/free slot counts to the
// occupancy gauges. It samples free and filled directly with sem_getvalue
// rather than tracking counts in Go, so the reported numbers reflect the
// kernel's view even when other processes are concurrently posting or
// waiting on the same ring. A sampling failure is logged-by-counter and
// otherwise ignored: it is diagnostic, not part of WriteMessage/ReadMessage's
// correctness contract.
func (r *Ring) sampleOccupancy() {
	if used, err := r.filled.value(); err == nil {
		telemetry.RingSlotsUsed.WithLabelValues(r.name).Set(float64(used))
	} else {
		telemetry.RingErrors.WithLabelValues("occupancy_sample").Inc()
	}
	if free, err := r.free.value(); err == nil {
		telemetry.RingSlotsFree.WithLabelValues(r.name).Set(float64(free))
	} else {
		telemetry.RingErrors.WithLabelValues("occupancy_sample").Inc()
	}
}

// Close detaches this handle from the ring: it closes the process's
// semaphore and region mappings but never removes them from the kernel
// namespace, even for the owner. Call UnlinkResources separately, once,
// from the owner, when no process needs the ring anymore.
func (r *Ring) Close() error {
	var errs []error
	if err := r.free.close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.filled.close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.mutex.close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.region.close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ring %s: %v", r.name, errs)
	}
	return nil
}

// UnlinkResources removes the ring's shared-memory object and all three
// semaphores from the kernel namespace. Only the owner may call this; an
// attachee calling it is a no-op that returns nil, mirroring the reference
// implementation's destructor, which never unlinks on behalf of the owner.
//
// UnlinkResources does not call Close; callers typically Close first to
// detach, then UnlinkResources from the owner once all attachees are done.
func (r *Ring) UnlinkResources() error {
	if !r.owner {
		return nil
	}
	var errs []error
	if err := unlinkSemaphore(semaphoreName(r.name, "free")); err != nil {
		errs = append(errs, err)
	}
	if err := unlinkSemaphore(semaphoreName(r.name, "filled")); err != nil {
		errs = append(errs, err)
	}
	if err := unlinkSemaphore(semaphoreName(r.name, "mutex")); err != nil {
		errs = append(errs, err)
	}
	if err := unlinkRegion(r.name); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("unlink ring %s: %v", r.name, errs)
	}
	return nil
}
