package ring

import "errors"

// Error taxonomy surfaced by this package. Each ring operation wraps one of
// these with call-site context via fmt.Errorf("...: %w", err), so callers
// can still recover the taxonomy member with errors.Is.
var (
	// ErrRegionOpenFailed means the shared-memory region could not be
	// created (already exists, permission denied) or, on attach, could not
	// be opened (missing).
	ErrRegionOpenFailed = errors.New("ring: region open failed")

	// ErrRegionTooSmall means an attached region is shorter than the
	// header, or shorter than the total size implied by the header's own
	// slot_count/slot_size.
	ErrRegionTooSmall = errors.New("ring: region too small")

	// ErrBadMagic means the mapped region's header magic does not match
	// the expected sentinel.
	ErrBadMagic = errors.New("ring: bad magic")

	// ErrAttachFailed means the region or the named semaphore triple did
	// not become available within the attach retry window. When the region
	// is the part that failed, the underlying region error is wrapped too,
	// so errors.Is also matches ErrRegionOpenFailed or ErrRegionTooSmall.
	ErrAttachFailed = errors.New("ring: attach failed")

	// ErrPayloadTooLarge means WriteMessage was called with more bytes
	// than the ring's slot_size.
	ErrPayloadTooLarge = errors.New("ring: payload too large")

	// ErrInternalSynchronizer means a semaphore operation returned an
	// unexpected error that was not a signal interruption.
	ErrInternalSynchronizer = errors.New("ring: internal synchronizer error")
)
