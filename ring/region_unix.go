//go:build linux

package ring

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// region is a memory-mapped POSIX shared-memory object backing one ring.
type region struct {
	name string
	fd   int
	mem  []byte
}

// shmPath turns a POSIX shared-memory name ("/ipc_demo_1234") into the path
// shm_open would resolve it to on Linux, since this package talks to
// /dev/shm directly via open(2)/mmap(2) rather than calling shm_open(3).
func shmPath(name string) string {
	return "/dev/shm/" + strings.TrimPrefix(shmObjectName(name), "/")
}

// createRegion creates a new shared-memory backed region of the given total
// size, failing if one already exists under name.
func createRegion(name string, size uint64) (*region, error) {
	path := shmPath(name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0666)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrRegionOpenFailed, path, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("%w: ftruncate %s: %v", ErrRegionOpenFailed, path, err)
	}
	mem, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrRegionOpenFailed, path, err)
	}
	return &region{name: name, fd: fd, mem: mem}, nil
}

// openRegion opens an existing region and maps it at its current size. The
// caller validates the header and checks the mapping against the size
// implied by slot_count/slot_size once the header has been read.
func openRegion(name string) (*region, error) {
	path := shmPath(name)
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrRegionOpenFailed, path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: fstat %s: %v", ErrRegionOpenFailed, path, err)
	}
	if uint64(st.Size) < headerSize {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrRegionTooSmall, path, st.Size)
	}
	mem, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrRegionOpenFailed, path, err)
	}
	return &region{name: name, fd: fd, mem: mem}, nil
}

// remap re-maps the region at a larger size once the header has revealed
// the true slot geometry the owner created it with.
func (r *region) remap(size uint64) error {
	if err := unix.Munmap(r.mem); err != nil {
		return fmt.Errorf("munmap %s: %w", r.name, err)
	}
	mem, err := unix.Mmap(r.fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap %s: %w", r.name, err)
	}
	r.mem = mem
	return nil
}

// close unmaps and closes this process's handle without unlinking the
// backing object from the filesystem.
func (r *region) close() error {
	var errs []error
	if r.mem != nil {
		if err := unix.Munmap(r.mem); err != nil {
			errs = append(errs, err)
		}
		r.mem = nil
	}
	if err := unix.Close(r.fd); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close region %s: %v", r.name, errs)
	}
	return nil
}

// unlinkRegion removes a region's shared-memory object from the filesystem.
func unlinkRegion(name string) error {
	return unix.Unlink(shmPath(name))
}
