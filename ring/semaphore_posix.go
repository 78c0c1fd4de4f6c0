//go:build linux

package ring

/*
#cgo LDFLAGS: -lpthread

#include <semaphore.h>
#include <fcntl.h>
#include <errno.h>
#include <stdlib.h>

static sem_t *shmring_sem_create(const char *name, unsigned int value, int *errnum) {
	sem_t *s = sem_open(name, O_CREAT | O_EXCL, 0666, value);
	*errnum = (s == SEM_FAILED) ? errno : 0;
	return (s == SEM_FAILED) ? NULL : s;
}

static sem_t *shmring_sem_open(const char *name, int *errnum) {
	sem_t *s = sem_open(name, 0);
	*errnum = (s == SEM_FAILED) ? errno : 0;
	return (s == SEM_FAILED) ? NULL : s;
}

static int shmring_sem_wait(sem_t *s) {
	int r;
	do {
		r = sem_wait(s);
	} while (r == -1 && errno == EINTR);
	return r == -1 ? errno : 0;
}

static int shmring_sem_post(sem_t *s) {
	return sem_post(s) == -1 ? errno : 0;
}

static int shmring_sem_close(sem_t *s) {
	return sem_close(s) == -1 ? errno : 0;
}

static int shmring_sem_unlink(const char *name) {
	return sem_unlink(name) == -1 ? errno : 0;
}

static int shmring_sem_getvalue(sem_t *s, int *val) {
	return sem_getvalue(s, val) == -1 ? errno : 0;
}
*/
import "C"

import (
	"fmt"
	"syscall"
	"unsafe"
)

// namedSemaphore is a thin handle over a POSIX named semaphore opened via
// sem_open. It has no Go-side state beyond the C pointer and the name it
// was opened under — ownership/unlink bookkeeping lives in Ring.
type namedSemaphore struct {
	name string
	sem  *C.sem_t
}

// createSemaphore creates a new named semaphore with O_CREAT|O_EXCL,
// failing if one already exists under name.
func createSemaphore(name string, initial uint32) (*namedSemaphore, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var errnum C.int
	s := C.shmring_sem_create(cname, C.uint(initial), &errnum)
	if s == nil {
		return nil, fmt.Errorf("sem_open create %s: %w", name, syscall.Errno(errnum))
	}
	return &namedSemaphore{name: name, sem: s}, nil
}

// openSemaphore opens an existing named semaphore. It does not retry; the
// caller (attachSemaphore in ring.go) implements the bounded backoff.
func openSemaphore(name string) (*namedSemaphore, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var errnum C.int
	s := C.shmring_sem_open(cname, &errnum)
	if s == nil {
		return nil, fmt.Errorf("sem_open %s: %w", name, syscall.Errno(errnum))
	}
	return &namedSemaphore{name: name, sem: s}, nil
}

// wait blocks until the semaphore can be decremented. EINTR is retried
// transparently inside the cgo helper, matching spec.md §4.2/§5's
// requirement that signal interruptions never surface to the caller.
func (s *namedSemaphore) wait() error {
	if errnum := C.shmring_sem_wait(s.sem); errnum != 0 {
		return fmt.Errorf("sem_wait %s: %w", s.name, syscall.Errno(errnum))
	}
	return nil
}

// post increments the semaphore, waking at most one waiter.
func (s *namedSemaphore) post() error {
	if errnum := C.shmring_sem_post(s.sem); errnum != 0 {
		return fmt.Errorf("sem_post %s: %w", s.name, syscall.Errno(errnum))
	}
	return nil
}

// value returns the semaphore's current count, for diagnostics and tests.
// Per POSIX, the value of a binary semaphore held by a waiting thread is
// unspecified; callers should only rely on this for the counting pair.
func (s *namedSemaphore) value() (int, error) {
	var v C.int
	if errnum := C.shmring_sem_getvalue(s.sem, &v); errnum != 0 {
		return 0, fmt.Errorf("sem_getvalue %s: %w", s.name, syscall.Errno(errnum))
	}
	return int(v), nil
}

// close closes this process's handle to the semaphore without removing it
// from the kernel namespace.
func (s *namedSemaphore) close() error {
	if s.sem == nil {
		return nil
	}
	errnum := C.shmring_sem_close(s.sem)
	s.sem = nil
	if errnum != 0 {
		return fmt.Errorf("sem_close %s: %w", s.name, syscall.Errno(errnum))
	}
	return nil
}

// unlinkSemaphore removes a semaphore's name from the kernel namespace.
// Only the ring owner ever calls this (Ring.UnlinkResources, and Create's
// cleanup when a later creation step fails).
func unlinkSemaphore(name string) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	if errnum := C.shmring_sem_unlink(cname); errnum != 0 {
		return fmt.Errorf("sem_unlink %s: %w", name, syscall.Errno(errnum))
	}
	return nil
}
