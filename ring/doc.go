// Package ring implements a single-producer/multi-consumer shared-memory
// ring buffer for local inter-process communication.
//
// A ring is a fixed-size header followed by N equal-sized, length-prefixed
// slots, mapped into every participating process's address space at the
// same kernel object. Exactly one process — the owner — creates the
// region and its three named POSIX semaphores (free, filled, mutex); every
// other process attaches to the existing region and adopts the slot
// geometry recorded in the header.
//
// WriteMessage and ReadMessage block on the free/filled semaphores and
// serialize header mutation under mutex, giving FIFO delivery across a
// single writer and safe concurrent reads across any number of readers.
package ring
