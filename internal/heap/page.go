// Package heap implements the managed heap: page-backed chunk
// reservation, a size-classed block allocator, a huge-object
// allocator, a call-context stack allocator, and the mark-sweep
// collector that ties them together.
package heap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PageRange describes a committed or reserved span of virtual memory.
type PageRange struct {
	Addr uintptr
	Len  int
}

// PageBackend reserves and commits page-aligned virtual memory ranges
// for the chunk allocator. A reservation starts out inaccessible;
// Commit makes a sub-range read/write, Decommit gives the physical
// pages back to the OS without releasing the address range.
type PageBackend struct {
	size int
}

// NewPageBackend returns a backend whose PageSize matches the host.
func NewPageBackend() *PageBackend {
	return &PageBackend{size: unix.Getpagesize()}
}

// PageSize returns the host's page size in bytes.
func (b *PageBackend) PageSize() int { return b.size }

// Reserve reserves at least bytes of address space, rounded up to a
// whole number of pages, and returns it inaccessible (PROT_NONE).
func (b *PageBackend) Reserve(bytes int) (PageRange, []byte, error) {
	n := roundUp(bytes, b.size)
	data, err := unix.Mmap(-1, 0, n, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return PageRange{}, nil, fmt.Errorf("heap: reserve %d bytes: %w", n, err)
	}
	return PageRange{Addr: sliceAddr(data), Len: n}, data, nil
}

// Commit makes the given sub-range of a reservation read/write.
func (b *PageBackend) Commit(data []byte) error {
	if err := unix.Mprotect(data, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("heap: commit %d bytes: %w", len(data), err)
	}
	return nil
}

// Decommit gives the physical pages behind a sub-range back to the OS.
// The address range stays reserved; a later Commit may reuse it.
func (b *PageBackend) Decommit(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Madvise(data, unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("heap: decommit %d bytes: %w", len(data), err)
	}
	if err := unix.Mprotect(data, unix.PROT_NONE); err != nil {
		return fmt.Errorf("heap: reprotect %d bytes: %w", len(data), err)
	}
	return nil
}

// Deallocate releases a reservation back to the OS entirely.
func (b *PageBackend) Deallocate(data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("heap: deallocate %d bytes: %w", len(data), err)
	}
	return nil
}

func roundUp(n, align int) int {
	return (n + align - 1) / align * align
}
