package heap

import "unsafe"

// sliceAddr returns the address of the first byte backing data, or 0
// for an empty slice. Used only for diagnostics (PageRange.Addr); the
// allocator never does pointer arithmetic on it.
func sliceAddr(data []byte) uintptr {
	if len(data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&data[0]))
}
