package fibre

import (
	"sync/atomic"
	"unsafe"
)

// addrOf returns the address of a byte slice's backing array. The slice
// must be non-empty and must not move — true for mmap-backed stacks
// (stack.go), which are never grown or copied by the Go runtime.
func addrOf(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}

func atomicStorePointer(addr *unsafe.Pointer, val unsafe.Pointer) {
	atomic.StorePointer(addr, val)
}

func atomicSwapPointer(addr *unsafe.Pointer, val unsafe.Pointer) unsafe.Pointer {
	return atomic.SwapPointer(addr, val)
}

// uintptrToPointer converts a raw address back into an unsafe.Pointer.
// Used only for addresses this package itself derived from real mappings
// (stack.go's mmap regions), never for arbitrary integers.
func uintptrToPointer(p uintptr) unsafe.Pointer {
	return unsafe.Pointer(p)
}
