package fibre

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DefaultStackSize is spec.md §6's DEFAULT_STACK_SIZE.
const DefaultStackSize = 16 * 1024

// pageSize is assumed 4 KiB; both amd64 and arm64 Linux default to this
// (arm64 can run with 16/64 KiB pages, but the guard page logic below only
// needs "a multiple of the real page size", and over-reserving by mapping
// one extra 4 KiB-aligned page is harmless on larger-page kernels).
const pageSize = 4096

// stack is the owned byte region backing one coroutine's register frame
// (spec.md §3, C2). It is mmap-backed rather than a Go slice: a
// garbage-collected, movable Go stack cannot be the target of raw SP
// restores performed from assembly, and a GC-scanned slice would have the
// collector walk bytes that are actually machine words belonging to
// whatever the coroutine was doing when preempted.
//
// Layout: [guard page (PROT_NONE)] [usable region, size bytes].
// hi is the usable region's high address — the initial SP handed to the
// coroutine's Frame, since the stack grows downward on both amd64 and
// arm64.
type stack struct {
	mapping []byte // the full mapping, including the guard page
	lo, hi  uintptr
	size    int
}

// newStack maps a fresh stack region of the given size (rounded up to a
// page), with a guard page immediately below it. A fault into the guard
// page (stack overflow) turns into a SIGSEGV instead of silent corruption
// of whatever mapping happens to sit below — the same discipline real
// kernels and hypervisors (e.g. gVisor's sentry) apply to task stacks.
func newStack(size int) (*stack, error) {
	if size <= 0 {
		size = DefaultStackSize
	}
	size = roundUpPage(size)

	total := size + pageSize
	mapping, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("fibre: mmap stack: %w", err)
	}
	if err := unix.Mprotect(mapping[:pageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mapping)
		return nil, fmt.Errorf("fibre: mprotect guard page: %w", err)
	}

	lo := uintptr(addrOf(mapping)) + pageSize
	return &stack{
		mapping: mapping,
		lo:      lo,
		hi:      alignDown16(lo + uintptr(size)),
		size:    size,
	}, nil
}

// free releases the mapping. Invariant (spec.md §3): a stack is owned by
// exactly one coroutine for its lifetime and is freed only when that
// coroutine is destroyed — callers must not call free while the
// coroutine's Frame.SP can still point into this region.
func (s *stack) free() error {
	if s.mapping == nil {
		return nil
	}
	err := unix.Munmap(s.mapping)
	s.mapping = nil
	return err
}

func roundUpPage(n int) int {
	if rem := n % pageSize; rem != 0 {
		n += pageSize - rem
	}
	return n
}

func alignDown16(p uintptr) uintptr {
	return p &^ 15
}
