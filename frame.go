package fibre

import "unsafe"

// Frame is the opaque, fixed-layout register snapshot described in
// spec.md §3 ("Register frame (C1)"). Its concrete field set is
// architecture-specific (frame_amd64.go, frame_arm64.go); this file only
// holds the parts every architecture shares.
//
// Individual Frame fields are written only by the per-arch setters
// (frame_amd64.go, frame_arm64.go), packArgs (argpack.go) and the
// preemption handlers (signal_linux_*.go), and loaded only by the per-arch
// restoreFrame primitive — per spec.md §4.1, restore is the sole mechanism
// transferring control between the scheduler coroutine and a user
// coroutine.

// restoreFrame loads every register described by frame from memory and
// resumes execution at frame.PC with frame.SP as the active stack. It
// never returns to its caller: control leaves through frame.PC instead.
//
// This is the one leaf the spec places out of core scope (spec.md §1,
// §4.1): "[it] does not save the caller's context... is the sole mechanism
// by which the runtime transfers control". restoreFrame is implemented in
// frame_amd64.s / frame_arm64.s.
//
//go:noescape
func restoreFrame(frame *Frame)

// maxArgs is the largest number of coroutine-entry arguments the calling
// convention supports (spec.md §3, §4.2).
const maxArgs = 8

// entryTrampoline is the fixed landing point installed as frame.PC for
// every freshly created coroutine (coroutine.go's create). It recovers the
// self-pointer create() stashed in the frame's spare callee-saved register
// (setSelfPointer, below) and calls entryLauncher with it, giving the
// Go side a typed argument instead of a bare register. Implemented in
// trampoline_amd64.s / trampoline_arm64.s.
func entryTrampoline()

func funcPC(f func()) uintptr {
	return **(**uintptr)(unsafe.Pointer(&f))
}

// entryTrampolinePC returns the code address of entryTrampoline, for
// installing into a fresh Frame's PC field.
func entryTrampolinePC() uintptr {
	return funcPC(entryTrampoline)
}
