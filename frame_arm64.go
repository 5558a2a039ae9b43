//go:build arm64

package fibre

import "unsafe"

// Frame is the arm64 register snapshot. Field order is byte-stable:
// frame_arm64.s reads every field purely by offset, so reordering,
// inserting, or retyping a field here requires updating the assembly and
// TestFrameOffsets in lockstep.
//
// Args holds the packed coroutine-entry arguments (spec.md §4.2); restore
// loads Args[0:8] into X0-X7 (the AArch64 PCS integer argument registers)
// before jumping to PC.
type Frame struct {
	// Args are loaded into X0-X7 (in order) on restore.
	Args [maxArgs]uint64

	// Callee-saved general-purpose registers X19-X28, plus the frame
	// pointer X29 and link register X30, preserved verbatim across a
	// restore so a coroutine resumed mid-preemption sees exactly the
	// values the preemption signal handler captured.
	X19, X20, X21, X22, X23, X24, X25, X26, X27, X28, X29, X30 uint64

	// SP is the stack pointer restore installs before jumping to PC.
	SP uint64
	// PC is the instruction address restore jumps to (loaded into the
	// program counter directly, not via BLR through X30 — a fresh
	// coroutine's initial PC is entryTrampoline (trampoline_arm64.s), whose
	// entryLauncher call ends in Coroutine.finish rather than a return).
	PC uint64
}

// registerCount is the number of architectural general-purpose integer
// registers on arm64 (X0-X30); it matches spec.md §6's REGISTERS_COUNT = 31
// exactly.
const registerCount = 31

func (f *Frame) setSP(sp uintptr) { f.SP = uint64(sp) }
func (f *Frame) setPC(pc uintptr) { f.PC = uint64(pc) }

// setSelfPointer stashes a coroutine's own address in X19, a callee-saved
// scratch register no argument slot or restore logic otherwise touches.
// trampoline_arm64.s recovers it from X19 on first entry and hands it to
// entryLauncher, which is how a freshly created coroutine learns which
// *Coroutine it is without spending one of the 8 argument registers on it.
func (f *Frame) setSelfPointer(self unsafe.Pointer) { f.X19 = uint64(uintptr(self)) }

// offsetOfTail returns the byte offset of the first callee-saved register
// field following Args, for TestFrameOffsets.
func offsetOfTail(f *Frame) uintptr {
	return uintptr(unsafe.Pointer(&f.X19)) - uintptr(unsafe.Pointer(f))
}
