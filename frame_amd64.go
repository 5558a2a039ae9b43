//go:build amd64

package fibre

import "unsafe"

// Frame is the amd64 register snapshot. Field order is byte-stable:
// frame_amd64.s reads every field purely by offset, so reordering,
// inserting, or retyping a field here requires updating the assembly and
// TestFrameOffsets in lockstep.
//
// Args holds the packed coroutine-entry arguments (spec.md §4.2); restore
// loads Args[0:6] into the first six SysV AMD64 integer argument registers
// (DI, SI, DX, CX, R8, R9) before jumping to PC. The remaining general
// registers are callee-saved; apart from BX, which carries the coroutine's
// self-pointer into entryTrampoline (setSelfPointer), no component reads
// them outside restore and the preemption handler.
type Frame struct {
	// Args are loaded into DI, SI, DX, CX, R8, R9 (in that order) on
	// restore. Slots 6 and 7 have no argument register on amd64 and are
	// not loaded; the full argument blob reaches a typed Entry through
	// argPtr (coroutine.go).
	Args [maxArgs]uint64

	// Callee-saved general-purpose registers, preserved verbatim across a
	// restore so a coroutine resumed mid-preemption sees exactly the
	// values the preemption signal handler captured.
	BX, BP, R12, R13, R14, R15 uint64

	// SP is the stack pointer restore installs before jumping to PC.
	SP uint64
	// PC is the instruction address restore jumps to. It is never
	// returned to by its caller's own RET — a fresh coroutine's initial PC
	// is entryTrampoline (trampoline_amd64.s), whose entryLauncher call
	// ends in Coroutine.finish rather than a return.
	PC uint64
}

// registerCount is the number of architectural general-purpose integer
// registers on amd64 (AX, BX, CX, DX, SI, DI, BP, SP, R8-R15); it exists
// for documentation parity with spec.md §6's REGISTERS_COUNT constant,
// which targets a 31-GPR architecture (see frame_arm64.go).
const registerCount = 16

func (f *Frame) setSP(sp uintptr) { f.SP = uint64(sp) }
func (f *Frame) setPC(pc uintptr) { f.PC = uint64(pc) }

// setSelfPointer stashes a coroutine's own address in BX, a callee-saved
// scratch register no argument slot or restore logic otherwise touches.
// trampoline_amd64.s recovers it from BX on first entry and hands it to
// entryLauncher, which is how a freshly created coroutine learns which
// *Coroutine it is without spending one of the 8 argument registers on it.
func (f *Frame) setSelfPointer(self unsafe.Pointer) { f.BX = uint64(uintptr(self)) }

// offsetOfTail returns the byte offset of the first callee-saved register
// field following Args, for TestFrameOffsets.
func offsetOfTail(f *Frame) uintptr {
	return uintptr(unsafe.Pointer(&f.BX)) - uintptr(unsafe.Pointer(f))
}
