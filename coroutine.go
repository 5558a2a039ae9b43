package fibre

import (
	"sync/atomic"
	"unsafe"
)

// Entry is a coroutine body. Per spec.md §6's calling convention, it takes
// and returns a single opaque pointer; argpack.go's packed register
// arguments are how a blob reaches it (argPtr, below) without widening
// this signature per call site.
type Entry func(arg unsafe.Pointer) unsafe.Pointer

// Coroutine is spec.md §3's C3: stack + register frame + state + entry
// function + arguments, plus a diagnostic location string.
//
// Fields below are written either (a) once at creation, before the
// coroutine is ever enqueued, or (b) exclusively by whichever queue/worker
// currently owns it (never concurrently — spec.md §3's ownership
// invariant), with the sole exception of state, which is atomic because
// finish, the preemption handler and Handle.State access it without
// holding the owning queue's mutex (spec.md §5).
type Coroutine struct {
	id       uint64
	location string

	entry Entry
	args  []byte // serialized argument blob, also reachable via argPtr()

	frame Frame
	stk   *stack

	state atomic.Int32

	// retFrame is the frame restoreFrame jumps into when this coroutine
	// finishes (finish, via entryLauncher); the preemption handler
	// restores the same scheduler frame through its worker instead. It
	// is set at dispatch time to the owning worker's scheduler
	// coroutine and never changes afterward, since a coroutine is never
	// transferred between workers once assigned (spec.md §9: no work
	// stealing).
	retFrame *Frame
}

var coroutineIDs atomic.Uint64

// create implements spec.md §4.2. args is packed into the initial
// frame's argument registers; the same bytes are retained so the typed
// Entry can recover them as a pointer (argPtr) instead of only through
// raw registers.
func create(location string, fn Entry, args []Arg, stackSize int) (*Coroutine, error) {
	if len(args) > maxArgs {
		return nil, ErrUnsupportedArgSize
	}

	stk, err := newStack(stackSize)
	if err != nil {
		return nil, err
	}

	co := &Coroutine{
		id:       coroutineIDs.Add(1),
		location: location,
		entry:    fn,
		args:     packBlob(args),
	}
	if err := packArgs(&co.frame, args); err != nil {
		_ = stk.free()
		return nil, err
	}
	co.stk = stk
	co.frame.setSP(stk.hi)
	co.frame.setPC(entryTrampolineAddr())
	co.frame.setSelfPointer(unsafe.Pointer(co))
	co.state.Store(int32(StateCreated))
	return co, nil
}

// packBlob serializes args into a flat byte buffer in declaration order,
// little-endian, truncated to each field's declared Size. This is the
// buffer argPtr exposes to a typed Entry function; it carries exactly the
// same values the registers do, just addressable as memory.
func packBlob(args []Arg) []byte {
	buf := make([]byte, 0, len(args)*8)
	for _, a := range args {
		v := a.Value
		for i := uint8(0); i < a.Size; i++ {
			buf = append(buf, byte(v))
			v >>= 8
		}
	}
	return buf
}

// argPtr returns a pointer to the serialized argument blob, or nil if the
// coroutine was created with no arguments.
func (co *Coroutine) argPtr() unsafe.Pointer {
	if len(co.args) == 0 {
		return nil
	}
	return unsafe.Pointer(&co.args[0])
}

// State returns the coroutine's current lifecycle state. This is the one
// piece of state-inspection observability spec.md's Non-goals leave room
// for ("no observability beyond state inspection").
func (co *Coroutine) State() State { return State(co.state.Load()) }

func (co *Coroutine) setState(s State) { co.state.Store(int32(s)) }

// casState performs the single atomic transition primitive every state
// change in this package goes through, so spec.md §8 invariant 2
// (monotonic Created → Runnable → (Running ⇄ Runnable)* → Done) has one
// choke point to audit.
func (co *Coroutine) casState(old, new State) bool {
	return co.state.CompareAndSwap(int32(old), int32(new))
}

// destroy frees the coroutine's stack. Per spec.md §3, the last queue to
// observe a Done coroutine is responsible for this.
func (co *Coroutine) destroy() error {
	if co.stk == nil {
		return nil
	}
	err := co.stk.free()
	co.stk = nil
	return err
}

// finish is the Go half of the exit trampoline (spec.md §9: "a correct
// implementation must install a trampoline... so that a returning user
// function transitions to Done and hands control back via
// restore(scheduler_frame)"). It is called by entryLauncher after the
// user Entry function returns; it never returns itself.
func (co *Coroutine) finish(ret unsafe.Pointer) {
	_ = ret // the core makes no promise to the embedder about return values
	co.setState(StateDone)
	restoreFrame(co.retFrame)
	panic("fibre: restoreFrame returned") // unreachable; restoreFrame is noreturn
}

//go:nosplit
func entryLauncher(self *Coroutine) {
	ret := self.entry(self.argPtr())
	self.finish(ret)
}

// entryTrampolineAddr returns the address restoreFrame jumps to for a
// freshly created coroutine. The trampoline itself is defined per
// architecture in trampoline_amd64.s / trampoline_arm64.s.
func entryTrampolineAddr() uintptr {
	return entryTrampolinePC()
}
