//go:build arm64

package fibre

import "unsafe"

// linuxMcontextARM64 mirrors Linux's ucontext_t.uc_mcontext on arm64
// (struct sigcontext in asm/sigcontext.h): fault_address, then X0-X30 in
// regs[31], then sp, pc, pstate. Treated as an opaque, offset-addressed
// block — see linuxMcontextAMD64's doc comment for why.
type linuxMcontextARM64 struct {
	faultAddress uint64
	regs         [31]uint64
	sp, pc, pstate uint64
}

// mcontextOffsetARM64 is uc_mcontext's byte offset within ucontext_t.
// Unlike amd64, arm64 places uc_sigmask and padding before uc_mcontext:
// uc_flags (8) + uc_link (8) + uc_stack (24) + uc_sigmask (8) + unused
// (120) = 168, rounded up to sigcontext's 16-byte alignment = 176.
const mcontextOffsetARM64 = 176

// preemptionHandler is spec.md §4.6's preemption signal handler body,
// reached from sigTrampoline (sigtramp_arm64.s) on the alt signal stack.
func preemptionHandler(sig int64, info, ctx uintptr) {
	w := lookupWorker(gettid())
	if w == nil {
		return
	}
	w.state.Store(int32(WorkerScheduling))

	cur := w.sched.current
	if cur == nil {
		return
	}

	mc := (*linuxMcontextARM64)(unsafe.Pointer(ctx + mcontextOffsetARM64))
	f := &cur.frame
	for i := 0; i < maxArgs; i++ {
		f.Args[i] = mc.regs[i]
	}
	f.X19, f.X20, f.X21, f.X22 = mc.regs[19], mc.regs[20], mc.regs[21], mc.regs[22]
	f.X23, f.X24, f.X25, f.X26 = mc.regs[23], mc.regs[24], mc.regs[25], mc.regs[26]
	f.X27, f.X28, f.X29, f.X30 = mc.regs[27], mc.regs[28], mc.regs[29], mc.regs[30]
	f.SP, f.PC = mc.sp, mc.pc

	// cur is detached from the local queue (pickNext's dispatch discipline)
	// and is handed back to it by schedulingLoop, on the other side of
	// restoreFrame below, the moment it observes sched.current again —
	// not here. This handler only flips the state and captures registers.
	cur.setState(StateRunnable)
	w.preemptCount.Add(1)

	restoreFrame(&w.schedCo.frame) // does not return
}
