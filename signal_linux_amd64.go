//go:build amd64

package fibre

import "unsafe"

// linuxMcontextAMD64 mirrors the register-bearing prefix of Linux's
// ucontext_t.uc_mcontext on amd64 (glibc's sys/ucontext.h names these
// gregs[REG_R8..REG_RIP]). Every greg up to RIP is named because the layout
// is positional, but preemptionHandler copies only the ones Frame models
// (not R10, R11 or RAX); the rest of the real struct (eflags, segment
// selectors, fpstate pointer, signal mask) is never read — the same
// "opaque, offset-addressed block" treatment DESIGN.md describes for
// avikivity-gcc's g_ucontext_t.
type linuxMcontextAMD64 struct {
	r8, r9, r10, r11, r12, r13, r14, r15 uint64
	rdi, rsi, rbp, rbx, rdx, rax, rcx    uint64
	rsp, rip                             uint64
}

// mcontextOffsetAMD64 is uc_mcontext's byte offset within ucontext_t:
// uc_flags (8) + uc_link (8) + uc_stack{sp ptr 8, flags+pad 8, size 8}
// (24) = 40.
const mcontextOffsetAMD64 = 40

// preemptionHandler is spec.md §4.6's preemption signal handler body,
// reached from sigTrampoline (sigtramp_amd64.s) on the alt signal stack.
// sig, info and ctx are the kernel's SA_SIGINFO handler arguments,
// widened to uintptr by the trampoline; only ctx (the ucontext_t*) is
// used here.
func preemptionHandler(sig int64, info, ctx uintptr) {
	w := lookupWorker(gettid())
	if w == nil {
		return // signal misdelivered to a non-worker thread; nothing to do
	}
	w.state.Store(int32(WorkerScheduling))

	cur := w.sched.current
	if cur == nil {
		return
	}

	mc := (*linuxMcontextAMD64)(unsafe.Pointer(ctx + mcontextOffsetAMD64))
	f := &cur.frame
	f.Args[0], f.Args[1], f.Args[2] = mc.rdi, mc.rsi, mc.rdx
	f.Args[3], f.Args[4], f.Args[5] = mc.rcx, mc.r8, mc.r9
	f.BX, f.BP = mc.rbx, mc.rbp
	f.R12, f.R13, f.R14, f.R15 = mc.r12, mc.r13, mc.r14, mc.r15
	f.SP, f.PC = mc.rsp, mc.rip

	// cur is detached from the local queue (pickNext's dispatch discipline)
	// and is handed back to it by schedulingLoop, on the other side of
	// restoreFrame below, the moment it observes sched.current again —
	// not here. This handler only flips the state and captures registers.
	cur.setState(StateRunnable)
	w.preemptCount.Add(1)

	restoreFrame(&w.schedCo.frame) // does not return
}
