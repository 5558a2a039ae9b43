package fibre

import (
	"sync"

	"golang.org/x/sys/unix"
)

// defaultPreemptSignal is an otherwise-unused realtime signal, chosen so
// as not to collide with SIGURG, which the Go runtime itself reserves for
// its own asynchronous goroutine preemption (Go 1.14+). Config.PreemptSignal
// defaults to this but is overridable per Runtime.
const defaultPreemptSignal = 40

var (
	installSigactionOnce sync.Once
	installSigactionErr  error
)

// installPreemptionHandler installs the process-wide sigaction for sig
// exactly once per process, regardless of how many Runtimes request it
// (sigaction is process-global on Linux, unlike the alt signal stack,
// which is per-thread and installed separately by each worker via
// installAltStack). Only the first Runtime's signal number takes effect;
// callers should keep PreemptSignal consistent across Runtimes sharing a
// process.
func installPreemptionHandler(sig int) error {
	installSigactionOnce.Do(func() {
		var act unix.SigactionT
		act.Handler = sigTrampolinePC()
		act.Flags = unix.SA_SIGINFO | unix.SA_ONSTACK | unix.SA_RESTART
		installSigactionErr = unix.Sigaction(sig, &act, nil)
	})
	return installSigactionErr
}

// installAltStack installs stk as the calling OS thread's alternate
// signal stack (spec.md §3's "alt_signal_stack"), so the preemption
// handler runs independent of whatever coroutine stack happens to be
// active when the signal arrives.
func installAltStack(stk *stack) error {
	ss := unix.SigaltstackT{
		Ss_sp:   (*byte)(uintptrToPointer(stk.lo)),
		Ss_size: uintptr(stk.size),
	}
	return unix.Sigaltstack(&ss, nil)
}

// sigTrampoline is the raw kernel-ABI landing point for preemptSignal,
// installed via installPreemptionHandler. It is never called from Go;
// only its address (sigTrampolinePC) is ever taken. Implemented in
// sigtramp_amd64.s / sigtramp_arm64.s, which adapt the kernel's
// handler(sig, siginfo*, ucontext*) calling convention into a plain call
// to preemptionHandler.
func sigTrampoline()

func sigTrampolinePC() uintptr { return funcPC(sigTrampoline) }

// setPreemptSignalBlocked blocks or unblocks sig on the calling OS thread
// (spec.md §5's signal discipline). Must be called from a goroutine locked
// to its OS thread (runtime.LockOSThread) — every caller in this package
// is a worker's driver goroutine.
func setPreemptSignalBlocked(sig int, block bool) error {
	var set unix.Sigset_t
	bit := sig - 1
	set.Val[bit/64] |= 1 << uint(bit%64)

	how := unix.SIG_UNBLOCK
	if block {
		how = unix.SIG_BLOCK
	}
	return unix.PthreadSigmask(how, &set, nil)
}

// workersByTID maps an OS thread id to the worker running on it, so the
// preemption handler (which only knows its own tid, via gettid) can find
// its way back to the worker record (spec.md §4.6 step 1: "Identify this
// worker via thread-local storage").
var (
	workersMu    sync.RWMutex
	workersByTID = map[int32]*worker{}
)

func registerWorker(tid int32, w *worker) {
	workersMu.Lock()
	workersByTID[tid] = w
	workersMu.Unlock()
}

func lookupWorker(tid int32) *worker {
	workersMu.RLock()
	w := workersByTID[tid]
	workersMu.RUnlock()
	return w
}

func gettid() int32 { return int32(unix.Gettid()) }
