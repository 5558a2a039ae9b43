package fibre

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

// idleParker blocks and wakes exactly one goroutine: a worker's own driver
// goroutine, while that worker is Idle. Adapted from the teacher's
// ThreadParker (thread_parker.go), collapsed from a lock-free list of
// arbitrary waiters down to the single-waiter case a worker actually has —
// only the worker's own driver goroutine ever parks here, so the list's
// CAS machinery has no job to do.
type idleParker struct {
	parked unsafe.Pointer // opaque *g of the parked goroutine, nil if none
}

func (p *idleParker) park() {
	atomicStorePointer(&p.parked, GetG())
	mcall(fast_park)
}

// wake readies the parked goroutine, if any. It is a no-op if nothing is
// parked (the worker was already Running or Scheduling).
func (p *idleParker) wake() {
	g := atomicSwapPointer(&p.parked, nil)
	if g == nil {
		return
	}
	for Readgstatus(g) != _Gwaiting {
		runtime.Gosched()
	}
	GoReady(g, 1)
}

// worker is spec.md §3's C6: a single OS thread hosting a scheduler, a
// preemption-capable alt signal stack, and the idle/running state the
// monitor observes.
type worker struct {
	id int

	sched *scheduler
	idle  idleParker

	// schedCo is the "scheduler coroutine" (spec.md §3): a coroutine whose
	// entry is the scheduling loop. Re-entering it — by restoreFrame,
	// never by a Go call — is how this worker resumes scheduling both
	// after a voluntary pick and after preemption.
	schedCo *Coroutine

	state atomic.Int32 // WorkerState

	altStack     *stack
	tid          int32 // OS thread id, set once at worker start, read by the monitor for Tgkill
	timeSliceNS  atomic.Int64
	preemptCount atomic.Uint64 // sidechannel for scenario 5 (spec.md §8)
	rt           *Runtime
}

func newWorker(id int, rt *Runtime) *worker {
	w := &worker{
		id:    id,
		sched: newScheduler(),
		rt:    rt,
	}
	w.state.Store(int32(WorkerCreated))
	return w
}

// start allocates the alt signal stack, builds the scheduler coroutine,
// and launches the driver goroutine that spec.md §4.5 describes as the
// worker main loop. The driver goroutine locks itself to its own OS
// thread for the worker's entire lifetime (spec.md §9: a worker is never
// migrated, so the lock is permanent here, unlike the teacher's advisory
// per-call use of the same primitive).
func (w *worker) start() error {
	altStk, err := newStack(w.rt.cfg.StackSize)
	if err != nil {
		return err
	}
	w.altStack = altStk

	co, err := create("scheduler-coroutine", w.schedulingEntry, nil, w.rt.cfg.StackSize)
	if err != nil {
		_ = altStk.free()
		return err
	}
	w.schedCo = co

	go w.driverLoop()
	return nil
}

// schedulingEntry adapts schedulingLoop to the Entry signature create()
// expects; the scheduler coroutine takes and returns no payload, so arg is
// ignored and nil is always returned (never actually observed — the loop
// never returns).
func (w *worker) schedulingEntry(arg unsafe.Pointer) unsafe.Pointer {
	w.schedulingLoop()
	return nil
}

// driverLoop is the worker's permanent OS thread. It installs the
// process-wide preemption handler (idempotent across workers), its own
// alt signal stack, registers itself in the tid → worker table the
// handler consults, then enters the scheduling loop for the first time.
func (w *worker) driverLoop() {
	runtime.LockOSThread()
	w.tid = gettid()

	if err := installPreemptionHandler(w.rt.cfg.PreemptSignal); err != nil {
		w.rt.logger.Fatal().Err(err).Int("worker", w.id).Msg("install preemption handler")
	}
	if err := installAltStack(w.altStack); err != nil {
		w.rt.logger.Fatal().Err(err).Int("worker", w.id).Msg("install alt signal stack")
	}
	registerWorker(w.tid, w)
	w.state.Store(int32(WorkerIdle))

	// The scheduler coroutine's frame.PC points at schedulingEntry (via
	// entryTrampoline); entering it the first time is an ordinary
	// restoreFrame, identical in shape to resuming after a preemption.
	restoreFrame(&w.schedCo.frame)
}

// schedulingLoop is the body of the scheduler coroutine (spec.md §4.5's
// "Scheduling phase"). restoreFrame transfers control here both on first
// worker start and every time a preempted coroutine's signal handler
// restores this frame.
func (w *worker) schedulingLoop() {
	for {
		if w.rt.stopping.Load() {
			w.state.Store(int32(WorkerDead))
			_ = w.altStack.free()
			select {} // cooperative stop: park this OS thread rather than
			// force-kill it. SIGKILL's disposition on Linux is process-wide
			// regardless of which thread in the group receives it, so there
			// is no way to terminate a single worker's thread in isolation.
		}

		w.state.Store(int32(WorkerScheduling))
		w.maskPreemption()

		// current left the Running state by exactly one of two paths: the
		// exit trampoline (Coroutine.finish, now Done) or the preemption
		// handler (now Runnable). Either way it is no longer queue-resident
		// — pickNext detaches on dispatch — so it must be handed back to
		// the local queue here regardless of which state it landed in:
		// pickNext's own scan is what decides whether to redispatch it
		// (Runnable) or prune and destroy it (Done).
		w.sched.local.mu.Lock()
		if cur := w.sched.current; cur != nil {
			w.sched.local.appendLocked(cur)
			w.sched.current = nil
		}
		w.sched.local.mu.Unlock()

		next := w.sched.pickNext()
		if next == nil {
			w.state.Store(int32(WorkerIdle))
			w.idle.park()
			continue
		}

		next.setState(StateRunning)
		w.state.Store(int32(WorkerRunning))
		w.timeSliceNS.Store(Nanotime())
		next.retFrame = &w.schedCo.frame

		w.unmaskPreemption()
		restoreFrame(&next.frame) // does not return here
	}
}

// maskPreemption and unmaskPreemption block and unblock preemptSignal at
// the OS thread level (spec.md §5's "signal discipline"): the preemption
// handler must never run while this worker is inside scheduler-internal
// phases, since it rewrites the frame and state of sched.current, which
// the scheduler itself is touching without synchronization beyond the
// queue mutex.
func (w *worker) maskPreemption()   { _ = setPreemptSignalBlocked(w.rt.cfg.PreemptSignal, true) }
func (w *worker) unmaskPreemption() { _ = setPreemptSignalBlocked(w.rt.cfg.PreemptSignal, false) }

// enqueueLocal appends co to this worker's local queue. Called by the
// monitor's drain pass (monitor.go); runQueue.append takes the local
// mutex itself, satisfying spec.md §5's "each worker's local queue is
// protected by its own mutex... held by the monitor (when enqueuing to
// that worker)".
func (w *worker) enqueueLocal(co *Coroutine) {
	w.sched.local.append(co)
}

func (w *worker) State() WorkerState { return WorkerState(w.state.Load()) }
