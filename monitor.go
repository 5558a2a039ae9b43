package fibre

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// monitorTick is spec.md §6's MONITOR_TICK.
const monitorTick = 500 * time.Microsecond

// quantum is spec.md §6's QUANTUM: the maximum time a coroutine may hold
// a worker before the monitor preempts it.
const quantum = 20 * time.Millisecond

// monitor is spec.md §3/§4.7's C8: a dedicated OS thread that drains the
// global queue onto workers round-robin, wakes idle workers, and fires
// the preemption signal at workers that have overrun their quantum.
type monitor struct {
	rt      *Runtime
	next    int // round-robin cursor into rt.workers
	stopped atomic.Bool
}

func newMonitor(rt *Runtime) *monitor {
	return &monitor{rt: rt}
}

// run is the monitor's OS thread entry. It loops until the runtime is
// shut down, sleeping Config.MonitorTick between iterations (default
// monitorTick, spec.md §4.7); the tick is set per Runtime, not at compile
// time.
func (m *monitor) run() {
	for !m.stopped.Load() {
		m.tick()
		time.Sleep(m.rt.cfg.MonitorTick)
	}
}

func (m *monitor) stop() { m.stopped.Store(true) }

// tick performs one monitor iteration: the global-queue drain, then
// per-worker maintenance, exactly as spec.md §4.7 enumerates.
func (m *monitor) tick() {
	m.drainGlobal()
	m.maintainWorkers()
}

// drainGlobal implements spec.md §4.7 step 1, under the global queue's
// mutex. Every coroutine currently on the global queue is visited exactly
// once per tick: Runnable coroutines are distributed round-robin onto
// workers, Done ones are destroyed, and Running/Syscall/Waiting ones are
// rotated back (they should not normally appear here, but are tolerated
// rather than dropped). A Created coroutine is an invariant violation —
// submit() always transitions to Runnable atomically with enqueue.
func (m *monitor) drainGlobal() {
	gq := m.rt.global
	gq.mu.Lock()
	bound := gq.size
	for i := 0; i < bound; i++ {
		co := gq.frontLocked()
		if co == nil {
			break
		}
		switch co.State() {
		case StateRunnable:
			if len(m.rt.workers) == 0 {
				// No workers: leave it on the global queue rather than
				// crash. Boundary behavior per spec.md §8.
				gq.rotateLocked()
				continue
			}
			gq.popFrontLocked()
			w := m.rt.workers[m.next]
			m.next = (m.next + 1) % len(m.rt.workers)
			gq.mu.Unlock()
			w.enqueueLocal(co)
			gq.mu.Lock()
		case StateDone:
			dead := gq.popFrontLocked()
			_ = dead.destroy()
		case StateCreated:
			m.rt.logger.Fatal().Msg("monitor: Created coroutine observed on global queue")
		default: // Running, Syscall, Waiting
			gq.rotateLocked()
		}
	}
	gq.mu.Unlock()
}

// maintainWorkers implements spec.md §4.7 step 2: wake idle workers with
// pending work, and preempt workers that have overrun their quantum.
func (m *monitor) maintainWorkers() {
	nowNS := Nanotime()
	for _, w := range m.rt.workers {
		if w.sched.local.Len() == 0 {
			continue
		}
		switch w.State() {
		case WorkerIdle:
			w.idle.wake()
		case WorkerRunning:
			if time.Duration(nowNS-w.timeSliceNS.Load()) > m.rt.cfg.Quantum {
				m.preempt(w)
			}
		}
	}
}

// preempt sends preemptSignal to w's OS thread (spec.md §4.7: "send the
// preemption signal to that worker's OS thread").
func (m *monitor) preempt(w *worker) {
	pid := unix.Getpid()
	if err := unix.Tgkill(pid, int(w.tid), unix.Signal(m.rt.cfg.PreemptSignal)); err != nil {
		m.rt.logger.Error().Err(err).Int("worker", w.id).Msg("tgkill preempt")
	}
}
