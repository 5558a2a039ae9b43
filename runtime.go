package fibre

import (
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the compile-time constants spec.md §6 names, made
// runtime-configurable per the re-architecture note in spec.md §9
// ("explicit handle... threaded into Submit/Shutdown"). DefaultConfig
// reproduces the spec's literal defaults.
type Config struct {
	// WorkerCount is spec.md §6's WORKING_THREADS_COUNT.
	WorkerCount int
	// StackSize is spec.md §6's DEFAULT_STACK_SIZE, applied to both
	// coroutine stacks and worker alt signal stacks.
	StackSize int
	// Quantum is spec.md §6's QUANTUM.
	Quantum time.Duration
	// MonitorTick is spec.md §6's MONITOR_TICK.
	MonitorTick time.Duration
	// PreemptSignal is the realtime signal number the monitor uses to
	// preempt a worker. Not named by spec.md (language-neutral); defaults
	// to a realtime signal unused by the Go runtime itself.
	PreemptSignal int
	// Logger receives structured diagnostics and fatal invariant-violation
	// records (spec.md §7). Defaults to a zerolog logger writing JSON to
	// stderr if nil.
	Logger *zerolog.Logger
}

// DefaultConfig returns spec.md §6's compile-time constants as a Config:
// one worker, 16 KiB stacks, a 20 ms quantum, a 500 μs monitor tick.
func DefaultConfig() Config {
	return Config{
		WorkerCount:   1,
		StackSize:     DefaultStackSize,
		Quantum:       quantum,
		MonitorTick:   monitorTick,
		PreemptSignal: defaultPreemptSignal,
	}
}

// Option mutates a Config under construction. NewConfig applies a list of
// Options over DefaultConfig, the functional-option idiom the pack's
// knob-heavy constructors (joeycumines-go-utilpkg) use throughout.
type Option func(*Config)

func WithWorkerCount(n int) Option    { return func(c *Config) { c.WorkerCount = n } }
func WithStackSize(n int) Option      { return func(c *Config) { c.StackSize = n } }
func WithQuantum(d time.Duration) Option { return func(c *Config) { c.Quantum = d } }
func WithMonitorTick(d time.Duration) Option {
	return func(c *Config) { c.MonitorTick = d }
}
func WithPreemptSignal(sig int) Option { return func(c *Config) { c.PreemptSignal = sig } }
func WithLogger(l *zerolog.Logger) Option { return func(c *Config) { c.Logger = l } }

// NewConfig builds a Config from DefaultConfig plus any Options.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Handle is an opaque, non-reference-counted identity for a submitted
// coroutine (spec.md §6), valid only until the coroutine reaches Done.
type Handle struct {
	co *Coroutine
}

// State returns the referenced coroutine's current lifecycle state.
func (h Handle) State() State { return h.co.State() }

// Stats is a point-in-time snapshot of runtime activity, the
// "observability beyond state inspection" spec.md's Non-goals otherwise
// exclude kept to exactly this: aggregate counters, no tracing.
type Stats struct {
	GlobalQueueLen int
	WorkerLocalLen []int
	Preemptions    []uint64
}

// Runtime is spec.md §3's C7: the global queue, its mutex (via runQueue's
// own), the fixed-size worker pool, and the monitor thread. It is the
// explicit handle spec.md §9 calls for in place of a package-level
// singleton.
type Runtime struct {
	cfg     Config
	global  *runQueue
	workers []*worker
	mon     *monitor
	logger  *zerolog.Logger

	// stopping is the cooperative shutdown flag every worker's scheduling
	// loop polls (worker.go). There is no forceful per-worker stop on
	// Linux — see Shutdown's doc comment.
	stopping atomic.Bool
}

// Init implements spec.md §4.9's init(): allocates the runtime record,
// the global queue, WorkerCount workers (each installing the preemption
// signal handler, an alt stack, a semaphore-equivalent idle parker, and a
// scheduler coroutine, then starting its OS thread), and the monitor
// thread.
func Init(cfg Config) (*Runtime, error) {
	if cfg.WorkerCount < 0 {
		cfg.WorkerCount = 0
	}
	if cfg.StackSize <= 0 {
		cfg.StackSize = DefaultStackSize
	}
	if cfg.Quantum <= 0 {
		cfg.Quantum = quantum
	}
	if cfg.MonitorTick <= 0 {
		cfg.MonitorTick = monitorTick
	}
	if cfg.PreemptSignal <= 0 {
		cfg.PreemptSignal = defaultPreemptSignal
	}
	if cfg.Logger == nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		cfg.Logger = &l
	}

	rt := &Runtime{
		cfg:    cfg,
		global: newRunQueue(),
		logger: cfg.Logger,
	}

	rt.workers = make([]*worker, cfg.WorkerCount)
	for i := range rt.workers {
		w := newWorker(i, rt)
		if err := w.start(); err != nil {
			rt.logger.Fatal().Err(err).Int("worker", i).Msg("start worker")
		}
		rt.workers[i] = w
	}

	rt.mon = newMonitor(rt)
	go rt.mon.run()

	return rt, nil
}

// Submit implements spec.md §4.8: creates the coroutine, locks the global
// queue, appends it, transitions it to Runnable, and unlocks — all while
// the caller's own preemption state is irrelevant, since Submit runs on an
// ordinary goroutine, never inside a worker's signal-masked sections.
func (rt *Runtime) Submit(loc string, fn Entry, args ...Arg) (Handle, error) {
	if rt.stopping.Load() {
		return Handle{}, ErrShutdown
	}

	co, err := create(loc, fn, args, rt.cfg.StackSize)
	if err != nil {
		if !errors.Is(err, ErrUnsupportedArgSize) {
			rt.logger.Fatal().Err(err).Str("location", loc).Msg("submit: allocate coroutine stack")
		}
		return Handle{}, err
	}

	rt.global.mu.Lock()
	co.setState(StateRunnable)
	rt.global.appendLocked(co)
	rt.global.mu.Unlock()

	return Handle{co: co}, nil
}

// Shutdown implements spec.md §4.9's shutdown(): stops the monitor and
// asks every worker to stop scheduling new work, then returns immediately.
//
// There is no way to force a single worker's OS thread to stop on Linux:
// SIGKILL's disposition is process-wide no matter which thread in the
// group receives it, so a per-thread "kill" modeled on it would tear down
// the entire process the moment a test or embedder called Shutdown — the
// opposite of "returns without deadlock". Instead, stopping is a flag
// each worker's scheduling loop polls the next time control returns to it
// (worker.go's schedulingLoop): on completion of its current coroutine, or
// at the next preemption if one is still mid-quantum. A worker pinned in a
// coroutine that never yields and outlives the monitor's last preemption
// signal leaks its OS thread and alt signal stack — an acknowledged gap
// (see DESIGN.md), not a deadlock, since Shutdown itself never blocks on
// worker exit.
func (rt *Runtime) Shutdown() {
	rt.stopping.Store(true)
	rt.mon.stop()
	// Workers already parked (Idle) would otherwise never re-enter
	// schedulingLoop to observe stopping; wake them so they do.
	for _, w := range rt.workers {
		w.idle.wake()
	}
}

// StatsSnapshot returns a point-in-time view of queue occupancy and
// per-worker preemption counts.
func (rt *Runtime) StatsSnapshot() Stats {
	s := Stats{
		GlobalQueueLen: rt.global.Len(),
		WorkerLocalLen: make([]int, len(rt.workers)),
		Preemptions:    make([]uint64, len(rt.workers)),
	}
	for i, w := range rt.workers {
		s.WorkerLocalLen[i] = w.sched.local.Len()
		s.Preemptions[i] = w.preemptCount.Load()
	}
	return s
}
