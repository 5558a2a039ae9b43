package fibre

import (
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForState(t *testing.T, h Handle, want State, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if h.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, want, h.State())
}

// Scenario: zero workers — submit succeeds, nothing ever runs, no crash.
func TestRuntime_ZeroWorkers_SubmitSucceedsNoCrash(t *testing.T) {
	rt, err := Init(NewConfig(WithWorkerCount(0)))
	require.NoError(t, err)
	defer rt.Shutdown()

	ran := atomic.Bool{}
	h, err := rt.Submit("never-runs", func(arg unsafe.Pointer) unsafe.Pointer {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.NotEqual(t, StateDone, h.State())
}

// Scenario: argument passing. The literal blob from spec.md §8 scenario 3.
func TestRuntime_ArgPassing_ZeroExtendedIntoRegisters(t *testing.T) {
	rt, err := Init(NewConfig(WithWorkerCount(1)))
	require.NoError(t, err)
	defer rt.Shutdown()

	var got [4]uint64

	co, err := create("argcheck", func(arg unsafe.Pointer) unsafe.Pointer { return nil },
		[]Arg{Arg8(0x11), Arg16(0x2222), Arg32(0x33333333), Arg64(0x4444444444444444)}, DefaultStackSize)
	require.NoError(t, err)
	defer co.destroy()

	got[0], got[1], got[2], got[3] = co.frame.Args[0], co.frame.Args[1], co.frame.Args[2], co.frame.Args[3]
	assert.EqualValues(t, 0x11, got[0])
	assert.EqualValues(t, 0x2222, got[1])
	assert.EqualValues(t, 0x33333333, got[2])
	assert.EqualValues(t, 0x4444444444444444, got[3])
}

// Scenario: shutdown safety. init/submit/sleep/shutdown must not deadlock.
func TestRuntime_ShutdownSafety_NoDeadlock(t *testing.T) {
	rt, err := Init(NewConfig(WithWorkerCount(1)))
	require.NoError(t, err)

	_, err = rt.Submit("short-loop", func(arg unsafe.Pointer) unsafe.Pointer {
		for i := 0; i < 1000; i++ {
		}
		return nil
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		rt.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return: deadlock")
	}
}

// Scenario: fairness. Three coroutines on one worker should each make
// roughly equal progress over an observation window.
func TestRuntime_Fairness_RoughlyEqualProgress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing-sensitive fairness test in -short mode")
	}
	rt, err := Init(NewConfig(WithWorkerCount(1)))
	require.NoError(t, err)
	defer rt.Shutdown()

	var a, b, c atomic.Uint64
	spin := func(counter *atomic.Uint64) Entry {
		return func(arg unsafe.Pointer) unsafe.Pointer {
			for {
				counter.Add(1)
			}
		}
	}
	_, err = rt.Submit("a", spin(&a))
	require.NoError(t, err)
	_, err = rt.Submit("b", spin(&b))
	require.NoError(t, err)
	_, err = rt.Submit("c", spin(&c))
	require.NoError(t, err)

	time.Sleep(time.Second)

	va, vb, vc := float64(a.Load()), float64(b.Load()), float64(c.Load())
	require.Greater(t, va, 0.0)
	require.Greater(t, vb, 0.0)
	require.Greater(t, vc, 0.0)
	mean := (va + vb + vc) / 3
	for _, v := range []float64{va, vb, vc} {
		ratio := v / mean
		assert.InDeltaf(t, 1.0, ratio, 0.5, "expected roughly equal progress, got ratio %f", ratio)
	}
}

// Scenario: preemption. A tight CPU loop competing with another coroutine
// on one worker must be preempted repeatedly, observed via preemptCount.
func TestRuntime_Preemption_CountsAtLeastThree(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing-sensitive preemption test in -short mode")
	}
	rt, err := Init(NewConfig(WithWorkerCount(1), WithQuantum(10*time.Millisecond)))
	require.NoError(t, err)
	defer rt.Shutdown()

	spin := func(arg unsafe.Pointer) unsafe.Pointer {
		for {
		}
	}
	_, err = rt.Submit("hog", spin)
	require.NoError(t, err)
	_, err = rt.Submit("hog2", spin)
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)

	stats := rt.StatsSnapshot()
	var total uint64
	for _, p := range stats.Preemptions {
		total += p
	}
	assert.GreaterOrEqual(t, total, uint64(3))
}

// Scenario: submission round-robin. N+1 coroutines across N workers should
// all eventually reach Done — none left stranded.
func TestRuntime_SubmitRoundRobin_AllCoroutinesDispatched(t *testing.T) {
	rt, err := Init(NewConfig(WithWorkerCount(2)))
	require.NoError(t, err)
	defer rt.Shutdown()

	handles := make([]Handle, 0, 3)
	for i := 0; i < 3; i++ {
		h, err := rt.Submit("quick", func(arg unsafe.Pointer) unsafe.Pointer { return nil })
		require.NoError(t, err)
		handles = append(handles, h)
	}

	for _, h := range handles {
		waitForState(t, h, StateDone, 200*time.Millisecond)
	}
}

// Scenario: Done reclamation. Many short-lived coroutines on one worker
// must each reach Done. This checks completion only; it does not measure
// whether their stacks are freed afterwards.
func TestRuntime_DoneReclamation_ManyShortLivedCoroutines(t *testing.T) {
	rt, err := Init(NewConfig(WithWorkerCount(1)))
	require.NoError(t, err)
	defer rt.Shutdown()

	const n = 1000
	handles := make([]Handle, 0, n)
	for i := 0; i < n; i++ {
		h, err := rt.Submit("quick", func(arg unsafe.Pointer) unsafe.Pointer { return nil })
		require.NoError(t, err)
		handles = append(handles, h)
	}

	for _, h := range handles {
		waitForState(t, h, StateDone, time.Second)
	}
}
