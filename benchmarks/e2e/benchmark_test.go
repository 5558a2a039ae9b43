package fibre_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/arclet-systems/fibre"
)

var workloadSizes = []int{1, 8, 64, 512}

// BenchmarkGoroutinePool_Dispatch is the baseline: plain goroutines
// dispatched from a sync.WaitGroup, no scheduling runtime involved.
func BenchmarkGoroutinePool_Dispatch(b *testing.B) {
	for _, n := range workloadSizes {
		n := n
		b.Run(fmt.Sprintf("N%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				var wg sync.WaitGroup
				var counter atomic.Uint64
				wg.Add(n)
				for j := 0; j < n; j++ {
					go func() {
						defer wg.Done()
						counter.Add(1)
					}()
				}
				wg.Wait()
			}
		})
	}
}

// BenchmarkFibre_Submit drives the same fan-out/fan-in shape through
// Runtime.Submit, polling Handle.State() for completion instead of a
// WaitGroup (coroutines have no channel/semaphore of their own).
func BenchmarkFibre_Submit(b *testing.B) {
	for _, n := range workloadSizes {
		n := n
		b.Run(fmt.Sprintf("N%d", n), func(b *testing.B) {
			rt, err := fibre.Init(fibre.NewConfig(fibre.WithWorkerCount(4)))
			if err != nil {
				b.Fatal(err)
			}
			defer rt.Shutdown()

			var counter atomic.Uint64
			bump := func(arg unsafe.Pointer) unsafe.Pointer {
				counter.Add(1)
				return nil
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				handles := make([]fibre.Handle, 0, n)
				for j := 0; j < n; j++ {
					h, err := rt.Submit("bump", bump)
					if err != nil {
						b.Fatal(err)
					}
					handles = append(handles, h)
				}
				for _, h := range handles {
					for h.State() != fibre.StateDone {
						// busy-poll: coroutines expose no blocking join primitive
					}
				}
			}
		})
	}
}

// BenchmarkFibre_Init isolates runtime startup/teardown cost, mirroring
// the teacher's New-constructor allocation benchmarks.
func BenchmarkFibre_Init(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		rt, err := fibre.Init(fibre.NewConfig(fibre.WithWorkerCount(1)))
		if err != nil {
			b.Fatal(err)
		}
		rt.Shutdown()
	}
}
