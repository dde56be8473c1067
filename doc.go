// Package kbench is a GPU kernel benchmarking harness for the GoGPU
// ecosystem.
//
// # Overview
//
// kbench times GPU kernels launched through gogpu/wgpu. A benchmark is a
// [State] holding configuration and results, a [Launcher] wrapping one unit
// of GPU work, and a [Tag] set describing what to measure (cold latency,
// hot throughput) and how to run it (manual timing, synchronization,
// run-once dry runs, blocking-kernel suppression).
//
// # Quick Start
//
//	import "github.com/gogpu/kbench"
//
//	st := kbench.NewState(kbench.WithName("copy"))
//
//	err := st.Exec(kbench.Cold|kbench.Hot, func(l *kbench.Launch) error {
//	    return submitCopy(l.Session())
//	})
//
//	for _, d := range st.ColdTimes() {
//	    // one launch-to-completion sample per entry
//	}
//
// # Execution tags
//
// Tags compose with bitwise OR. Cold and Hot select measurement strategies;
// Timer, Sync, RunOnce and NoBlock modify how a strategy runs. Exec resolves
// an under-specified tag set to a canonical one before any work happens:
// missing selectors are defaulted, and state-level requests (run-once,
// blocking-kernel disable) are folded in. See [State.Exec] for the exact
// resolution order.
//
// # Architecture
//
// The package is organized into:
//   - Public API: State, Tag, Launcher, Launch, Session
//   - Measurements: cold (per-sample sync) and hot (batched, sync-free)
//   - internal/gpuexec: wgpu device ownership, synchronization, and the
//     blocking kernel used to keep the GPU busy between timed launches
//
// kbench produces raw samples only; aggregation and reporting belong to
// the caller.
package kbench
