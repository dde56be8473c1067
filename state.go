package kbench

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/kbench/internal/gpuexec"
)

// Default measurement termination bounds.
const (
	// DefaultMinSamples is the minimum number of cold samples collected
	// before a measurement may terminate.
	DefaultMinSamples = 10

	// DefaultMinTime is the minimum accumulated measured time before a
	// measurement may terminate.
	DefaultMinTime = 500 * time.Millisecond
)

// State holds the configuration and results of one benchmark.
//
// A State is constructed once per benchmark, configured through functional
// options, consulted by [State.Exec] while it resolves execution tags, and
// filled with raw timing samples by the measurement strategies. kbench does
// not aggregate samples; read them back with [State.ColdTimes],
// [State.HotTime] and [State.HotIterations].
//
// A State is not safe for concurrent use. Run one measurement at a time
// per State.
type State struct {
	name string
	ctx  context.Context

	session Session

	runOnce               bool
	disableBlockingKernel bool
	skipped               bool
	skipReason            string

	minSamples int
	minTime    time.Duration

	// Manual timer facility. One start/stop pair records one span, which
	// the active cold measurement collects via takeTimedSpan.
	timerRunning bool
	timerStart   time.Time
	timedSpan    time.Duration
	timedSpanSet bool
	timerErr     error

	// Results.
	coldTimes []time.Duration
	hotTime   time.Duration
	hotIters  int

	// Strategy construction seams. Production values are set in NewState;
	// tests substitute counting stubs.
	newCold func(*State, Launcher, measureConfig) measureRunner
	newHot  func(*State, Launcher, measureConfig) measureRunner
	wrap    func(*State, Launcher) Launcher
}

// StateOption configures a State during creation.
type StateOption func(*State)

// WithName sets the benchmark name used in log output.
func WithName(name string) StateOption {
	return func(s *State) { s.name = name }
}

// WithContext sets the context passed to GPU synchronization calls.
// Defaults to context.Background().
func WithContext(ctx context.Context) StateOption {
	return func(s *State) { s.ctx = ctx }
}

// WithSession injects the GPU session measurements run against.
// Without it, Exec lazily opens the process-wide shared wgpu session.
func WithSession(ses Session) StateOption {
	return func(s *State) { s.session = ses }
}

// WithRunOnce requests a single correctness-only execution pass.
// Exec folds this into the tag set: the effective strategy is always cold
// with the run_once modifier, regardless of the selectors the caller asked
// for.
func WithRunOnce() StateOption {
	return func(s *State) { s.runOnce = true }
}

// WithDisableBlockingKernel suppresses the blocking kernel that normally
// keeps the GPU busy between timed launches. Exec folds this into the tag
// set as the no_block modifier.
func WithDisableBlockingKernel() StateOption {
	return func(s *State) { s.disableBlockingKernel = true }
}

// WithMinSamples sets the minimum number of cold samples to collect.
// Values below one are ignored.
func WithMinSamples(n int) StateOption {
	return func(s *State) {
		if n >= 1 {
			s.minSamples = n
		}
	}
}

// WithMinTime sets the minimum accumulated measured time before a
// measurement may terminate. Zero is allowed and makes the sample count
// the only termination bound.
func WithMinTime(d time.Duration) StateOption {
	return func(s *State) {
		if d >= 0 {
			s.minTime = d
		}
	}
}

// NewState creates a benchmark state with the given options.
func NewState(opts ...StateOption) *State {
	s := &State{
		ctx:        context.Background(),
		minSamples: DefaultMinSamples,
		minTime:    DefaultMinTime,
		newCold:    newColdMeasure,
		newHot:     newHotMeasure,
		wrap:       wrapTimed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the benchmark name.
func (s *State) Name() string { return s.name }

// RunOnce reports whether a single correctness-only pass was requested.
func (s *State) RunOnce() bool { return s.runOnce }

// DisableBlockingKernel reports whether the blocking kernel is suppressed.
func (s *State) DisableBlockingKernel() bool { return s.disableBlockingKernel }

// Skip marks the benchmark as skipped. A skipped benchmark performs no
// measurement: Exec returns immediately after tag resolution.
func (s *State) Skip(reason string) {
	s.skipped = true
	s.skipReason = reason
}

// IsSkipped reports whether the benchmark is skipped.
func (s *State) IsSkipped() bool { return s.skipped }

// SkipReason returns the reason passed to Skip, or "".
func (s *State) SkipReason() string { return s.skipReason }

// StartTimer starts the manual timer. Launchers running under the Timer tag
// call StartTimer/StopTimer around the span they want measured; the timing
// adapter drives the same facility for everything else.
func (s *State) StartTimer() {
	if s.timerRunning {
		s.timerErr = fmt.Errorf("kbench: %w: StartTimer while running", ErrTimerMisuse)
		return
	}
	s.timerRunning = true
	s.timerStart = time.Now()
}

// StopTimer stops the manual timer and records the elapsed span for the
// active measurement to collect.
func (s *State) StopTimer() {
	elapsed := time.Since(s.timerStart)
	if !s.timerRunning {
		s.timerErr = fmt.Errorf("kbench: %w: StopTimer while stopped", ErrTimerMisuse)
		return
	}
	s.timerRunning = false
	s.timedSpan = elapsed
	s.timedSpanSet = true
}

// takeTimedSpan returns the span recorded by the last StartTimer/StopTimer
// pair and clears it. The second return is false if no span was recorded
// since the last take. A deferred timer misuse error takes precedence.
func (s *State) takeTimedSpan() (time.Duration, bool, error) {
	if err := s.timerErr; err != nil {
		s.timerErr = nil
		return 0, false, err
	}
	if !s.timedSpanSet {
		return 0, false, nil
	}
	s.timedSpanSet = false
	return s.timedSpan, true, nil
}

// recordCold appends one cold sample.
func (s *State) recordCold(d time.Duration) {
	s.coldTimes = append(s.coldTimes, d)
}

// recordHot accumulates one hot batch.
func (s *State) recordHot(walltime time.Duration, iters int) {
	s.hotTime += walltime
	s.hotIters += iters
}

// ColdTimes returns a copy of the recorded cold samples, one
// launch-to-completion duration per sample.
func (s *State) ColdTimes() []time.Duration {
	out := make([]time.Duration, len(s.coldTimes))
	copy(out, s.coldTimes)
	return out
}

// HotTime returns the total walltime of all hot batches.
func (s *State) HotTime() time.Duration { return s.hotTime }

// HotIterations returns the total number of launches timed across all hot
// batches.
func (s *State) HotIterations() int { return s.hotIters }

// ensureSession returns the injected session, opening the process-wide
// shared wgpu session on first use when none was injected.
func (s *State) ensureSession() (Session, error) {
	if s.session != nil {
		return s.session, nil
	}
	dev, err := gpuexec.Shared()
	if err != nil {
		return nil, fmt.Errorf("kbench: %w: %w", ErrNoSession, err)
	}
	s.session = dev
	return s.session, nil
}
