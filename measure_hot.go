package kbench

import (
	"fmt"
	"time"
)

// hotMeasure times steady-state throughput: launches run back to back with
// no per-iteration synchronization, a single sync closes each batch, and
// batches grow until enough measured walltime has accumulated. It always
// holds the caller's raw launcher (hot is incompatible with manual timing
// and explicit synchronization, so there is nothing to wrap).
type hotMeasure struct {
	state  *State
	launch Launcher
	cfg    measureConfig
}

func newHotMeasure(s *State, l Launcher, cfg measureConfig) measureRunner {
	return &hotMeasure{state: s, launch: l, cfg: cfg}
}

func (m *hotMeasure) run() error {
	s := m.state
	ses, err := s.ensureSession()
	if err != nil {
		return err
	}

	// Warmup pass: touches caches and pipelines without being timed.
	warm := &Launch{state: s, session: ses}
	if err := m.launch(warm); err != nil {
		return fmt.Errorf("kbench: hot: warmup launch: %w", err)
	}
	if err := ses.Synchronize(s.ctx); err != nil {
		return fmt.Errorf("kbench: hot: warmup sync: %w", err)
	}

	batch := s.minSamples
	if batch < 1 {
		batch = 1
	}
	for {
		elapsed, err := m.runBatch(ses, batch)
		if err != nil {
			return err
		}
		s.recordHot(elapsed, batch)

		if s.hotTime >= s.minTime {
			Logger().Debug("hot measurement complete",
				"bench", s.name, "iterations", s.hotIters, "walltime", s.hotTime)
			return nil
		}
		// Grow the batch so sync overhead amortizes away quickly.
		batch *= 2
	}
}

// runBatch launches iters back-to-back invocations under one timing span.
func (m *hotMeasure) runBatch(ses Session, iters int) (time.Duration, error) {
	s := m.state
	l := &Launch{state: s, session: ses}

	if m.cfg.useBlockingKernel {
		release, err := ses.Block(s.ctx)
		if err != nil {
			return 0, fmt.Errorf("kbench: hot: engage blocking kernel: %w", err)
		}
		l.release = release
	}

	start := time.Now()
	for i := 0; i < iters; i++ {
		if err := m.launch(l); err != nil {
			_ = l.unblock()
			return 0, fmt.Errorf("kbench: hot: launch %d: %w", i, err)
		}
	}
	if err := l.unblock(); err != nil {
		return 0, fmt.Errorf("kbench: hot: release blocking kernel: %w", err)
	}
	if err := ses.Synchronize(s.ctx); err != nil {
		return 0, fmt.Errorf("kbench: hot: sync: %w", err)
	}
	return time.Since(start), nil
}
