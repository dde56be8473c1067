package kbench

import (
	"fmt"
	"time"
)

// measureRunner is one constructed timing strategy, ready to run.
type measureRunner interface {
	run() error
}

// measureConfig carries the resolved per-run options into a strategy.
type measureConfig struct {
	useBlockingKernel bool
	runOnce           bool
}

// coldMeasure times full launch-to-completion latency, one synchronized
// launch per sample. The launcher it holds is either self-timing (Timer
// tag) or already wrapped in the timing adapter; either way each invocation
// leaves exactly one span in the state's manual timer.
type coldMeasure struct {
	state  *State
	launch Launcher
	cfg    measureConfig
}

func newColdMeasure(s *State, l Launcher, cfg measureConfig) measureRunner {
	return &coldMeasure{state: s, launch: l, cfg: cfg}
}

func (m *coldMeasure) run() error {
	s := m.state
	ses, err := s.ensureSession()
	if err != nil {
		return err
	}

	// Settle outstanding work so the first sample starts from idle.
	if err := ses.Synchronize(s.ctx); err != nil {
		return fmt.Errorf("kbench: cold: initial sync: %w", err)
	}

	var total time.Duration
	for sample := 0; ; sample++ {
		d, err := m.sampleOnce(ses)
		if err != nil {
			return err
		}
		s.recordCold(d)
		total += d

		if m.cfg.runOnce {
			Logger().Debug("cold run-once pass complete", "bench", s.name, "time", d)
			return nil
		}
		if sample+1 >= s.minSamples && total >= s.minTime {
			Logger().Debug("cold measurement complete",
				"bench", s.name, "samples", sample+1, "total", total)
			return nil
		}
	}
}

// sampleOnce runs one timed launch and returns its span.
func (m *coldMeasure) sampleOnce(ses Session) (time.Duration, error) {
	s := m.state
	l := &Launch{state: s, session: ses}

	if m.cfg.useBlockingKernel {
		release, err := ses.Block(s.ctx)
		if err != nil {
			return 0, fmt.Errorf("kbench: cold: engage blocking kernel: %w", err)
		}
		l.release = release
	}

	if err := m.launch(l); err != nil {
		_ = l.unblock()
		return 0, fmt.Errorf("kbench: cold: launch: %w", err)
	}
	// Self-timing launchers may return with the blocker still engaged;
	// the timing adapter has already released it.
	if err := l.unblock(); err != nil {
		return 0, fmt.Errorf("kbench: cold: release blocking kernel: %w", err)
	}
	if err := ses.Synchronize(s.ctx); err != nil {
		return 0, fmt.Errorf("kbench: cold: sync: %w", err)
	}

	d, ok, err := s.takeTimedSpan()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("kbench: cold: %w", ErrTimerNotDriven)
	}
	return d, nil
}
