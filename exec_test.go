package kbench

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// dispatchRecorder replaces the strategy-construction seams with counting
// stubs so tests can observe how Exec resolves a tag set without touching
// a GPU.
type dispatchRecorder struct {
	wrapCalls int
	calls     []strategyCall
	runErr    error
}

type strategyCall struct {
	kind      string // "cold" or "hot"
	cfg       measureConfig
	wrapsSeen int // wrapper constructions observed at strategy construction
	ran       bool
}

type stubRunner struct {
	rec *dispatchRecorder
	idx int
}

func (r *stubRunner) run() error {
	r.rec.calls[r.idx].ran = true
	return r.rec.runErr
}

func (rec *dispatchRecorder) install(s *State) {
	s.wrap = func(_ *State, l Launcher) Launcher {
		rec.wrapCalls++
		return l
	}
	s.newCold = func(_ *State, _ Launcher, cfg measureConfig) measureRunner {
		rec.calls = append(rec.calls, strategyCall{kind: "cold", cfg: cfg, wrapsSeen: rec.wrapCalls})
		return &stubRunner{rec: rec, idx: len(rec.calls) - 1}
	}
	s.newHot = func(_ *State, _ Launcher, cfg measureConfig) measureRunner {
		rec.calls = append(rec.calls, strategyCall{kind: "hot", cfg: cfg, wrapsSeen: rec.wrapCalls})
		return &stubRunner{rec: rec, idx: len(rec.calls) - 1}
	}
}

// signature flattens the recorded dispatch into a comparable string.
func (rec *dispatchRecorder) signature() string {
	var parts []string
	for _, c := range rec.calls {
		parts = append(parts, fmt.Sprintf("%s(block=%t,once=%t,ran=%t)",
			c.kind, c.cfg.useBlockingKernel, c.cfg.runOnce, c.ran))
	}
	return strings.Join(parts, ";")
}

func nopLauncher(*Launch) error { return nil }

// resolve runs Exec against counting stubs and returns the recorder.
func resolve(t *testing.T, tags Tag, opts ...StateOption) *dispatchRecorder {
	t.Helper()
	s := NewState(opts...)
	rec := &dispatchRecorder{}
	rec.install(s)
	if err := s.Exec(tags, nopLauncher); err != nil {
		t.Fatalf("Exec(%v) = %v, want nil", tags, err)
	}
	return rec
}

func TestSelectorDefaulting(t *testing.T) {
	tests := []struct {
		name string
		tags Tag
		want []string // strategy kinds in dispatch order
	}{
		{"empty runs both", 0, []string{"cold", "hot"}},
		{"timer implies cold only", Timer, []string{"cold"}},
		{"sync implies cold only", Sync, []string{"cold"}},
		{"timer and no_block imply cold only", Timer | NoBlock, []string{"cold"}},
		{"explicit cold stays cold", Cold, []string{"cold"}},
		{"explicit hot stays hot", Hot, []string{"hot"}},
		{"explicit both run in order", Cold | Hot, []string{"cold", "hot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := resolve(t, tt.tags)
			if len(rec.calls) != len(tt.want) {
				t.Fatalf("got %d strategies (%s), want %d", len(rec.calls), rec.signature(), len(tt.want))
			}
			for i, kind := range tt.want {
				if rec.calls[i].kind != kind {
					t.Errorf("strategy %d = %s, want %s", i, rec.calls[i].kind, kind)
				}
				if !rec.calls[i].ran {
					t.Errorf("strategy %d was constructed but never run", i)
				}
			}
		})
	}
}

func TestRunOncePrecedence(t *testing.T) {
	// With run-once requested on the state, hot must never execute even
	// when the caller asks for it explicitly.
	rec := resolve(t, Hot, WithRunOnce())

	if len(rec.calls) != 1 {
		t.Fatalf("got %d strategies (%s), want exactly 1", len(rec.calls), rec.signature())
	}
	call := rec.calls[0]
	if call.kind != "cold" {
		t.Errorf("strategy = %s, want cold", call.kind)
	}
	if !call.cfg.runOnce {
		t.Error("cold strategy not configured for run-once")
	}
}

func TestRunOnceKeepsModifiers(t *testing.T) {
	// Run-once normalization carries modifiers forward but drops selectors.
	rec := resolve(t, Hot|NoBlock, WithRunOnce())

	if len(rec.calls) != 1 || rec.calls[0].kind != "cold" {
		t.Fatalf("dispatch = %s, want single cold strategy", rec.signature())
	}
	if rec.calls[0].cfg.useBlockingKernel {
		t.Error("no_block modifier dropped during run-once normalization")
	}
}

func TestBlockingKernelNormalization(t *testing.T) {
	t.Run("state flag folds in", func(t *testing.T) {
		rec := resolve(t, Cold, WithDisableBlockingKernel())
		if len(rec.calls) != 1 || rec.calls[0].cfg.useBlockingKernel {
			t.Fatalf("dispatch = %s, want cold with blocking kernel off", rec.signature())
		}
	})
	t.Run("explicit tag equivalent", func(t *testing.T) {
		rec := resolve(t, Cold|NoBlock)
		if len(rec.calls) != 1 || rec.calls[0].cfg.useBlockingKernel {
			t.Fatalf("dispatch = %s, want cold with blocking kernel off", rec.signature())
		}
	})
	t.Run("default keeps blocking kernel", func(t *testing.T) {
		rec := resolve(t, Cold)
		if len(rec.calls) != 1 || !rec.calls[0].cfg.useBlockingKernel {
			t.Fatalf("dispatch = %s, want cold with blocking kernel on", rec.signature())
		}
	})
}

func TestNormalizationsCommute(t *testing.T) {
	// Run-once and blocking-kernel normalization must converge to the same
	// canonical dispatch regardless of the order the state flags are set.
	a := resolve(t, Hot, WithRunOnce(), WithDisableBlockingKernel())
	b := resolve(t, Hot, WithDisableBlockingKernel(), WithRunOnce())
	if a.signature() != b.signature() {
		t.Fatalf("normalizations do not commute:\n a=%s\n b=%s", a.signature(), b.signature())
	}
}

func TestResolutionDeterministic(t *testing.T) {
	for _, tags := range []Tag{0, Cold, Hot, Timer, Sync, Cold | Hot, Hot | RunOnce, Sync | NoBlock} {
		first := resolve(t, tags, WithRunOnce())
		second := resolve(t, tags, WithRunOnce())
		if first.signature() != second.signature() {
			t.Errorf("tags %v resolved differently across runs:\n 1=%s\n 2=%s",
				tags, first.signature(), second.signature())
		}
	}
}

func TestSkipShortCircuit(t *testing.T) {
	s := NewState()
	s.Skip("not supported on this device")
	rec := &dispatchRecorder{}
	rec.install(s)

	launcherCalls := 0
	err := s.Exec(Cold|Hot, func(*Launch) error {
		launcherCalls++
		return nil
	})
	if err != nil {
		t.Fatalf("Exec on skipped state = %v, want nil", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("skipped state constructed %d strategies (%s), want 0", len(rec.calls), rec.signature())
	}
	if rec.wrapCalls != 0 {
		t.Errorf("skipped state constructed %d wrappers, want 0", rec.wrapCalls)
	}
	if launcherCalls != 0 {
		t.Errorf("skipped state invoked the launcher %d times, want 0", launcherCalls)
	}
}

func TestInvalidTagsRejected(t *testing.T) {
	tests := []struct {
		name    string
		tags    Tag
		wantErr error
	}{
		{"hot with timer", Hot | Timer, ErrIncompatibleTags},
		{"hot with sync", Hot | Sync, ErrIncompatibleTags},
		{"unrecognized bit", Tag(1 << 9), ErrUnknownTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			rec := &dispatchRecorder{}
			rec.install(s)

			err := s.Exec(tt.tags, nopLauncher)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Exec(%v) = %v, want %v", tt.tags, err, tt.wantErr)
			}
			if len(rec.calls) != 0 {
				t.Errorf("invalid tags constructed %d strategies, want 0", len(rec.calls))
			}
		})
	}
}

func TestNilLauncherRejected(t *testing.T) {
	s := NewState()
	if err := s.Exec(Cold, nil); !errors.Is(err, ErrNilLauncher) {
		t.Fatalf("Exec(Cold, nil) = %v, want %v", err, ErrNilLauncher)
	}
}

func TestWrapperSelection(t *testing.T) {
	t.Run("cold without timer wraps once", func(t *testing.T) {
		rec := resolve(t, Cold)
		if rec.wrapCalls != 1 {
			t.Errorf("wrapper constructions = %d, want 1", rec.wrapCalls)
		}
		if rec.calls[0].wrapsSeen != 1 {
			t.Error("cold strategy constructed before the wrapper")
		}
	})
	t.Run("cold with timer never wraps", func(t *testing.T) {
		rec := resolve(t, Cold|Timer)
		if rec.wrapCalls != 0 {
			t.Errorf("wrapper constructions = %d, want 0", rec.wrapCalls)
		}
	})
	t.Run("hot never wraps", func(t *testing.T) {
		rec := resolve(t, Hot)
		if rec.wrapCalls != 0 {
			t.Errorf("wrapper constructions = %d, want 0", rec.wrapCalls)
		}
	})
	t.Run("cold and hot wraps only for cold", func(t *testing.T) {
		rec := resolve(t, Cold|Hot)
		if rec.wrapCalls != 1 {
			t.Errorf("wrapper constructions = %d, want 1", rec.wrapCalls)
		}
	})
}

func TestStrategyErrorPropagates(t *testing.T) {
	s := NewState()
	rec := &dispatchRecorder{runErr: errors.New("device lost")}
	rec.install(s)

	err := s.Exec(Cold|Hot, nopLauncher)
	if err == nil || err.Error() != "device lost" {
		t.Fatalf("Exec = %v, want device lost", err)
	}
	// The cold failure must stop dispatch before hot is constructed.
	if len(rec.calls) != 1 || rec.calls[0].kind != "cold" {
		t.Errorf("dispatch after cold failure = %s, want cold only", rec.signature())
	}
}
