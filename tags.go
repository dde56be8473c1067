package kbench

import (
	"fmt"
	"strings"
)

// Tag is a set of execution flags for a benchmark run.
//
// A Tag value is a bitwise union of the named flags below and nothing else.
// Flags split into two disjoint groups: measurement selectors (Cold, Hot)
// choose which timing strategy runs, modifiers (Timer, Sync, RunOnce,
// NoBlock) choose how it runs. [State.Exec] rejects any other bit pattern.
type Tag uint32

const (
	// Cold selects cold measurement: one synchronized launch per sample,
	// timing full launch-to-completion latency.
	Cold Tag = 1 << iota

	// Hot selects hot measurement: many back-to-back launches with a single
	// final synchronization, timing steady-state throughput.
	Hot

	// Timer marks the launcher as self-timing: it drives the state's manual
	// timer itself and cold measurement must not wrap it in the timing
	// adapter. Incompatible with Hot.
	Timer

	// Sync marks the launcher as requiring explicit synchronization between
	// launches. Incompatible with Hot, whose entire point is eliminating
	// inter-iteration synchronization.
	Sync

	// RunOnce forces exactly one execution pass, for correctness-only dry
	// runs rather than performance sampling. Implies Cold.
	RunOnce

	// NoBlock disables the blocking kernel that normally keeps the GPU busy
	// between timed launches.
	NoBlock
)

// Partition masks. Every recognized flag belongs to exactly one of these.
const (
	measureMask  = Cold | Hot
	modifierMask = Timer | Sync | RunOnce | NoBlock
	tagMask      = measureMask | modifierMask
)

// Measures returns the measurement-selector component of the tag set.
func (t Tag) Measures() Tag { return t & measureMask }

// Modifiers returns the modifier component of the tag set.
func (t Tag) Modifiers() Tag { return t & modifierMask }

// Has reports whether any flag in f is present in the tag set.
func (t Tag) Has(f Tag) bool { return t&f != 0 }

// tagNames is ordered by bit position for String.
var tagNames = []struct {
	flag Tag
	name string
}{
	{Cold, "cold"},
	{Hot, "hot"},
	{Timer, "timer"},
	{Sync, "sync"},
	{RunOnce, "run_once"},
	{NoBlock, "no_block"},
}

// String returns the flag names joined with "|", e.g. "cold|timer".
func (t Tag) String() string {
	if t == 0 {
		return "none"
	}
	var parts []string
	for _, tn := range tagNames {
		if t.Has(tn.flag) {
			parts = append(parts, tn.name)
		}
	}
	if rest := t &^ tagMask; rest != 0 {
		parts = append(parts, fmt.Sprintf("invalid(%#x)", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// validate rejects tag sets that could never resolve to a measurement:
// bits outside the recognized vocabulary, and the hot/timer and hot/sync
// combinations. It runs at the top of every Exec frame, before any
// normalization, so no invalid set ever reaches strategy construction.
func validate(t Tag) error {
	if rest := t &^ tagMask; rest != 0 {
		return fmt.Errorf("kbench: %w: %#x is not a union of execution tags", ErrUnknownTag, uint32(t))
	}
	if t.Has(Hot) && t.Has(Timer) {
		return fmt.Errorf("kbench: %w: hot measurement cannot use a manual timer", ErrIncompatibleTags)
	}
	if t.Has(Hot) && t.Has(Sync) {
		return fmt.Errorf("kbench: %w: hot measurement cannot synchronize between launches", ErrIncompatibleTags)
	}
	return nil
}
