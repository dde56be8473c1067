package kbench

import "errors"

// Tag and dispatch errors.
var (
	// ErrUnknownTag is returned when a tag set contains bits outside the
	// recognized flag vocabulary.
	ErrUnknownTag = errors.New("unknown execution tag")

	// ErrIncompatibleTags is returned when a tag set combines flags that
	// cannot form a valid measurement (Hot with Timer or Sync).
	ErrIncompatibleTags = errors.New("incompatible execution tags")

	// ErrNilLauncher is returned when Exec is called without a launcher.
	ErrNilLauncher = errors.New("kernel launcher is nil")

	// ErrNoSession is returned when no GPU session was injected and the
	// shared one could not be opened.
	ErrNoSession = errors.New("no GPU session available")

	// ErrTimerNotDriven is returned by cold measurement when a launcher
	// tagged Timer returns without recording a span through the state's
	// manual timer.
	ErrTimerNotDriven = errors.New("launcher did not drive the manual timer")

	// ErrTimerMisuse is returned when StartTimer/StopTimer are called out
	// of order.
	ErrTimerMisuse = errors.New("manual timer start/stop mismatch")
)
