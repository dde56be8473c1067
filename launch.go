package kbench

import "context"

// Launcher is one unit of GPU work to be timed. kbench does not interpret
// the work: a launcher typically encodes and submits commands through the
// session it is handed and returns once submission is complete. Under the
// Timer tag it must also bracket the span to measure with
// [Launch.StartTimer] and [Launch.StopTimer].
//
// A launcher may be invoked many times per measurement and must be safe to
// re-invoke. It is never retained beyond the Exec call that received it.
type Launcher func(*Launch) error

// Launch is the per-invocation execution context handed to a [Launcher].
type Launch struct {
	state   *State
	session Session
	release func() error
}

// Session returns the GPU session this launch runs against.
func (l *Launch) Session() Session { return l.session }

// Context returns the context governing GPU synchronization for this launch.
func (l *Launch) Context() context.Context { return l.state.ctx }

// StartTimer starts the state's manual timer. Only launchers running under
// the Timer tag call this; see [State.StartTimer].
func (l *Launch) StartTimer() { l.state.StartTimer() }

// StopTimer stops the state's manual timer.
func (l *Launch) StopTimer() { l.state.StopTimer() }

// unblock releases the blocking kernel backing this launch, if one is
// engaged. Measurements call it between work submission and the final
// synchronization; calling it again is a no-op.
func (l *Launch) unblock() error {
	if l.release == nil {
		return nil
	}
	release := l.release
	l.release = nil
	return release()
}
