package kbench

// wrapTimed adapts a launcher that does not time itself into one that
// records elapsed time through the state's manual timer. Cold measurement
// uses it for every launcher not tagged Timer: the adapter starts the
// timer, invokes the launcher, releases the blocking kernel so the
// submitted work can run, synchronizes, and stops the timer, so the
// recorded span covers full launch-to-completion latency.
//
// The wrapped launcher keeps identical invocation semantics; it never sees
// the adapter.
func wrapTimed(s *State, inner Launcher) Launcher {
	return func(l *Launch) error {
		l.StartTimer()
		if err := inner(l); err != nil {
			return err
		}
		if err := l.unblock(); err != nil {
			return err
		}
		if err := l.session.Synchronize(s.ctx); err != nil {
			return err
		}
		l.StopTimer()
		return nil
	}
}
