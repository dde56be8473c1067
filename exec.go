package kbench

// Exec resolves the requested tag set against the state's configuration and
// runs the selected measurement strategies over the launcher. Results are
// recorded into the state; Exec itself returns only misuse and device
// errors.
//
// Resolution happens in strict order, each normalization re-entering Exec
// from the top with a strictly more specific tag set (the order is load
// bearing: it fixes the precedence between run-once, blocking-kernel
// disable, and selector defaulting):
//
//  1. Run-once: if the state requests run-once and the tags don't carry it,
//     re-enter with the modifiers plus cold|run_once. Run-once implies the
//     cold strategy and drops every other selector.
//  2. Blocking kernel: if the state disables the blocking kernel and the
//     tags don't carry no_block, re-enter with it added.
//  3. Selector defaulting: with no selector present, timer or sync imply
//     cold only (hot is incompatible with both); otherwise run cold and hot
//     back to back.
//  4. Skip: a skipped state performs zero measurement.
//  5. Dispatch: run the cold and/or hot strategy for each selector bit
//     present. Cold wraps the launcher in the timing adapter unless the
//     launcher is self-timing (Timer).
//
// Invalid tag sets (bits outside the vocabulary, hot combined with timer or
// sync) are rejected with ErrUnknownTag or ErrIncompatibleTags before any
// normalization or measurement work.
func (s *State) Exec(tags Tag, launch Launcher) error {
	if err := validate(tags); err != nil {
		return err
	}
	if launch == nil {
		return ErrNilLauncher
	}

	if !tags.Has(RunOnce) && s.runOnce {
		next := tags.Modifiers() | Cold | RunOnce
		Logger().Debug("folding run-once request into tags",
			"bench", s.name, "tags", tags, "resolved", next)
		return s.Exec(next, launch)
	}

	if !tags.Has(NoBlock) && s.disableBlockingKernel {
		Logger().Debug("folding blocking-kernel disable into tags",
			"bench", s.name, "tags", tags, "resolved", tags|NoBlock)
		return s.Exec(tags|NoBlock, launch)
	}

	if tags.Measures() == 0 {
		var next Tag
		if tags.Has(Timer | Sync) {
			// Manual timing and explicit synchronization only make sense
			// for cold measurement.
			next = Cold | tags
		} else {
			next = Cold | Hot | tags
		}
		Logger().Debug("defaulting measurement selectors",
			"bench", s.name, "tags", tags, "resolved", next)
		return s.Exec(next, launch)
	}

	if s.skipped {
		Logger().Debug("benchmark skipped",
			"bench", s.name, "reason", s.skipReason)
		return nil
	}

	cfg := measureConfig{
		useBlockingKernel: !tags.Has(NoBlock),
		runOnce:           tags.Has(RunOnce),
	}

	if tags.Has(Cold) {
		l := launch
		if !tags.Has(Timer) {
			// Non-timer launchers don't report their own elapsed time, so
			// cold measurement injects the timing adapter around the launch.
			l = s.wrap(s, launch)
		}
		if err := s.newCold(s, l, cfg).run(); err != nil {
			return err
		}
	}

	if tags.Has(Hot) {
		// validate rejected hot|timer and hot|sync; the raw launcher is
		// always safe here.
		if err := s.newHot(s, launch, cfg).run(); err != nil {
			return err
		}
	}

	return nil
}
