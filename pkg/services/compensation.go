package services

import (
	"fmt"

	"github.com/rs/zerolog"
)

// step is one unit of a multi-write operation that has no surrounding
// database transaction. apply performs the write; undo reverses it. Undo
// must be idempotent and safe to run even if apply only partially took
// effect (reversing a create deletes, reversing an update restores the
// captured prior state exactly).
type step struct {
	name  string
	apply func() error
	undo  func() error
}

// runSteps applies steps in order. On failure it runs the undos of every
// applied step in reverse order, then returns the original error. If any
// undo itself fails, the returned compensation error is non-nil: the
// caller must log it as a critical inconsistency and raise a
// reconciliation alert, never swallow it.
func runSteps(logger zerolog.Logger, steps []step) (err error, compensationErr error) {
	applied := make([]step, 0, len(steps))

	for _, s := range steps {
		if applyErr := s.apply(); applyErr != nil {
			logger.Warn().Err(applyErr).Str("step", s.name).Msg("Step failed, compensating")
			return applyErr, undoAll(logger, applied)
		}
		applied = append(applied, s)
	}

	return nil, nil
}

// undoAll reverses applied steps newest first, collecting undo failures
func undoAll(logger zerolog.Logger, applied []step) error {
	var failed error
	for i := len(applied) - 1; i >= 0; i-- {
		s := applied[i]
		if undoErr := s.undo(); undoErr != nil {
			logger.Error().Err(undoErr).Str("step", s.name).Msg("Compensation step failed")
			if failed == nil {
				failed = fmt.Errorf("undo %s: %w", s.name, undoErr)
			} else {
				failed = fmt.Errorf("%w; undo %s: %v", failed, s.name, undoErr)
			}
		}
	}
	return failed
}
