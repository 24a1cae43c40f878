package printer

import (
	"log/slog"

	"github.com/seantiz/bambubridge/internal/model"
)

// IdleState is the resting state. It accepts no print commands.
type IdleState struct {
	baseState
}

func NewIdleState(host Host, logger *slog.Logger) *IdleState {
	return &IdleState{baseState: newBaseState(StateIdle, host, logger)}
}

// FinishedState marks the end of a print reported by the device and hands
// straight back to idle with its outcome.
type FinishedState struct {
	baseState
	outcome model.Outcome
}

// NewFinishedState creates a finished state that hands off outcome, which
// is OutcomeCompleted or OutcomeFailed.
func NewFinishedState(host Host, logger *slog.Logger, outcome model.Outcome) *FinishedState {
	return &FinishedState{
		baseState: newBaseState(StateFinished, host, logger),
		outcome:   outcome,
	}
}

func (s *FinishedState) Init() error {
	if s.outcome == model.OutcomeFailed {
		s.host.Announce("Print failed")
	} else {
		s.host.Announce("Done printing file")
	}
	s.host.Handoff(s, s.outcome, nil)
	return nil
}
