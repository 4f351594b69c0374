package saga

import (
	"github.com/pkg/errors"
)

// SagaStatus is the state of a single saga run.
//
//	idle -> forward_pass -> committed    -> done
//	                     -> compensating -> done
type SagaStatus string

const (
	SagaStatusIdle         SagaStatus = "idle"
	SagaStatusForwardPass  SagaStatus = "forward_pass"
	SagaStatusCommitted    SagaStatus = "committed"
	SagaStatusCompensating SagaStatus = "compensating"
	SagaStatusDone         SagaStatus = "done"
)

var transitions = map[SagaStatus][]SagaStatus{
	SagaStatusIdle:         {SagaStatusForwardPass},
	SagaStatusForwardPass:  {SagaStatusCommitted, SagaStatusCompensating, SagaStatusDone},
	SagaStatusCommitted:    {SagaStatusDone},
	SagaStatusCompensating: {SagaStatusDone},
}

// CanTransition reports whether a run may move from one status to another.
// forward_pass -> done covers a run that stops without altering anything
// that needs undoing (a confirmed already-existing group).
func CanTransition(from, to SagaStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateMachine tracks the status of one run. It is not safe for concurrent use;
// a run is owned by exactly one call.
type StateMachine struct {
	status  SagaStatus
	history []SagaStatus
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		status:  SagaStatusIdle,
		history: []SagaStatus{SagaStatusIdle},
	}
}

func (m *StateMachine) Status() SagaStatus {
	return m.status
}

// History returns every status the run has been in, oldest first.
func (m *StateMachine) History() []SagaStatus {
	return append([]SagaStatus(nil), m.history...)
}

func (m *StateMachine) Transition(to SagaStatus) error {
	if !CanTransition(m.status, to) {
		return errors.Errorf("invalid saga transition %s -> %s", m.status, to)
	}
	m.status = to
	m.history = append(m.history, to)
	return nil
}
