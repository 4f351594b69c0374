package domain

import (
	"time"

	"github.com/draftea/group-coordinator/shared/models"
	"github.com/draftea/group-coordinator/shared/saga"
	"github.com/pkg/errors"
)

// SagaRun is the state of one CreateGroup or DeleteGroup call. It lives only
// for the duration of the call and is owned by it.
type SagaRun struct {
	ID         models.ID
	GroupID    GroupID
	Operation  Verb
	StartedAt  time.Time
	FailedNode Node

	state     *saga.StateMachine
	committed []Node
}

func NewSagaRun(groupID GroupID, operation Verb) *SagaRun {
	return &SagaRun{
		ID:        models.GenerateUUID(),
		GroupID:   groupID,
		Operation: operation,
		StartedAt: time.Now(),
		state:     saga.NewStateMachine(),
	}
}

func (r *SagaRun) Status() saga.SagaStatus {
	return r.state.Status()
}

func (r *SagaRun) History() []saga.SagaStatus {
	return r.state.History()
}

func (r *SagaRun) Transition(to saga.SagaStatus) error {
	return r.state.Transition(to)
}

// Commit records that the forward verb succeeded on node
func (r *SagaRun) Commit(node Node) error {
	if r.state.Status() != saga.SagaStatusForwardPass {
		return errors.Errorf("cannot commit node %s while saga is %s", node, r.state.Status())
	}
	r.committed = append(r.committed, node)
	return nil
}

// Committed returns the committed nodes in commit order
func (r *SagaRun) Committed() []Node {
	return append([]Node(nil), r.committed...)
}

// CompensationTargets returns the nodes to undo, most recent first.
// With lastOnly only the most recently committed node is returned.
func (r *SagaRun) CompensationTargets(lastOnly bool) []Node {
	if len(r.committed) == 0 {
		return nil
	}

	if lastOnly {
		return []Node{r.committed[len(r.committed)-1]}
	}

	targets := make([]Node, 0, len(r.committed))
	for i := len(r.committed) - 1; i >= 0; i-- {
		targets = append(targets, r.committed[i])
	}
	return targets
}

// SagaResult is the tagged result of a saga run
type SagaResult struct {
	RunID       models.ID     `json:"run_id"`
	GroupID     GroupID       `json:"group_id"`
	Operation   Verb          `json:"operation"`
	Verdict     Verdict       `json:"verdict"`
	Committed   []Node        `json:"committed,omitempty"`
	FailedNode  Node          `json:"failed_node,omitempty"`
	Compensated []Node        `json:"compensated,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Err maps the verdict to the matching sentinel error, nil for VerdictOK
func (r *SagaResult) Err() error {
	switch r.Verdict {
	case VerdictOK:
		return nil
	case VerdictAlreadyExists:
		return errors.Wrapf(ErrGroupAlreadyExists, "group %s on node %s", r.GroupID, r.FailedNode)
	default:
		if r.FailedNode == "" {
			return errors.Wrapf(failureFor(r.Operation), "group %s: %s", r.GroupID, r.Reason)
		}
		return errors.Wrapf(failureFor(r.Operation), "group %s failed on node %s", r.GroupID, r.FailedNode)
	}
}
