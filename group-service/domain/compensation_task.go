package domain

import (
	"time"

	"github.com/draftea/group-coordinator/shared/events"
	"github.com/draftea/group-coordinator/shared/models"
	"github.com/pkg/errors"
)

// CompensationTask is an inverse verb that still has to be applied to one node.
// The ID stays the same across reschedules; Attempt counts delayed executions.
type CompensationTask struct {
	ID          models.ID `json:"id"`
	RunID       models.ID `json:"run_id"`
	GroupID     GroupID   `json:"group_id"`
	Node        Node      `json:"node"`
	Verb        Verb      `json:"verb"`
	Attempt     int       `json:"attempt"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func NewCompensationTask(runID models.ID, groupID GroupID, node Node, verb Verb) *CompensationTask {
	return &CompensationTask{
		ID:          models.GenerateUUID(),
		RunID:       runID,
		GroupID:     groupID,
		Node:        node,
		Verb:        verb,
		Attempt:     1,
		ScheduledAt: time.Now().UTC(),
	}
}

// Next returns the task for the following delayed execution
func (t *CompensationTask) Next() *CompensationTask {
	next := *t
	next.Attempt++
	next.ScheduledAt = time.Now().UTC()
	return &next
}

func (t *CompensationTask) Validate() error {
	if t.Node == "" {
		return errors.New("compensation task node is required")
	}

	if t.Verb != VerbCreate && t.Verb != VerbDelete {
		return errors.Errorf("compensation task verb must be create or delete, got %q", t.Verb)
	}

	return nil
}

// Event wraps the task in the message carried by the delayed-retry queue
func (t *CompensationTask) Event() *events.Event {
	return events.NewEvent(t.RunID, events.CompensationRequestedEvent, t).
		WithCorrelationID(t.ID).
		WithMetadata("node", t.Node.String()).
		WithMetadata("verb", t.Verb.String())
}

// CompensationTaskFromEvent decodes a task carried by a queue message
func CompensationTaskFromEvent(evt *events.Event) (*CompensationTask, error) {
	if evt.Topic != events.CompensationRequestedEvent {
		return nil, errors.Errorf("unexpected topic %q for compensation task", evt.Topic)
	}

	var task CompensationTask
	if err := evt.UnmarshalPayload(&task); err != nil {
		return nil, errors.Wrap(err, "failed to decode compensation task")
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return &task, nil
}
