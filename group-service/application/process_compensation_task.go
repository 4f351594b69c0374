package application

import (
	"context"
	"log/slog"

	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/shared/events"
	"github.com/pkg/errors"
)

// Scheduler hands a compensation task to the delayed-retry queue
type Scheduler interface {
	Schedule(ctx context.Context, task *domain.CompensationTask) error
}

var _ Scheduler = (*CompensationScheduler)(nil)

// ProcessCompensationTask executes a due compensation task once. A failed task
// is rescheduled with the next attempt number until maxAttempts is reached;
// zero maxAttempts reschedules forever.
type ProcessCompensationTask struct {
	client      domain.NodeClient
	scheduler   Scheduler
	publisher   events.Publisher
	maxAttempts int
	logger      *slog.Logger
}

func NewProcessCompensationTask(
	client domain.NodeClient,
	scheduler Scheduler,
	publisher events.Publisher,
	maxAttempts int,
	logger *slog.Logger,
) *ProcessCompensationTask {
	return &ProcessCompensationTask{
		client:      client,
		scheduler:   scheduler,
		publisher:   publisher,
		maxAttempts: maxAttempts,
		logger:      logger.With("module", "compensation_worker"),
	}
}

// Execute returns an error only when a failed task could not be rescheduled,
// so the delivering queue keeps the message
func (uc *ProcessCompensationTask) Execute(ctx context.Context, task *domain.CompensationTask) error {
	if err := task.Validate(); err != nil {
		return errors.Wrap(err, "invalid compensation task")
	}

	logger := uc.logger.With(
		"task_id", task.ID,
		"run_id", task.RunID,
		"group_id", task.GroupID,
		"node", task.Node,
		"verb", task.Verb,
		"attempt", task.Attempt,
	)

	outcome := uc.client.Attempt(ctx, task.Verb, task.Node, task.GroupID)
	if outcome == domain.OutcomeSuccess {
		logger.InfoContext(ctx, "Delayed compensation succeeded")
		recordCompensation(ctx, task.Verb, "completed")
		publish(ctx, uc.publisher, logger, events.NewEvent(task.RunID, events.CompensationCompletedEvent, task).
			WithCorrelationID(task.ID))
		return nil
	}

	if uc.maxAttempts > 0 && task.Attempt >= uc.maxAttempts {
		logger.ErrorContext(ctx, "Compensation abandoned, node needs manual repair",
			"outcome", outcome, "max_attempts", uc.maxAttempts)
		recordCompensation(ctx, task.Verb, "abandoned")
		publish(ctx, uc.publisher, logger, events.NewEvent(task.RunID, events.CompensationAbandonedEvent, task).
			WithCorrelationID(task.ID).
			WithMetadata("last_outcome", outcome.String()))
		return nil
	}

	logger.WarnContext(ctx, "Delayed compensation failed, rescheduling", "outcome", outcome)
	if err := uc.scheduler.Schedule(ctx, task.Next()); err != nil {
		return errors.Wrap(err, "failed to reschedule compensation task")
	}
	return nil
}
