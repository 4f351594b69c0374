package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/shared/events"
	"github.com/draftea/group-coordinator/shared/models"
	"github.com/draftea/group-coordinator/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultCompensationDelay = 60 * time.Second

// Compensator undoes the forward verb on nodes committed by a run
type Compensator interface {
	Compensate(ctx context.Context, runID models.ID, groupID domain.GroupID, nodes []domain.Node, inverse domain.Verb) []domain.Node
}

var _ Compensator = (*CompensationScheduler)(nil)

// CompensationScheduler attempts each inverse once and hands every failure to
// the delayed-retry queue. It never blocks on the queue and never returns an error.
type CompensationScheduler struct {
	client    domain.NodeClient
	queue     domain.CompensationQueue
	publisher events.Publisher
	delay     time.Duration
	logger    *slog.Logger
}

func NewCompensationScheduler(
	client domain.NodeClient,
	queue domain.CompensationQueue,
	publisher events.Publisher,
	delay time.Duration,
	logger *slog.Logger,
) *CompensationScheduler {
	if delay <= 0 {
		delay = DefaultCompensationDelay
	}

	return &CompensationScheduler{
		client:    client,
		queue:     queue,
		publisher: publisher,
		delay:     delay,
		logger:    logger.With("module", "compensation_scheduler"),
	}
}

// Compensate applies inverse to every node, in the given order, and returns the
// nodes that were compensated immediately.
func (s *CompensationScheduler) Compensate(
	ctx context.Context,
	runID models.ID,
	groupID domain.GroupID,
	nodes []domain.Node,
	inverse domain.Verb,
) []domain.Node {
	compensated := make([]domain.Node, 0, len(nodes))

	for _, node := range nodes {
		outcome := s.client.Attempt(ctx, inverse, node, groupID)
		if outcome == domain.OutcomeSuccess {
			s.logger.InfoContext(ctx, "Node compensated",
				"run_id", runID, "group_id", groupID, "node", node, "verb", inverse)
			recordCompensation(ctx, inverse, "immediate_success")
			compensated = append(compensated, node)
			continue
		}

		s.logger.WarnContext(ctx, "Compensation failed, scheduling delayed retry",
			"run_id", runID, "group_id", groupID, "node", node, "verb", inverse,
			"outcome", outcome, "delay", s.delay)

		task := domain.NewCompensationTask(runID, groupID, node, inverse)
		if err := s.Schedule(ctx, task); err != nil {
			s.logger.ErrorContext(ctx, "Failed to schedule compensation task",
				"run_id", runID, "group_id", groupID, "node", node, "verb", inverse,
				"task_id", task.ID, "error", err)
		}
	}

	return compensated
}

// Schedule submits task to the delayed-retry queue
func (s *CompensationScheduler) Schedule(ctx context.Context, task *domain.CompensationTask) error {
	if err := s.queue.ScheduleAfter(ctx, s.delay, task); err != nil {
		recordCompensation(ctx, task.Verb, "enqueue_failed")
		return errors.Wrapf(err, "failed to enqueue compensation task %s", task.ID)
	}

	recordCompensation(ctx, task.Verb, "scheduled")
	publish(ctx, s.publisher, s.logger, events.NewEvent(task.RunID, events.CompensationScheduledEvent, task).
		WithCorrelationID(task.ID))
	return nil
}

func recordCompensation(ctx context.Context, verb domain.Verb, result string) {
	telemetry.RecordCounter(ctx, "group_compensations_total", "Compensation attempts by verb and result", 1,
		attribute.String("verb", verb.String()),
		attribute.String("result", result),
	)
}

// publish never fails the caller, events are informational
func publish(ctx context.Context, publisher events.Publisher, logger *slog.Logger, evts ...*events.Event) {
	if err := publisher.Publish(ctx, evts...); err != nil {
		topics := make([]string, 0, len(evts))
		for _, evt := range evts {
			topics = append(topics, evt.Topic.String())
		}
		logger.WarnContext(ctx, "Failed to publish events", "topics", topics, "error", err)
	}
}
