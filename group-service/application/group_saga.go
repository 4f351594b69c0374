package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/shared/events"
	"github.com/draftea/group-coordinator/shared/saga"
	"github.com/draftea/group-coordinator/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SagaOptions select between the behaviours seen for conflicts and compensation
type SagaOptions struct {
	// ProbeOnConflict probes the node after a create conflict. When false a
	// conflict is a plain failure at that node.
	ProbeOnConflict bool
	// CompensateLastOnly compensates only the most recently committed node
	CompensateLastOnly bool
	// CompensateOnAlreadyExists undoes the nodes created by the run when another
	// node confirms the group already existed
	CompensateOnAlreadyExists bool
}

func DefaultSagaOptions() SagaOptions {
	return SagaOptions{ProbeOnConflict: true}
}

// SagaStartedPayload is the data of a group.saga.started event
type SagaStartedPayload struct {
	GroupID   domain.GroupID `json:"group_id"`
	Operation domain.Verb    `json:"operation"`
	Nodes     []domain.Node  `json:"nodes"`
}

// NodeCommittedPayload is the data of a group.node.committed event
type NodeCommittedPayload struct {
	GroupID   domain.GroupID `json:"group_id"`
	Operation domain.Verb    `json:"operation"`
	Node      domain.Node    `json:"node"`
}

// GroupSaga runs create and delete across the ordered node list. Each call
// owns its SagaRun; the node list is never modified.
type GroupSaga struct {
	nodes       []domain.Node
	client      domain.NodeClient
	resolver    Resolver
	compensator Compensator
	publisher   events.Publisher
	options     SagaOptions
	logger      *slog.Logger
}

func NewGroupSaga(
	nodes []domain.Node,
	client domain.NodeClient,
	resolver Resolver,
	compensator Compensator,
	publisher events.Publisher,
	options SagaOptions,
	logger *slog.Logger,
) *GroupSaga {
	return &GroupSaga{
		nodes:       append([]domain.Node(nil), nodes...),
		client:      client,
		resolver:    resolver,
		compensator: compensator,
		publisher:   publisher,
		options:     options,
		logger:      logger.With("module", "group_saga"),
	}
}

// Nodes returns a copy of the node list
func (s *GroupSaga) Nodes() []domain.Node {
	return append([]domain.Node(nil), s.nodes...)
}

func (s *GroupSaga) CreateGroup(ctx context.Context, groupID domain.GroupID) *domain.SagaResult {
	return s.run(ctx, domain.VerbCreate, groupID)
}

func (s *GroupSaga) DeleteGroup(ctx context.Context, groupID domain.GroupID) *domain.SagaResult {
	return s.run(ctx, domain.VerbDelete, groupID)
}

func (s *GroupSaga) run(ctx context.Context, op domain.Verb, groupID domain.GroupID) *domain.SagaResult {
	run := domain.NewSagaRun(groupID, op)

	ctx, span := telemetry.StartSpan(ctx, "saga."+op.String())
	defer span.End()
	span.SetAttributes(
		attribute.String("saga.run_id", run.ID.String()),
		attribute.String("group.id", groupID.String()),
		attribute.String("group.operation", op.String()),
	)

	logger := s.logger.With("run_id", run.ID, "group_id", groupID, "operation", op)
	logger.InfoContext(ctx, "Saga started", "nodes", len(s.nodes))

	s.transition(ctx, logger, run, saga.SagaStatusForwardPass)
	publish(ctx, s.publisher, logger, events.NewEvent(run.ID, events.GroupSagaStartedEvent, SagaStartedPayload{
		GroupID:   groupID,
		Operation: op,
		Nodes:     s.Nodes(),
	}))

	result := s.forwardPass(ctx, logger, run)
	result.Duration = time.Since(run.StartedAt)

	span.SetAttributes(attribute.String("saga.verdict", string(result.Verdict)))
	if result.Verdict == domain.VerdictFailed {
		span.SetStatus(codes.Error, result.Reason)
	}

	telemetry.RecordCounter(ctx, "group_saga_runs_total", "Saga runs by operation and verdict", 1,
		attribute.String("operation", op.String()),
		attribute.String("verdict", string(result.Verdict)),
	)
	telemetry.RecordHistogram(ctx, "group_saga_duration_seconds", "Saga run duration", result.Duration.Seconds(),
		attribute.String("operation", op.String()),
	)

	publish(context.WithoutCancel(ctx), s.publisher, logger, events.NewEvent(run.ID, finishedTopic(result.Verdict), result))

	logger.InfoContext(ctx, "Saga finished",
		"verdict", result.Verdict,
		"committed", result.Committed,
		"compensated", result.Compensated,
		"failed_node", result.FailedNode,
		"duration", result.Duration,
	)
	return result
}

func (s *GroupSaga) forwardPass(ctx context.Context, logger *slog.Logger, run *domain.SagaRun) *domain.SagaResult {
	for _, node := range s.nodes {
		if err := ctx.Err(); err != nil {
			logger.WarnContext(ctx, "Forward pass interrupted", "next_node", node, "error", err)
			return s.fail(ctx, logger, run, errors.Wrap(err, "forward pass interrupted").Error())
		}

		outcome := s.client.Attempt(ctx, run.Operation, node, run.GroupID)

		switch {
		case outcome == domain.OutcomeSuccess:
			if err := run.Commit(node); err != nil {
				logger.ErrorContext(ctx, "Failed to record committed node", "node", node, "error", err)
			}
			logger.InfoContext(ctx, "Node committed", "node", node)
			publish(ctx, s.publisher, logger, events.NewEvent(run.ID, events.GroupNodeCommittedEvent, NodeCommittedPayload{
				GroupID:   run.GroupID,
				Operation: run.Operation,
				Node:      node,
			}))
			continue

		case outcome == domain.OutcomeConflict && run.Operation == domain.VerbCreate && s.options.ProbeOnConflict:
			run.FailedNode = node
			if s.resolver.Resolve(ctx, node, run.GroupID) == domain.ResolutionAlreadyPresent {
				return s.alreadyExists(ctx, logger, run)
			}
			return s.fail(ctx, logger, run, "conflict without existing group")

		default:
			run.FailedNode = node
			logger.WarnContext(ctx, "Node failed", "node", node, "outcome", outcome)
			return s.fail(ctx, logger, run, outcome.String())
		}
	}

	s.transition(ctx, logger, run, saga.SagaStatusCommitted)
	s.transition(ctx, logger, run, saga.SagaStatusDone)
	return s.result(run, domain.VerdictOK, nil, "")
}

func (s *GroupSaga) alreadyExists(ctx context.Context, logger *slog.Logger, run *domain.SagaRun) *domain.SagaResult {
	if !s.options.CompensateOnAlreadyExists {
		s.transition(ctx, logger, run, saga.SagaStatusDone)
		return s.result(run, domain.VerdictAlreadyExists, nil, "group already exists")
	}

	compensated := s.compensate(ctx, logger, run)
	return s.result(run, domain.VerdictAlreadyExists, compensated, "group already exists")
}

func (s *GroupSaga) fail(ctx context.Context, logger *slog.Logger, run *domain.SagaRun, reason string) *domain.SagaResult {
	compensated := s.compensate(ctx, logger, run)
	return s.result(run, domain.VerdictFailed, compensated, reason)
}

// compensate runs on a context detached from the caller, so a caller deadline
// never leaves committed nodes behind
func (s *GroupSaga) compensate(ctx context.Context, logger *slog.Logger, run *domain.SagaRun) []domain.Node {
	s.transition(ctx, logger, run, saga.SagaStatusCompensating)
	defer s.transition(ctx, logger, run, saga.SagaStatusDone)

	targets := run.CompensationTargets(s.options.CompensateLastOnly)
	if len(targets) == 0 {
		return nil
	}

	logger.InfoContext(ctx, "Compensating committed nodes", "nodes", targets, "verb", run.Operation.Inverse())
	return s.compensator.Compensate(context.WithoutCancel(ctx), run.ID, run.GroupID, targets, run.Operation.Inverse())
}

func (s *GroupSaga) transition(ctx context.Context, logger *slog.Logger, run *domain.SagaRun, to saga.SagaStatus) {
	if err := run.Transition(to); err != nil {
		logger.ErrorContext(ctx, "Saga transition rejected", "error", err)
	}
}

func (s *GroupSaga) result(run *domain.SagaRun, verdict domain.Verdict, compensated []domain.Node, reason string) *domain.SagaResult {
	return &domain.SagaResult{
		RunID:       run.ID,
		GroupID:     run.GroupID,
		Operation:   run.Operation,
		Verdict:     verdict,
		Committed:   run.Committed(),
		FailedNode:  run.FailedNode,
		Compensated: compensated,
		Reason:      reason,
	}
}

func finishedTopic(verdict domain.Verdict) events.Topic {
	switch verdict {
	case domain.VerdictOK:
		return events.GroupSagaCompletedEvent
	case domain.VerdictAlreadyExists:
		return events.GroupSagaAlreadyExistsEvent
	default:
		return events.GroupSagaFailedEvent
	}
}
