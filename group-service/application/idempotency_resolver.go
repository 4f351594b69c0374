package application

import (
	"context"
	"log/slog"

	"github.com/draftea/group-coordinator/group-service/domain"
)

// Resolver decides whether a create conflict means the group is already there
type Resolver interface {
	Resolve(ctx context.Context, node domain.Node, groupID domain.GroupID) domain.Resolution
}

var _ Resolver = (*IdempotencyResolver)(nil)

// IdempotencyResolver probes the node that rejected a create
type IdempotencyResolver struct {
	client domain.NodeClient
	logger *slog.Logger
}

func NewIdempotencyResolver(client domain.NodeClient, logger *slog.Logger) *IdempotencyResolver {
	return &IdempotencyResolver{
		client: client,
		logger: logger.With("module", "idempotency_resolver"),
	}
}

func (r *IdempotencyResolver) Resolve(ctx context.Context, node domain.Node, groupID domain.GroupID) domain.Resolution {
	outcome := r.client.Attempt(ctx, domain.VerbProbe, node, groupID)
	if outcome == domain.OutcomeSuccess {
		r.logger.InfoContext(ctx, "Group already present on node", "node", node, "group_id", groupID)
		return domain.ResolutionAlreadyPresent
	}

	r.logger.WarnContext(ctx, "Create conflict but group not found on node",
		"node", node, "group_id", groupID, "probe_outcome", outcome)
	return domain.ResolutionGenuinelyAbsent
}
