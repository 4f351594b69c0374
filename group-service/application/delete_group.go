package application

import (
	"context"

	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/pkg/errors"
)

// DeleteGroup use case removes a group from every node or restores it where removed
type DeleteGroup struct {
	saga *GroupSaga
}

func NewDeleteGroup(saga *GroupSaga) *DeleteGroup {
	return &DeleteGroup{saga: saga}
}

func (uc *DeleteGroup) Execute(ctx context.Context, cmd *GroupCommand) (*domain.SagaResult, error) {
	if cmd == nil {
		return nil, errors.New("delete group command is required")
	}

	return uc.saga.DeleteGroup(ctx, domain.GroupID(cmd.GroupID)), nil
}
