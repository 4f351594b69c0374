package application

import (
	"context"

	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/pkg/errors"
)

// GroupCommand names the group to create or delete
type GroupCommand struct {
	GroupID string `json:"groupId" validate:"required"`
}

// CreateGroup use case creates a group on every node or on none
type CreateGroup struct {
	saga *GroupSaga
}

func NewCreateGroup(saga *GroupSaga) *CreateGroup {
	return &CreateGroup{saga: saga}
}

// Execute runs the create saga. The returned error only reports an unusable
// command; the saga outcome is carried by the result verdict.
func (uc *CreateGroup) Execute(ctx context.Context, cmd *GroupCommand) (*domain.SagaResult, error) {
	if cmd == nil {
		return nil, errors.New("create group command is required")
	}

	return uc.saga.CreateGroup(ctx, domain.GroupID(cmd.GroupID)), nil
}
