package domain

import (
	"github.com/pkg/errors"
)

var (
	ErrGroupAlreadyExists              = errors.New("group id already exists")
	ErrFailedToCreateGroupInAllNodes   = errors.New("failed to create group in all the nodes")
	ErrFailedToDeleteGroupFromAllNodes = errors.New("failed to delete group from all nodes")
)

// failureFor returns the error reported when the forward pass of op fails
func failureFor(op Verb) error {
	if op == VerbDelete {
		return ErrFailedToDeleteGroupFromAllNodes
	}
	return ErrFailedToCreateGroupInAllNodes
}
