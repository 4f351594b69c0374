package domain

import (
	"context"
	"time"
)

// Node is an opaque host identifier, e.g. "10.0.0.4:8080"
type Node string

func (n Node) String() string {
	return string(n)
}

// GroupID identifies the group resource. It is passed to the nodes untouched.
type GroupID string

func (g GroupID) String() string {
	return string(g)
}

// Verb is an operation the coordinator can perform against a node
type Verb string

const (
	VerbCreate Verb = "create"
	VerbDelete Verb = "delete"
	VerbProbe  Verb = "probe"
)

// Inverse returns the compensating verb. Probe has no inverse.
func (v Verb) Inverse() Verb {
	switch v {
	case VerbCreate:
		return VerbDelete
	case VerbDelete:
		return VerbCreate
	default:
		return ""
	}
}

func (v Verb) String() string {
	return string(v)
}

// Outcome is the result of a single (node, verb) attempt
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeConflict         Outcome = "conflict"
	OutcomeTransientFailure Outcome = "transient_failure"
	OutcomePermanentFailure Outcome = "permanent_failure"
)

func (o Outcome) String() string {
	return string(o)
}

// Resolution is the answer to "what does a create conflict mean on this node"
type Resolution string

const (
	ResolutionAlreadyPresent  Resolution = "already_present"
	ResolutionGenuinelyAbsent Resolution = "genuinely_absent"
)

// Verdict is the single group-level result of a saga run
type Verdict string

const (
	VerdictOK            Verdict = "ok"
	VerdictAlreadyExists Verdict = "already_exists"
	VerdictFailed        Verdict = "failed"
)

// NodeClient executes one verb against one node.
type NodeClient interface {
	Attempt(ctx context.Context, verb Verb, node Node, groupID GroupID) Outcome
}

// CompensationQueue runs compensation tasks again after a delay.
// Delivery is at-least-once.
type CompensationQueue interface {
	ScheduleAfter(ctx context.Context, delay time.Duration, task *CompensationTask) error
}
