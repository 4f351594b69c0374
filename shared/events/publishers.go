package events

import (
	"context"
	"errors"
)

var _ Publisher = (*FanOutPublisher)(nil)
var _ Publisher = NopPublisher{}

// FanOutPublisher delivers every event to all of its publishers. Each publisher
// is attempted even when an earlier one fails; the errors are joined.
type FanOutPublisher struct {
	publishers []Publisher
}

func NewFanOutPublisher(publishers ...Publisher) *FanOutPublisher {
	return &FanOutPublisher{publishers: publishers}
}

func (p *FanOutPublisher) Publish(ctx context.Context, evts ...*Event) error {
	if len(evts) == 0 {
		return nil
	}

	var errs []error
	for _, publisher := range p.publishers {
		if err := publisher.Publish(ctx, evts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopPublisher drops events
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...*Event) error { return nil }
