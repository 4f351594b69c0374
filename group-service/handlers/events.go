package handlers

import (
	"context"
	"log/slog"

	"github.com/draftea/group-coordinator/group-service/application"
	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/shared/events"
)

var _ events.EventHandler = (*GroupEventHandlers)(nil)

// GroupEventHandlers consumes the delayed-retry queue
type GroupEventHandlers struct {
	processCompensation *application.ProcessCompensationTask
	logger              *slog.Logger
}

func NewGroupEventHandlers(processCompensation *application.ProcessCompensationTask, logger *slog.Logger) *GroupEventHandlers {
	return &GroupEventHandlers{
		processCompensation: processCompensation,
		logger:              logger.With("module", "event_handlers"),
	}
}

// Handle implements the events.EventHandler interface
func (h *GroupEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	switch event.Topic {
	case events.CompensationRequestedEvent:
		return h.HandleCompensationRequest(ctx, event)
	default:
		h.logger.DebugContext(ctx, "Ignoring event", "topic", event.Topic, "event_id", event.ID)
		return nil
	}
}

// HandlerID returns the unique identifier for this event handler
func (h *GroupEventHandlers) HandlerID() string {
	return "group-coordinator-event-handler"
}

func (h *GroupEventHandlers) HandleCompensationRequest(ctx context.Context, event *events.Event) error {
	task, err := domain.CompensationTaskFromEvent(event)
	if err != nil {
		h.logger.ErrorContext(ctx, "Malformed compensation request", "event_id", event.ID, "error", err)
		return err
	}

	return h.processCompensation.Execute(ctx, task)
}
