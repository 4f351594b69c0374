package infrastructure

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/shared/events"
	"github.com/draftea/group-coordinator/shared/models"
	"github.com/pkg/errors"
)

var (
	_ domain.CompensationQueue = (*MemoryCompensationQueue)(nil)
	_ events.Subscriber        = (*MemoryCompensationQueue)(nil)
)

var ErrQueueClosed = errors.New("compensation queue is closed")

// MemoryCompensationQueue keeps scheduled tasks on in-process timers. Tasks
// are lost on restart; it serves local runs and tests.
type MemoryCompensationQueue struct {
	mu         sync.Mutex
	ctx        context.Context
	handler    events.EventHandler
	timers     map[models.ID]*time.Timer
	waiting    []*events.Event
	closed     bool
	retryDelay time.Duration
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewMemoryCompensationQueue creates a queue that redelivers a failed task after retryDelay
func NewMemoryCompensationQueue(retryDelay time.Duration, logger *slog.Logger) *MemoryCompensationQueue {
	return &MemoryCompensationQueue{
		timers:     make(map[models.ID]*time.Timer),
		retryDelay: retryDelay,
		logger:     logger.With("module", "memory_compensation_queue"),
	}
}

func (q *MemoryCompensationQueue) ScheduleAfter(_ context.Context, delay time.Duration, task *domain.CompensationTask) error {
	if err := task.Validate(); err != nil {
		return err
	}
	return q.enqueue(delay, task.Event())
}

// Subscribe sets the handler for due tasks, delivering those already due
func (q *MemoryCompensationQueue) Subscribe(ctx context.Context, handler events.EventHandler) error {
	q.mu.Lock()
	if q.handler != nil {
		q.mu.Unlock()
		return errors.New("subscriber is already running")
	}
	q.ctx = ctx
	q.handler = handler
	waiting := q.waiting
	q.waiting = nil
	q.mu.Unlock()

	for _, evt := range waiting {
		if err := q.enqueue(0, evt); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the number of tasks not yet handled successfully
func (q *MemoryCompensationQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers) + len(q.waiting)
}

// Close drops tasks that are not due yet and waits for running deliveries
func (q *MemoryCompensationQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	for id, timer := range q.timers {
		if timer.Stop() {
			q.wg.Done()
		}
		delete(q.timers, id)
	}
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

func (q *MemoryCompensationQueue) enqueue(delay time.Duration, evt *events.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.wg.Add(1)
	q.timers[evt.ID] = time.AfterFunc(delay, func() { q.fire(evt) })
	return nil
}

func (q *MemoryCompensationQueue) fire(evt *events.Event) {
	defer q.wg.Done()

	q.mu.Lock()
	delete(q.timers, evt.ID)
	handler, ctx := q.handler, q.ctx
	if handler == nil {
		q.waiting = append(q.waiting, evt)
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	if err := handler.Handle(ctx, evt); err != nil {
		q.logger.WarnContext(ctx, "Compensation task failed, redelivering",
			"event_id", evt.ID, "retry_in", q.retryDelay, "error", err)
		if err := q.enqueue(q.retryDelay, evt); err != nil {
			q.logger.ErrorContext(ctx, "Compensation task dropped", "event_id", evt.ID, "error", err)
		}
	}
}
