package application

import (
	"context"
	"testing"
	"time"

	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/group-service/mocks"
	"github.com/draftea/group-coordinator/shared/events"
	"github.com/draftea/group-coordinator/shared/logging"
	"github.com/draftea/group-coordinator/shared/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCompensationScheduler_Compensate(t *testing.T) {
	runID := models.GenerateUUID()

	tests := []struct {
		name                string
		nodes               []domain.Node
		inverse             domain.Verb
		setupMocks          func(*mocks.MockNodeClient, *mocks.MockCompensationQueue)
		expectedCompensated []domain.Node
	}{
		{
			name:    "every inverse succeeds",
			nodes:   []domain.Node{nodeB, nodeA},
			inverse: domain.VerbDelete,
			setupMocks: func(client *mocks.MockNodeClient, queue *mocks.MockCompensationQueue) {
				expectAttempt(client, domain.VerbDelete, nodeB, domain.OutcomeSuccess)
				expectAttempt(client, domain.VerbDelete, nodeA, domain.OutcomeSuccess)
			},
			expectedCompensated: []domain.Node{nodeB, nodeA},
		},
		{
			name:    "each failed inverse is scheduled once and the rest continue",
			nodes:   []domain.Node{nodeC, nodeB, nodeA},
			inverse: domain.VerbCreate,
			setupMocks: func(client *mocks.MockNodeClient, queue *mocks.MockCompensationQueue) {
				expectAttempt(client, domain.VerbCreate, nodeC, domain.OutcomeTransientFailure)
				expectAttempt(client, domain.VerbCreate, nodeB, domain.OutcomeSuccess)
				expectAttempt(client, domain.VerbCreate, nodeA, domain.OutcomePermanentFailure)
				queue.EXPECT().ScheduleAfter(mock.Anything, time.Minute, mock.MatchedBy(func(task *domain.CompensationTask) bool {
					return task.RunID == runID && task.Node == nodeC && task.Verb == domain.VerbCreate
				})).Return(nil).Once()
				queue.EXPECT().ScheduleAfter(mock.Anything, time.Minute, mock.MatchedBy(func(task *domain.CompensationTask) bool {
					return task.RunID == runID && task.Node == nodeA && task.Verb == domain.VerbCreate
				})).Return(nil).Once()
			},
			expectedCompensated: []domain.Node{nodeB},
		},
		{
			name:    "queue failure is swallowed",
			nodes:   []domain.Node{nodeA},
			inverse: domain.VerbDelete,
			setupMocks: func(client *mocks.MockNodeClient, queue *mocks.MockCompensationQueue) {
				expectAttempt(client, domain.VerbDelete, nodeA, domain.OutcomeTransientFailure)
				queue.EXPECT().ScheduleAfter(mock.Anything, time.Minute, mock.Anything).
					Return(errors.New("connection reset")).Once()
			},
			expectedCompensated: []domain.Node{},
		},
		{
			name:                "nothing to compensate",
			nodes:               nil,
			inverse:             domain.VerbDelete,
			setupMocks:          func(*mocks.MockNodeClient, *mocks.MockCompensationQueue) {},
			expectedCompensated: []domain.Node{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mocks.NewMockNodeClient(t)
			queue := mocks.NewMockCompensationQueue(t)
			tt.setupMocks(client, queue)

			scheduler := NewCompensationScheduler(client, queue, events.NopPublisher{}, time.Minute, logging.Discard())
			compensated := scheduler.Compensate(context.Background(), runID, groupID, tt.nodes, tt.inverse)

			assert.Equal(t, tt.expectedCompensated, compensated)
		})
	}
}

func TestCompensationScheduler_DefaultDelay(t *testing.T) {
	queue := mocks.NewMockCompensationQueue(t)
	queue.EXPECT().ScheduleAfter(mock.Anything, DefaultCompensationDelay, mock.Anything).Return(nil).Once()

	scheduler := NewCompensationScheduler(mocks.NewMockNodeClient(t), queue, events.NopPublisher{}, 0, logging.Discard())

	require.NoError(t, scheduler.Schedule(context.Background(), domain.NewCompensationTask("run", groupID, nodeA, domain.VerbDelete)))
}

func TestProcessCompensationTask_Execute(t *testing.T) {
	tests := []struct {
		name          string
		task          *domain.CompensationTask
		maxAttempts   int
		setupMocks    func(*mocks.MockNodeClient, *mocks.MockCompensationQueue, *mocks.MockPublisher)
		expectedError string
	}{
		{
			name:        "successful retry publishes completion",
			task:        domain.NewCompensationTask("run-1", groupID, nodeA, domain.VerbDelete),
			maxAttempts: 0,
			setupMocks: func(client *mocks.MockNodeClient, queue *mocks.MockCompensationQueue, publisher *mocks.MockPublisher) {
				expectAttempt(client, domain.VerbDelete, nodeA, domain.OutcomeSuccess)
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(func(evt *events.Event) bool {
					return evt.Topic == events.CompensationCompletedEvent
				})).Return(nil).Once()
			},
		},
		{
			name:        "failed retry is rescheduled with the next attempt",
			task:        domain.NewCompensationTask("run-1", groupID, nodeA, domain.VerbCreate),
			maxAttempts: 0,
			setupMocks: func(client *mocks.MockNodeClient, queue *mocks.MockCompensationQueue, publisher *mocks.MockPublisher) {
				expectAttempt(client, domain.VerbCreate, nodeA, domain.OutcomePermanentFailure)
				queue.EXPECT().ScheduleAfter(mock.Anything, time.Minute, mock.MatchedBy(func(task *domain.CompensationTask) bool {
					return task.Attempt == 2 && task.Verb == domain.VerbCreate && task.Node == nodeA
				})).Return(nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(func(evt *events.Event) bool {
					return evt.Topic == events.CompensationScheduledEvent
				})).Return(nil).Once()
			},
		},
		{
			name:        "reschedule failure is returned so the message is redelivered",
			task:        domain.NewCompensationTask("run-1", groupID, nodeA, domain.VerbDelete),
			maxAttempts: 5,
			setupMocks: func(client *mocks.MockNodeClient, queue *mocks.MockCompensationQueue, publisher *mocks.MockPublisher) {
				expectAttempt(client, domain.VerbDelete, nodeA, domain.OutcomeTransientFailure)
				queue.EXPECT().ScheduleAfter(mock.Anything, time.Minute, mock.Anything).
					Return(errors.New("queue unavailable")).Once()
			},
			expectedError: "failed to reschedule compensation task",
		},
		{
			name: "exhausted task is abandoned",
			task: func() *domain.CompensationTask {
				task := domain.NewCompensationTask("run-1", groupID, nodeA, domain.VerbDelete)
				task.Attempt = 3
				return task
			}(),
			maxAttempts: 3,
			setupMocks: func(client *mocks.MockNodeClient, queue *mocks.MockCompensationQueue, publisher *mocks.MockPublisher) {
				expectAttempt(client, domain.VerbDelete, nodeA, domain.OutcomePermanentFailure)
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(func(evt *events.Event) bool {
					value, _ := evt.Metadata.Get("last_outcome")
					return evt.Topic == events.CompensationAbandonedEvent && value == "permanent_failure"
				})).Return(nil).Once()
			},
		},
		{
			name:          "invalid task is rejected without calling the node",
			task:          domain.NewCompensationTask("run-1", groupID, nodeA, domain.VerbProbe),
			setupMocks:    func(*mocks.MockNodeClient, *mocks.MockCompensationQueue, *mocks.MockPublisher) {},
			expectedError: "invalid compensation task",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mocks.NewMockNodeClient(t)
			queue := mocks.NewMockCompensationQueue(t)
			publisher := mocks.NewMockPublisher(t)
			tt.setupMocks(client, queue, publisher)

			logger := logging.Discard()
			scheduler := NewCompensationScheduler(client, queue, publisher, time.Minute, logger)
			uc := NewProcessCompensationTask(client, scheduler, publisher, tt.maxAttempts, logger)

			err := uc.Execute(context.Background(), tt.task)

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestIdempotencyResolver_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		probe    domain.Outcome
		expected domain.Resolution
	}{
		{name: "present", probe: domain.OutcomeSuccess, expected: domain.ResolutionAlreadyPresent},
		{name: "absent", probe: domain.OutcomePermanentFailure, expected: domain.ResolutionGenuinelyAbsent},
		{name: "unreachable", probe: domain.OutcomeTransientFailure, expected: domain.ResolutionGenuinelyAbsent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mocks.NewMockNodeClient(t)
			expectAttempt(client, domain.VerbProbe, nodeB, tt.probe)

			resolver := NewIdempotencyResolver(client, logging.Discard())

			assert.Equal(t, tt.expected, resolver.Resolve(context.Background(), nodeB, groupID))
		})
	}
}

func TestGroupUseCases(t *testing.T) {
	client := mocks.NewMockNodeClient(t)
	client.EXPECT().Attempt(mock.Anything, mock.Anything, mock.Anything, groupID).Return(domain.OutcomeSuccess)

	s := newTestSaga(client, mocks.NewMockCompensationQueue(t), events.NopPublisher{}, DefaultSagaOptions())

	created, err := NewCreateGroup(s).Execute(context.Background(), &GroupCommand{GroupID: groupID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictOK, created.Verdict)
	assert.Equal(t, domain.VerbCreate, created.Operation)

	deleted, err := NewDeleteGroup(s).Execute(context.Background(), &GroupCommand{GroupID: groupID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictOK, deleted.Verdict)
	assert.Equal(t, domain.VerbDelete, deleted.Operation)

	_, err = NewCreateGroup(s).Execute(context.Background(), nil)
	assert.Error(t, err)
}
