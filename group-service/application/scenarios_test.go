package application

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/group-service/infrastructure"
	"github.com/draftea/group-coordinator/group-service/mocks"
	"github.com/draftea/group-coordinator/group-service/nodetest"
	"github.com/draftea/group-coordinator/shared/events"
	"github.com/draftea/group-coordinator/shared/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// newClusterSaga wires the saga to fake nodes over real HTTP
func newClusterSaga(t *testing.T, cluster []*nodetest.Node, queue domain.CompensationQueue) *GroupSaga {
	logger := logging.Discard()
	client := infrastructure.NewHTTPNodeClient(domain.NoDelayRetryPolicy(3),
		infrastructure.WithNodeClientLogger(logger),
		infrastructure.WithRequestTimeout(time.Second),
	)
	publisher := events.NopPublisher{}
	scheduler := NewCompensationScheduler(client, queue, publisher, time.Minute, logger)
	return NewGroupSaga(nodetest.Hosts(cluster), client, NewIdempotencyResolver(client, logger), scheduler,
		publisher, DefaultSagaOptions(), logger)
}

func TestScenario_CreateFailsOnLastNode(t *testing.T) {
	cluster := nodetest.NewCluster(t, 3)
	a, b, c := cluster[0], cluster[1], cluster[2]
	c.Respond(http.MethodPost, http.StatusInternalServerError)

	result := newClusterSaga(t, cluster, mocks.NewMockCompensationQueue(t)).
		CreateGroup(context.Background(), "example_group_id")

	assert.Equal(t, domain.VerdictFailed, result.Verdict)
	assert.Equal(t, 1, a.Count(http.MethodDelete))
	assert.Equal(t, 1, b.Count(http.MethodDelete))
	assert.Equal(t, 0, c.Count(http.MethodDelete))
	for _, node := range cluster {
		assert.Equal(t, 0, node.Count(http.MethodGet), "a 500 is not a conflict")
	}
}

func TestScenario_CreateConflictWithExistingGroup(t *testing.T) {
	cluster := nodetest.NewCluster(t, 3)
	a, b, c := cluster[0], cluster[1], cluster[2]
	b.Respond(http.MethodPost, http.StatusBadRequest)
	b.Respond(http.MethodGet, http.StatusOK)

	result := newClusterSaga(t, cluster, mocks.NewMockCompensationQueue(t)).
		CreateGroup(context.Background(), "example_group_id")

	assert.Equal(t, domain.VerdictAlreadyExists, result.Verdict)
	assert.Equal(t, 1, b.Count(http.MethodGet))
	assert.Equal(t, 0, a.Count(http.MethodDelete))
	assert.Empty(t, c.Requests())
}

func TestScenario_DeleteFailsAndRecreateIsDeferred(t *testing.T) {
	cluster := nodetest.NewCluster(t, 3)
	a, b, c := cluster[0], cluster[1], cluster[2]
	c.Respond(http.MethodDelete, http.StatusInternalServerError)
	a.Respond(http.MethodPost, http.StatusServiceUnavailable)

	queue := mocks.NewMockCompensationQueue(t)
	queue.EXPECT().ScheduleAfter(mock.Anything, time.Minute, mock.MatchedBy(func(task *domain.CompensationTask) bool {
		return task.Node == a.Host() && task.Verb == domain.VerbCreate && task.GroupID == "example_group_id"
	})).Return(nil).Once()

	result := newClusterSaga(t, cluster, queue).DeleteGroup(context.Background(), "example_group_id")

	assert.Equal(t, domain.VerdictFailed, result.Verdict)
	assert.Equal(t, 1, a.Count(http.MethodPost))
	assert.Equal(t, 1, b.Count(http.MethodPost))
	assert.Equal(t, 0, c.Count(http.MethodPost))
	assert.Equal(t, []domain.Node{b.Host()}, result.Compensated)
}
