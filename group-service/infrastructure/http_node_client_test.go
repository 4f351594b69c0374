package infrastructure

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/group-service/nodetest"
	"github.com/draftea/group-coordinator/shared/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func newTestNodeClient(opts ...HTTPNodeClientOption) *HTTPNodeClient {
	opts = append([]HTTPNodeClientOption{WithNodeClientLogger(logging.Discard())}, opts...)
	return NewHTTPNodeClient(domain.NoDelayRetryPolicy(3), opts...)
}

func TestHTTPNodeClient_Attempt(t *testing.T) {
	tests := []struct {
		name     string
		verb     domain.Verb
		method   string
		status   int
		expected domain.Outcome
	}{
		{name: "create succeeds with 201", verb: domain.VerbCreate, method: http.MethodPost, status: http.StatusCreated, expected: domain.OutcomeSuccess},
		{name: "create conflicts with 400", verb: domain.VerbCreate, method: http.MethodPost, status: http.StatusBadRequest, expected: domain.OutcomeConflict},
		{name: "create with 409 is a failure", verb: domain.VerbCreate, method: http.MethodPost, status: http.StatusConflict, expected: domain.OutcomePermanentFailure},
		{name: "create fails with 500", verb: domain.VerbCreate, method: http.MethodPost, status: http.StatusInternalServerError, expected: domain.OutcomePermanentFailure},
		{name: "create with 200 is not a success", verb: domain.VerbCreate, method: http.MethodPost, status: http.StatusOK, expected: domain.OutcomePermanentFailure},
		{name: "delete succeeds with 200", verb: domain.VerbDelete, method: http.MethodDelete, status: http.StatusOK, expected: domain.OutcomeSuccess},
		{name: "delete with 400 is a failure", verb: domain.VerbDelete, method: http.MethodDelete, status: http.StatusBadRequest, expected: domain.OutcomePermanentFailure},
		{name: "delete fails with 503", verb: domain.VerbDelete, method: http.MethodDelete, status: http.StatusServiceUnavailable, expected: domain.OutcomePermanentFailure},
		{name: "probe finds group", verb: domain.VerbProbe, method: http.MethodGet, status: http.StatusOK, expected: domain.OutcomeSuccess},
		{name: "probe misses group", verb: domain.VerbProbe, method: http.MethodGet, status: http.StatusNotFound, expected: domain.OutcomePermanentFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := nodetest.NewNode(t).Respond(tt.method, tt.status)
			client := newTestNodeClient()

			outcome := client.Attempt(context.Background(), tt.verb, node.Host(), "example_group_id")

			assert.Equal(t, tt.expected, outcome)
			requests := node.Requests()
			require.Len(t, requests, 1, "HTTP responses must not be retried")
			assert.Equal(t, tt.method, requests[0].Method)
			assert.Equal(t, "example_group_id", requests[0].GroupID)
		})
	}
}

func TestHTTPNodeClient_WireFormat(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()
		if r.Method == http.MethodPost {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestNodeClient()
	node := domain.Node(server.URL)
	ctx := context.Background()

	client.Attempt(ctx, domain.VerbCreate, node, "a b&c")
	client.Attempt(ctx, domain.VerbDelete, node, "a b&c")
	client.Attempt(ctx, domain.VerbProbe, node, "a b&c")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /v1/group",
		"DELETE /v1/group?groupId=a+b%26c",
		"GET /v1/group?groupId=a+b%26c",
	}, seen)
}

func TestHTTPNodeClient_RetriesNetworkErrors(t *testing.T) {
	var calls atomic.Int32
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	})

	client := newTestNodeClient(WithHTTPClient(&http.Client{Transport: transport}))

	outcome := client.Attempt(context.Background(), domain.VerbCreate, "node-a:8080", "group")

	assert.Equal(t, domain.OutcomeTransientFailure, outcome)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPNodeClient_RecoversAfterNetworkError(t *testing.T) {
	node := nodetest.NewNode(t)

	var calls atomic.Int32
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("dial tcp: lookup node: no such host")
		}
		return http.DefaultTransport.RoundTrip(r)
	})

	client := newTestNodeClient(WithHTTPClient(&http.Client{Transport: transport}))

	outcome := client.Attempt(context.Background(), domain.VerbDelete, node.Host(), "group")

	assert.Equal(t, domain.OutcomeSuccess, outcome)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, node.Count(http.MethodDelete))
}

func TestHTTPNodeClient_RequestTimeout(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewHTTPNodeClient(domain.NoDelayRetryPolicy(2),
		WithNodeClientLogger(logging.Discard()),
		WithRequestTimeout(20*time.Millisecond),
	)

	outcome := client.Attempt(context.Background(), domain.VerbProbe, domain.Node(server.URL), "group")

	assert.Equal(t, domain.OutcomeTransientFailure, outcome)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPNodeClient_CancelledContextStopsRetrying(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		cancel()
		return nil, r.Context().Err()
	})

	client := NewHTTPNodeClient(
		domain.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour},
		WithNodeClientLogger(logging.Discard()),
		WithHTTPClient(&http.Client{Transport: transport}),
	)

	outcome := client.Attempt(ctx, domain.VerbCreate, "node-a", "group")

	assert.Equal(t, domain.OutcomeTransientFailure, outcome)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPolicyBackOff(t *testing.T) {
	b := newPolicyBackOff(domain.DefaultRetryPolicy())

	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Equal(t, 8*time.Second, b.NextBackOff())
	assert.Equal(t, 10*time.Second, b.NextBackOff())

	b.Reset()
	assert.Equal(t, 4*time.Second, b.NextBackOff())
}
