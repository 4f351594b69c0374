package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ domain.NodeClient = (*HTTPNodeClient)(nil)

const (
	GroupEndpoint       = "/v1/group"
	GroupIDQueryParam   = "groupId"
	defaultNodeTimeout  = 10 * time.Second
	defaultNodeScheme   = "http"
	maxDrainedBodyBytes = 64 << 10
)

// groupRequest is the body of POST /v1/group on a node
type groupRequest struct {
	GroupID string `json:"groupId"`
}

// HTTPNodeClient talks to the group endpoint of a single node per call.
// Network errors are retried according to the retry policy; HTTP responses are
// never retried, they are conclusive.
type HTTPNodeClient struct {
	httpClient     *http.Client
	policy         domain.RetryPolicy
	requestTimeout time.Duration
	scheme         string
	logger         *slog.Logger
}

type HTTPNodeClientOption func(*HTTPNodeClient)

func WithHTTPClient(client *http.Client) HTTPNodeClientOption {
	return func(c *HTTPNodeClient) {
		c.httpClient = client
	}
}

func WithRequestTimeout(timeout time.Duration) HTTPNodeClientOption {
	return func(c *HTTPNodeClient) {
		if timeout > 0 {
			c.requestTimeout = timeout
		}
	}
}

func WithScheme(scheme string) HTTPNodeClientOption {
	return func(c *HTTPNodeClient) {
		if scheme != "" {
			c.scheme = scheme
		}
	}
}

func WithNodeClientLogger(logger *slog.Logger) HTTPNodeClientOption {
	return func(c *HTTPNodeClient) {
		c.logger = logger
	}
}

// NewHTTPNodeClient creates a node client using policy for network retries
func NewHTTPNodeClient(policy domain.RetryPolicy, opts ...HTTPNodeClientOption) *HTTPNodeClient {
	// proxies from the environment are ignored, nodes are addressed directly
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil

	c := &HTTPNodeClient{
		httpClient:     &http.Client{Transport: transport},
		policy:         policy,
		requestTimeout: defaultNodeTimeout,
		scheme:         defaultNodeScheme,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("module", "node_client")
	return c
}

// Attempt executes verb against node for groupID and classifies the result
func (c *HTTPNodeClient) Attempt(ctx context.Context, verb domain.Verb, node domain.Node, groupID domain.GroupID) domain.Outcome {
	ctx, span := telemetry.StartSpan(ctx, "node."+verb.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("group.node", node.String()),
			attribute.String("group.verb", verb.String()),
		),
	)
	defer span.End()

	status, err := c.execute(ctx, verb, node, groupID)

	var outcome domain.Outcome
	if err != nil {
		outcome = domain.OutcomeTransientFailure
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.ErrorContext(ctx, "Node unreachable",
			"verb", verb, "node", node, "group_id", groupID, "error", err)
	} else {
		outcome = ClassifyStatus(verb, status)
		span.SetAttributes(attribute.Int("http.status_code", status))
		c.logger.DebugContext(ctx, "Node responded",
			"verb", verb, "node", node, "group_id", groupID, "status", status, "outcome", outcome)
	}

	span.SetAttributes(attribute.String("group.outcome", outcome.String()))
	telemetry.RecordCounter(ctx, "group_node_attempts_total", "Node attempts by verb and outcome", 1,
		attribute.String("verb", verb.String()),
		attribute.String("outcome", outcome.String()),
	)

	return outcome
}

// ClassifyStatus maps an HTTP status code to the outcome for verb
func ClassifyStatus(verb domain.Verb, status int) domain.Outcome {
	switch verb {
	case domain.VerbCreate:
		switch status {
		case http.StatusCreated:
			return domain.OutcomeSuccess
		case http.StatusBadRequest:
			return domain.OutcomeConflict
		}
	case domain.VerbDelete, domain.VerbProbe:
		if status == http.StatusOK {
			return domain.OutcomeSuccess
		}
	}
	return domain.OutcomePermanentFailure
}

func (c *HTTPNodeClient) execute(ctx context.Context, verb domain.Verb, node domain.Node, groupID domain.GroupID) (int, error) {
	attempt := 0
	operation := func() (int, error) {
		attempt++
		status, err := c.send(ctx, verb, node, groupID)
		if err == nil {
			return status, nil
		}
		if ctx.Err() != nil {
			return 0, backoff.Permanent(err)
		}
		return 0, err
	}

	notify := func(err error, next time.Duration) {
		c.logger.WarnContext(ctx, "Node request failed, retrying",
			"verb", verb, "node", node, "group_id", groupID,
			"attempt", attempt, "max_attempts", c.policy.MaxAttempts,
			"retry_in", next, "error", err)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(newPolicyBackOff(c.policy)),
		backoff.WithMaxTries(uint(max(c.policy.MaxAttempts, 1))),
		backoff.WithNotify(notify),
	)
}

func (c *HTTPNodeClient) send(ctx context.Context, verb domain.Verb, node domain.Node, groupID domain.GroupID) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, verb, node, groupID)
	if err != nil {
		return 0, backoff.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "%s request to %s", req.Method, req.URL.Redacted())
	}
	defer resp.Body.Close()

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainedBodyBytes))

	return resp.StatusCode, nil
}

func (c *HTTPNodeClient) buildRequest(ctx context.Context, verb domain.Verb, node domain.Node, groupID domain.GroupID) (*http.Request, error) {
	endpoint := c.endpoint(node)

	switch verb {
	case domain.VerbCreate:
		body, err := json.Marshal(groupRequest{GroupID: groupID.String()})
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal group request")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, errors.Wrap(err, "failed to build create request")
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil

	case domain.VerbDelete, domain.VerbProbe:
		method := http.MethodDelete
		if verb == domain.VerbProbe {
			method = http.MethodGet
		}
		query := url.Values{GroupIDQueryParam: []string{groupID.String()}}
		req, err := http.NewRequestWithContext(ctx, method, endpoint+"?"+query.Encode(), nil)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build %s request", verb)
		}
		return req, nil

	default:
		return nil, errors.Errorf("unsupported verb %q", verb)
	}
}

func (c *HTTPNodeClient) endpoint(node domain.Node) string {
	host := strings.TrimRight(node.String(), "/")
	if strings.Contains(host, "://") {
		return host + GroupEndpoint
	}
	return c.scheme + "://" + host + GroupEndpoint
}

// policyBackOff feeds a RetryPolicy to the backoff retry loop
type policyBackOff struct {
	policy  domain.RetryPolicy
	retries int
}

func newPolicyBackOff(policy domain.RetryPolicy) *policyBackOff {
	return &policyBackOff{policy: policy}
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.retries++
	return b.policy.Delay(b.retries)
}

func (b *policyBackOff) Reset() {
	b.retries = 0
}
