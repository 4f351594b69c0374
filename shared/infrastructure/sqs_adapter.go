package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/draftea/group-coordinator/shared/events"
	"github.com/pkg/errors"
)

var _ events.Subscriber = (*SQSSubscriberAdapter)(nil)

// NewSQSClient creates an SQS client, pointing it at endpoint when set
func NewSQSClient(awsCfg aws.Config, endpoint string) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// SQSSubscriberAdapter adapts SQSEventSubscriber to the events.Subscriber interface
type SQSSubscriberAdapter struct {
	mu            sync.Mutex
	client        SQSAPI
	queueURL      string
	opts          []SQSSubscriberOption
	sqsSubscriber *SQSEventSubscriber
}

// NewSQSSubscriberAdapter creates a new SQS subscriber adapter
func NewSQSSubscriberAdapter(client SQSAPI, queueURL string, opts ...SQSSubscriberOption) (*SQSSubscriberAdapter, error) {
	if queueURL == "" {
		return nil, errors.New("sqs queue url is required")
	}

	return &SQSSubscriberAdapter{
		client:   client,
		queueURL: queueURL,
		opts:     opts,
	}, nil
}

// eventHandlerAdapter gives an events.EventHandler the identifier the subscriber logs
type eventHandlerAdapter struct {
	events.EventHandler
}

func (a *eventHandlerAdapter) HandlerID() string {
	if h, ok := a.EventHandler.(interface{ HandlerID() string }); ok {
		return h.HandlerID()
	}
	return "event-handler-adapter"
}

// Subscribe implements events.Subscriber interface
func (s *SQSSubscriberAdapter) Subscribe(ctx context.Context, handler events.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sqsSubscriber != nil {
		return errors.New("subscriber is already running")
	}

	subscriber := NewSQSEventSubscriber(s.client, s.queueURL, &eventHandlerAdapter{EventHandler: handler}, s.opts...)
	if err := subscriber.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start SQS subscriber")
	}

	s.sqsSubscriber = subscriber
	return nil
}

// Close stops the subscriber
func (s *SQSSubscriberAdapter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sqsSubscriber == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.sqsSubscriber.Stop(ctx); err != nil {
		return errors.Wrap(err, "failed to stop SQS subscriber")
	}

	s.sqsSubscriber = nil
	return nil
}
