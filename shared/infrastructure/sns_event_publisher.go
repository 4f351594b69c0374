package infrastructure

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/draftea/group-coordinator/shared/events"
	"github.com/draftea/group-coordinator/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var _ events.Publisher = (*SNSEventPublisher)(nil)

const maxBatchSize = 10

// SNSAPI is the part of the SNS client used for publishing
type SNSAPI interface {
	PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error)
}

type snsMessage struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Metadata      events.Metadata `json:"metadata"`
	Topic         string          `json:"topic"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
}

// SNSEventPublisher implements events.Publisher using AWS SNS
type SNSEventPublisher struct {
	client   SNSAPI
	topicArn string
	logger   *slog.Logger
}

// NewSNSEventPublisher creates a new SNSEventPublisher
func NewSNSEventPublisher(client SNSAPI, topicArn string, logger *slog.Logger) *SNSEventPublisher {
	return &SNSEventPublisher{
		client:   client,
		topicArn: topicArn,
		logger:   logger.With("module", "sns_publisher"),
	}
}

// Publish publishes events to SNS in batches of ten
func (p *SNSEventPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	gr, ctx := errgroup.WithContext(ctx)

	for _, eventBatch := range splitToChunks(evts, maxBatchSize) {
		gr.Go(func() error {
			return p.batchPublish(ctx, eventBatch)
		})
	}

	return gr.Wait()
}

func (p *SNSEventPublisher) batchPublish(ctx context.Context, batch []*events.Event) error {
	requests := make([]types.PublishBatchRequestEntry, len(batch))

	for i, event := range batch {
		entry, err := p.toEntry(event)
		if err != nil {
			return err
		}
		requests[i] = entry
	}

	res, err := p.client.PublishBatch(ctx, &sns.PublishBatchInput{
		TopicArn:                   &p.topicArn,
		PublishBatchRequestEntries: requests,
	})
	if err != nil {
		return errors.Wrap(err, "failed to publish batch to SNS")
	}

	failed := make(map[string]types.BatchResultErrorEntry, len(res.Failed))
	for _, entry := range res.Failed {
		failed[aws.ToString(entry.Id)] = entry
	}

	for _, event := range batch {
		result := "published"
		if entry, ok := failed[event.ID.String()]; ok {
			result = "failed"
			p.logger.ErrorContext(ctx, "SNS rejected event",
				"event_id", event.ID, "topic", event.Topic,
				"code", aws.ToString(entry.Code), "message", aws.ToString(entry.Message))
		}
		telemetry.RecordCounter(ctx, "events_published_total", "Events published to SNS", 1,
			attribute.String("topic", event.Topic.String()),
			attribute.String("result", result),
		)
	}

	if len(failed) > 0 {
		return errors.Errorf("%d of %d events rejected by SNS", len(failed), len(batch))
	}
	return nil
}

func (p *SNSEventPublisher) toEntry(event *events.Event) (types.PublishBatchRequestEntry, error) {
	payload, err := event.MarshalPayload()
	if err != nil {
		return types.PublishBatchRequestEntry{}, errors.Wrap(err, "failed to marshal payload")
	}

	msgJSON, err := json.Marshal(&snsMessage{
		ID:            event.ID.String(),
		AggregateID:   event.AggregateID.String(),
		CorrelationID: event.CorrelationID.String(),
		Metadata:      event.Metadata,
		Topic:         event.Topic.String(),
		Payload:       payload,
		Timestamp:     event.Timestamp,
	})
	if err != nil {
		return types.PublishBatchRequestEntry{}, errors.Wrap(err, "failed to marshal message")
	}

	attrs := map[string]types.MessageAttributeValue{
		"topic": {
			DataType:    aws.String("String"),
			StringValue: aws.String(event.Topic.String()),
		},
	}

	for k, v := range event.Metadata {
		if k == SQSMessageIDKey || k == SQSReceiptHandleKey || v == "" {
			continue
		}

		attrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	return types.PublishBatchRequestEntry{
		Id:                aws.String(event.ID.String()),
		Message:           aws.String(string(msgJSON)),
		MessageAttributes: attrs,
	}, nil
}

// splitToChunks splits slice into chunks of specified size
func splitToChunks[T any](slice []T, chunkSize int) [][]T {
	var chunks [][]T
	for i := 0; i < len(slice); i += chunkSize {
		end := min(i+chunkSize, len(slice))
		chunks = append(chunks, slice[i:end])
	}
	return chunks
}
