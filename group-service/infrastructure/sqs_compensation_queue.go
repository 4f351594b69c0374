package infrastructure

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/pkg/errors"
)

var _ domain.CompensationQueue = (*SQSCompensationQueue)(nil)

// MaxSQSDelay is the longest delivery delay SQS accepts
const MaxSQSDelay = 15 * time.Minute

// SQSSender is the part of the SQS client used to enqueue
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSCompensationQueue schedules compensation tasks as delayed SQS messages.
// The compensation worker consumes the same queue.
type SQSCompensationQueue struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

func NewSQSCompensationQueue(client SQSSender, queueURL string, logger *slog.Logger) (*SQSCompensationQueue, error) {
	if queueURL == "" {
		return nil, errors.New("compensation queue url is required")
	}

	return &SQSCompensationQueue{
		client:   client,
		queueURL: queueURL,
		logger:   logger.With("module", "sqs_compensation_queue"),
	}, nil
}

func (q *SQSCompensationQueue) ScheduleAfter(ctx context.Context, delay time.Duration, task *domain.CompensationTask) error {
	if err := task.Validate(); err != nil {
		return err
	}

	if delay > MaxSQSDelay {
		q.logger.WarnContext(ctx, "Compensation delay above the SQS limit, capping",
			"task_id", task.ID, "delay", delay, "max_delay", MaxSQSDelay)
		delay = MaxSQSDelay
	}

	evt := task.Event()
	body, err := evt.ToJSON()
	if err != nil {
		return errors.Wrap(err, "failed to marshal compensation task")
	}

	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(max(delay, 0) / time.Second),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"topic": {DataType: aws.String("String"), StringValue: aws.String(evt.Topic.String())},
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to send compensation task to SQS")
	}

	q.logger.DebugContext(ctx, "Compensation task enqueued",
		"task_id", task.ID, "message_id", aws.ToString(out.MessageId), "delay", delay)
	return nil
}
