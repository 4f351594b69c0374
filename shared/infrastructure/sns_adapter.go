package infrastructure

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/draftea/group-coordinator/shared/events"
	"github.com/pkg/errors"
)

var _ events.Publisher = (*SNSPublisherAdapter)(nil)

// AWSConfig selects the region and, for LocalStack, a custom endpoint
type AWSConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadAWSConfig loads the default credential chain for the configured region
func LoadAWSConfig(ctx context.Context, cfg AWSConfig) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.Wrap(err, "failed to load AWS config")
	}
	return awsCfg, nil
}

// NewSNSClient creates an SNS client, pointing it at endpoint when set
func NewSNSClient(awsCfg aws.Config, endpoint string) *sns.Client {
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// SNSPublisherAdapter publishes saga events to one SNS topic
type SNSPublisherAdapter struct {
	snsPublisher *SNSEventPublisher
}

// NewSNSPublisherAdapter creates a new SNS publisher adapter
func NewSNSPublisherAdapter(client SNSAPI, topicArn string, logger *slog.Logger) (*SNSPublisherAdapter, error) {
	if topicArn == "" {
		return nil, errors.New("sns topic arn is required")
	}

	return &SNSPublisherAdapter{
		snsPublisher: NewSNSEventPublisher(client, topicArn, logger),
	}, nil
}

// Publish implements events.Publisher interface
func (p *SNSPublisherAdapter) Publish(ctx context.Context, events ...*events.Event) error {
	return p.snsPublisher.Publish(ctx, events...)
}

// Close closes the publisher
func (p *SNSPublisherAdapter) Close() error {
	// SNS client doesn't need explicit closing
	return nil
}
