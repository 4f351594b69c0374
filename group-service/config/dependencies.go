package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/draftea/group-coordinator/group-service/application"
	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/group-service/handlers"
	"github.com/draftea/group-coordinator/group-service/infrastructure"
	"github.com/draftea/group-coordinator/shared/events"
	sharedinfra "github.com/draftea/group-coordinator/shared/infrastructure"
	"github.com/draftea/group-coordinator/shared/telemetry"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// CompensationConsumer delivers due compensation tasks to a handler
type CompensationConsumer interface {
	events.Subscriber
	Close() error
}

type Dependencies struct {
	// Database
	DB *sqlx.DB

	// Saga journal, nil unless database.enabled
	Journal *sharedinfra.PostgresSagaJournal

	// Infrastructure
	NodeClient           *infrastructure.HTTPNodeClient
	CompensationQueue    domain.CompensationQueue
	CompensationConsumer CompensationConsumer
	EventPublisher       events.Publisher
	SNSPublisher         *sharedinfra.SNSPublisherAdapter
	Redis                *redis.Client

	// Saga
	GroupSaga *application.GroupSaga

	// Use Cases
	CreateGroup             *application.CreateGroup
	DeleteGroup             *application.DeleteGroup
	ProcessCompensationTask *application.ProcessCompensationTask

	// HTTP Handlers
	GroupHandlers *handlers.GroupHandlers

	// Event Handlers
	GroupEventHandlers *handlers.GroupEventHandlers

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()
}

func BuildDependencies(ctx context.Context, config *Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	// Initialize telemetry first
	if config.Telemetry.Enabled {
		telConfig := telemetry.GroupCoordinatorConfig.WithOTLPEndpoint(config.Telemetry.OTLPEndpoint)
		tel, telemetryShutdown, err := telemetry.InitTelemetry(ctx, telConfig)
		if err != nil {
			// Continue without telemetry rather than failing
			logger.WarnContext(ctx, "Failed to initialize telemetry", "error", err)
		} else {
			deps.Telemetry = tel
			deps.TelemetryShutdown = telemetryShutdown
		}
	}

	if err := deps.buildPublisher(ctx, config, logger); err != nil {
		deps.Close()
		return nil, err
	}

	if err := deps.buildQueue(ctx, config, logger); err != nil {
		deps.Close()
		return nil, err
	}

	deps.NodeClient = infrastructure.NewHTTPNodeClient(config.RetryPolicy(),
		infrastructure.WithRequestTimeout(config.NodeClient.RequestTimeout),
		infrastructure.WithScheme(config.NodeClient.Scheme),
		infrastructure.WithNodeClientLogger(logger),
	)

	scheduler := application.NewCompensationScheduler(deps.NodeClient, deps.CompensationQueue,
		deps.EventPublisher, config.Compensation.Delay, logger)
	resolver := application.NewIdempotencyResolver(deps.NodeClient, logger)

	deps.GroupSaga = application.NewGroupSaga(config.NodeHosts(), deps.NodeClient, resolver, scheduler,
		deps.EventPublisher, config.SagaOptions(), logger)

	// Initialize use cases
	deps.CreateGroup = application.NewCreateGroup(deps.GroupSaga)
	deps.DeleteGroup = application.NewDeleteGroup(deps.GroupSaga)
	deps.ProcessCompensationTask = application.NewProcessCompensationTask(deps.NodeClient, scheduler,
		deps.EventPublisher, config.Compensation.MaxAttempts, logger)

	// Initialize handlers
	var journal events.EventStore
	if deps.Journal != nil {
		journal = deps.Journal
	}
	deps.GroupHandlers = handlers.NewGroupHandlers(deps.CreateGroup, deps.DeleteGroup, journal, logger)
	deps.GroupEventHandlers = handlers.NewGroupEventHandlers(deps.ProcessCompensationTask, logger)

	return deps, nil
}

// buildPublisher fans saga events out to SNS and the Postgres journal when configured
func (d *Dependencies) buildPublisher(ctx context.Context, config *Config, logger *slog.Logger) error {
	var publishers []events.Publisher

	if config.Database.Enabled {
		db, err := sqlx.Connect("postgres", config.GetDatabaseURL())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		d.DB = db

		journal := sharedinfra.NewPostgresSagaJournal(db)
		if err := journal.EnsureSchema(ctx); err != nil {
			return err
		}
		d.Journal = journal
		publishers = append(publishers, journal)
	}

	if config.AWS.SNSTopicArn != "" {
		awsCfg, err := sharedinfra.LoadAWSConfig(ctx, config.AWSConfig())
		if err != nil {
			return err
		}

		snsPublisher, err := sharedinfra.NewSNSPublisherAdapter(
			sharedinfra.NewSNSClient(awsCfg, config.AWS.Endpoint), config.AWS.SNSTopicArn, logger)
		if err != nil {
			return fmt.Errorf("failed to create SNS publisher: %w", err)
		}
		d.SNSPublisher = snsPublisher
		publishers = append(publishers, snsPublisher)
	}

	if len(publishers) == 0 {
		d.EventPublisher = events.NopPublisher{}
		return nil
	}

	d.EventPublisher = events.NewFanOutPublisher(publishers...)
	return nil
}

// buildQueue selects the delayed-retry backend. The same backend feeds the
// compensation worker.
func (d *Dependencies) buildQueue(ctx context.Context, config *Config, logger *slog.Logger) error {
	switch config.Compensation.Queue {
	case QueueSQS:
		awsCfg, err := sharedinfra.LoadAWSConfig(ctx, config.AWSConfig())
		if err != nil {
			return err
		}
		client := sharedinfra.NewSQSClient(awsCfg, config.AWS.Endpoint)

		queue, err := infrastructure.NewSQSCompensationQueue(client, config.Compensation.QueueURL, logger)
		if err != nil {
			return fmt.Errorf("failed to create SQS compensation queue: %w", err)
		}

		consumer, err := sharedinfra.NewSQSSubscriberAdapter(client, config.Compensation.QueueURL,
			sharedinfra.WithWorkers(int32(config.Compensation.Workers)),
			sharedinfra.WithSubscriberLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("failed to create SQS subscriber: %w", err)
		}

		d.CompensationQueue = queue
		d.CompensationConsumer = consumer

	case QueueRedis:
		client, err := infrastructure.NewRedisClient(ctx, config.Redis)
		if err != nil {
			return err
		}
		d.Redis = client

		queue := infrastructure.NewRedisCompensationQueue(client, config.Redis, config.Compensation.Delay, logger)
		d.CompensationQueue = queue
		d.CompensationConsumer = queue

	default:
		queue := infrastructure.NewMemoryCompensationQueue(config.Compensation.Delay, logger)
		d.CompensationQueue = queue
		d.CompensationConsumer = queue
	}

	return nil
}

// Close closes all dependencies
func (d *Dependencies) Close() error {
	var errs []error

	if d.CompensationConsumer != nil {
		if err := d.CompensationConsumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close compensation consumer: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.SNSPublisher != nil {
		if err := d.SNSPublisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event publisher: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.TelemetryShutdown != nil {
		d.TelemetryShutdown()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing dependencies: %v", errs)
	}

	return nil
}
