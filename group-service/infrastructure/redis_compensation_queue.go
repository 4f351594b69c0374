package infrastructure

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/shared/events"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var (
	_ domain.CompensationQueue = (*RedisCompensationQueue)(nil)
	_ events.Subscriber        = (*RedisCompensationQueue)(nil)
)

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Key          string        `mapstructure:"key"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int64         `mapstructure:"batch_size"`
	// Lease is how long a claimed task stays hidden from other pollers.
	// It must outlast a node attempt with all of its retries.
	Lease time.Duration `mapstructure:"lease"`
}

// DefaultRedisLease covers the default node retry budget several times over
const DefaultRedisLease = 2 * time.Minute

// claimScript moves a due member to its lease deadline. It returns 0 when the
// member is gone or another poller already leased it.
var claimScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) > tonumber(ARGV[2]) then
	return 0
end
redis.call('ZADD', KEYS[1], 'XX', ARGV[3], ARGV[1])
return 1
`)

// NewRedisClient connects and pings the server
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	return client, nil
}

// RedisCompensationQueue keeps tasks in a sorted set scored by due time.
// Members are the JSON encoded task events. A poller claims a due member by
// pushing its score to the end of a lease and removes it only once handled,
// so a task whose handling is interrupted becomes due again.
type RedisCompensationQueue struct {
	client       redis.UniversalClient
	key          string
	pollInterval time.Duration
	batchSize    int64
	lease        time.Duration
	retryDelay   time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewRedisCompensationQueue(client redis.UniversalClient, cfg RedisConfig, retryDelay time.Duration, logger *slog.Logger) *RedisCompensationQueue {
	key := cfg.Key
	if key == "" {
		key = "group-coordinator:compensations"
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	lease := cfg.Lease
	if lease <= 0 {
		lease = DefaultRedisLease
	}

	return &RedisCompensationQueue{
		client:       client,
		key:          key,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		lease:        lease,
		retryDelay:   retryDelay,
		logger:       logger.With("module", "redis_compensation_queue", "key", key),
	}
}

func (q *RedisCompensationQueue) ScheduleAfter(ctx context.Context, delay time.Duration, task *domain.CompensationTask) error {
	if err := task.Validate(); err != nil {
		return err
	}
	return q.add(ctx, time.Now().Add(delay), task.Event())
}

func (q *RedisCompensationQueue) add(ctx context.Context, due time.Time, evt *events.Event) error {
	body, err := evt.ToJSON()
	if err != nil {
		return errors.Wrap(err, "failed to marshal compensation task")
	}

	err = q.client.ZAdd(ctx, q.key, redis.Z{Score: dueScore(due), Member: string(body)}).Err()
	if err != nil {
		return errors.Wrap(err, "failed to add compensation task to Redis")
	}
	return nil
}

// Subscribe starts polling for due tasks
func (q *RedisCompensationQueue) Subscribe(ctx context.Context, handler events.EventHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return errors.New("subscriber is already running")
	}
	q.running = true
	q.stopCh = make(chan struct{})

	q.wg.Add(1)
	go q.consume(ctx, handler, q.stopCh)

	q.logger.InfoContext(ctx, "Started compensation poller", "poll_interval", q.pollInterval)
	return nil
}

// Close stops the poller and waits for the current batch
func (q *RedisCompensationQueue) Close() error {
	q.mu.Lock()
	if q.running {
		close(q.stopCh)
		q.running = false
	}
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

func (q *RedisCompensationQueue) consume(ctx context.Context, handler events.EventHandler, stopCh <-chan struct{}) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.poll(ctx, handler); err != nil {
				q.logger.ErrorContext(ctx, "Error polling compensation tasks", "error", err)
			}
		}
	}
}

func (q *RedisCompensationQueue) poll(ctx context.Context, handler events.EventHandler) error {
	now := time.Now()
	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatScore(dueScore(now)),
		Count: q.batchSize,
	}).Result()
	if err != nil {
		return errors.Wrap(err, "failed to read due compensation tasks")
	}

	for _, member := range members {
		claimed, err := q.claim(ctx, member, now)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}

		q.handle(ctx, handler, member)
	}
	return nil
}

func (q *RedisCompensationQueue) claim(ctx context.Context, member string, now time.Time) (bool, error) {
	claimed, err := claimScript.Run(ctx, q.client, []string{q.key},
		member, formatScore(dueScore(now)), formatScore(dueScore(now.Add(q.lease)))).Int()
	if err != nil {
		return false, errors.Wrap(err, "failed to claim compensation task")
	}
	return claimed == 1, nil
}

// handle acknowledges or re-scores a claimed member. Both writes outlive the
// poll context so a shutdown mid-task leaves the task in the set.
func (q *RedisCompensationQueue) handle(ctx context.Context, handler events.EventHandler, member string) {
	settleCtx := context.WithoutCancel(ctx)

	evt, err := events.FromJSON([]byte(member))
	if err != nil {
		q.logger.ErrorContext(ctx, "Dropping malformed compensation task", "error", err)
		q.ack(settleCtx, member)
		return
	}

	if err := handler.Handle(ctx, evt); err != nil {
		q.logger.WarnContext(ctx, "Compensation task failed, redelivering",
			"event_id", evt.ID, "retry_in", q.retryDelay, "error", err)
		q.nack(settleCtx, member, time.Now().Add(q.retryDelay))
		return
	}

	q.ack(settleCtx, member)
}

func (q *RedisCompensationQueue) ack(ctx context.Context, member string) {
	if err := q.client.ZRem(ctx, q.key, member).Err(); err != nil {
		q.logger.ErrorContext(ctx, "Failed to remove handled compensation task, it will run again after the lease",
			"lease", q.lease, "error", err)
	}
}

func (q *RedisCompensationQueue) nack(ctx context.Context, member string, due time.Time) {
	err := q.client.ZAddXX(ctx, q.key, redis.Z{Score: dueScore(due), Member: member}).Err()
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to reschedule compensation task, it will run again after the lease",
			"lease", q.lease, "error", err)
	}
}

func dueScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
