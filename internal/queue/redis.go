package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis Streams transport
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	Prefix   string // stream name prefix (default "insight")
	Group    string // consumer group (default "insight-alerts")
	Consumer string // consumer name (default hostname)
	MaxLen   int64  // approximate stream cap, 0 for unbounded
}

// RedisQueue appends messages to Redis streams
type RedisQueue struct {
	client        *redis.Client
	config        RedisConfig
	subscriptions map[string]context.CancelFunc
	mu            sync.Mutex
}

// NewRedisQueue connects and pings the server
func NewRedisQueue(cfg RedisConfig) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL, Password: cfg.Password, DB: cfg.DB}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisQueueWithClient(client, cfg), nil
}

func newRedisQueueWithClient(client *redis.Client, cfg RedisConfig) *RedisQueue {
	if cfg.Prefix == "" {
		cfg.Prefix = "insight"
	}
	if cfg.Group == "" {
		cfg.Group = "insight-alerts"
	}
	if cfg.Consumer == "" {
		cfg.Consumer, _ = os.Hostname()
		if cfg.Consumer == "" {
			cfg.Consumer = "insight-1"
		}
	}
	return &RedisQueue{
		client:        client,
		config:        cfg,
		subscriptions: make(map[string]context.CancelFunc),
	}
}

func (q *RedisQueue) stream(subject string) string {
	return q.config.Prefix + ":" + subject
}

func (q *RedisQueue) addArgs(subject string, data []byte) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: q.stream(subject),
		Values: map[string]interface{}{"data": data},
	}
	if q.config.MaxLen > 0 {
		args.MaxLen = q.config.MaxLen
		args.Approx = true
	}
	return args
}

// Publish appends one entry
func (q *RedisQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := q.client.XAdd(ctx, q.addArgs(subject, data)).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis stream %s: %w", q.stream(subject), err)
	}
	return nil
}

// PublishBatch pipelines the appends
func (q *RedisQueue) PublishBatch(ctx context.Context, messages []Message) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	pipe := q.client.Pipeline()
	for _, m := range messages {
		pipe.XAdd(ctx, q.addArgs(m.Subject, m.Data))
	}
	cmds, err := pipe.Exec(ctx)
	if err != nil && len(cmds) == 0 {
		return 0, fmt.Errorf("failed to execute batch publish: %w", err)
	}

	ok := 0
	for _, cmd := range cmds {
		if cmd.Err() == nil {
			ok++
		}
	}
	return ok, nil
}

// Subscribe reads the stream through the consumer group in a goroutine
func (q *RedisQueue) Subscribe(subject string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	stream := q.stream(subject)
	ctx, cancel := context.WithCancel(context.Background())

	err := q.client.XGroupCreateMkStream(ctx, stream, q.config.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		cancel()
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	go q.consume(ctx, stream, handler)
	q.subscriptions[subject] = cancel
	return nil
}

func (q *RedisQueue) consume(ctx context.Context, stream string, handler Handler) {
	for ctx.Err() == nil {
		res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.config.Group,
			Consumer: q.config.Consumer,
			Streams:  []string{stream, ">"},
			Count:    50,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				data, ok := msg.Values["data"].(string)
				if ok && handler([]byte(data)) != nil {
					continue
				}
				q.client.XAck(ctx, stream, q.config.Group, msg.ID)
			}
		}
	}
}

// Unsubscribe stops the reader goroutine
func (q *RedisQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, exists := q.subscriptions[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	cancel()
	delete(q.subscriptions, subject)
	return nil
}

// Close stops readers and closes the client
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for subject, cancel := range q.subscriptions {
		cancel()
		delete(q.subscriptions, subject)
	}
	return q.client.Close()
}
