package queue

import (
	"fmt"
	"strings"

	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/utils"
)

// DefaultSubject is where anomaly batches are published
const DefaultSubject = "insight.alerts"

// New creates the queue selected by cfg.Type; an empty type disables publishing
func New(cfg config.QueueConfig) (Queue, error) {
	switch utils.QueueType(strings.ToLower(cfg.Type)) {
	case "", utils.QueueTypeNone:
		return NopQueue{}, nil

	case utils.QueueTypeMemory:
		return NewMemoryQueue(0), nil

	case utils.QueueTypeNATS:
		return NewNATSQueue(cfg.URL)

	case utils.QueueTypeRedis:
		return NewRedisQueue(RedisConfig{
			URL:      cfg.URL,
			Password: cfg.Password,
			DB:       cfg.RedisDB,
			MaxLen:   cfg.RedisMaxLen,
		})

	case utils.QueueTypeKafka:
		return NewKafkaQueue(KafkaConfig{Brokers: cfg.KafkaBrokers})

	default:
		return nil, fmt.Errorf("unsupported queue type: %s (supported: none, memory, nats, redis, kafka)", cfg.Type)
	}
}

// Subject returns the configured alert subject or DefaultSubject
func Subject(cfg config.QueueConfig) string {
	if cfg.Subject == "" {
		return DefaultSubject
	}
	return cfg.Subject
}
