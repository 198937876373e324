package utils

import "time"

// =============================================================================
// Request Constants
// =============================================================================

const (
	// DefaultRequestTimeout bounds a single HTTP request end to end
	DefaultRequestTimeout = 30 * time.Second

	// SourceFetchTimeout bounds one RecordSource call
	SourceFetchTimeout = 10 * time.Second

	// PublishTimeout bounds publishing one alert batch
	PublishTimeout = 5 * time.Second

	// ShutdownTimeout is the graceful shutdown budget for the HTTP server
	ShutdownTimeout = 10 * time.Second
)

// =============================================================================
// Query Constants
// =============================================================================

const (
	// MaxQueryLimit caps the number of records a single query may return
	MaxQueryLimit = 10000
)

// =============================================================================
// Data Types
// =============================================================================

const (
	DataTypeSessions     = "sessionData"
	DataTypeInteractions = "bubbleInteractions"
	DataTypePerformance  = "performanceData"
)

// =============================================================================
// Queue Type Constants
// =============================================================================

// QueueType represents the alert transport
type QueueType string

const (
	// QueueTypeNone disables alert publishing
	QueueTypeNone QueueType = "none"

	// QueueTypeNATS publishes through NATS JetStream
	QueueTypeNATS QueueType = "nats"

	// QueueTypeRedis appends to a Redis stream
	QueueTypeRedis QueueType = "redis"

	// QueueTypeKafka writes to a Kafka topic
	QueueTypeKafka QueueType = "kafka"

	// QueueTypeMemory keeps messages in process (tests, CLI)
	QueueTypeMemory QueueType = "memory"
)
