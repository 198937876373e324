package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka transport
type KafkaConfig struct {
	Brokers      []string
	GroupID      string        // consumer group (default "insight-alerts")
	BatchTimeout time.Duration // producer flush interval (default 10ms)
	MaxAttempts  int           // producer attempts per message (default 3)
}

// KafkaQueue writes each subject to the topic of the same name
type KafkaQueue struct {
	config        KafkaConfig
	writers       map[string]*kafka.Writer
	readers       map[string]*kafka.Reader
	subscriptions map[string]context.CancelFunc
	mu            sync.Mutex
}

// NewKafkaQueue validates the broker list; connections are opened lazily
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "insight-alerts"
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	return &KafkaQueue{
		config:        cfg,
		writers:       make(map[string]*kafka.Writer),
		readers:       make(map[string]*kafka.Reader),
		subscriptions: make(map[string]context.CancelFunc),
	}, nil
}

func (q *KafkaQueue) writer(topic string) *kafka.Writer {
	q.mu.Lock()
	defer q.mu.Unlock()

	if w, ok := q.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(q.config.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           q.config.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            q.config.MaxAttempts,
		AllowAutoTopicCreation: true,
	}
	q.writers[topic] = w
	return w
}

// Publish writes one message keyed by subject
func (q *KafkaQueue) Publish(ctx context.Context, subject string, data []byte) error {
	err := q.writer(subject).WriteMessages(ctx, kafka.Message{
		Key:   []byte(subject),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to kafka topic %s: %w", subject, err)
	}
	return nil
}

// PublishBatch groups messages per topic and writes each group at once
func (q *KafkaQueue) PublishBatch(ctx context.Context, messages []Message) (int, error) {
	byTopic := make(map[string][]kafka.Message)
	for _, m := range messages {
		byTopic[m.Subject] = append(byTopic[m.Subject], kafka.Message{
			Key:   []byte(m.Subject),
			Value: m.Data,
			Time:  time.Now(),
		})
	}

	written := 0
	var errs []error
	for topic, msgs := range byTopic {
		if err := q.writer(topic).WriteMessages(ctx, msgs...); err != nil {
			errs = append(errs, fmt.Errorf("topic %s: %w", topic, err))
			continue
		}
		written += len(msgs)
	}
	if written == 0 && len(errs) > 0 {
		return 0, fmt.Errorf("failed to publish batch: %w", errors.Join(errs...))
	}
	return written, nil
}

// Subscribe consumes the topic in a goroutine, committing after each handled message
func (q *KafkaQueue) Subscribe(subject string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to topic: %s", subject)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  q.config.Brokers,
		GroupID:  q.config.GroupID,
		Topic:    subject,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	q.readers[subject] = reader
	q.subscriptions[subject] = cancel

	go func() {
		for {
			msg, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if handler(msg.Value) != nil {
				continue
			}
			_ = reader.CommitMessages(ctx, msg)
		}
	}()
	return nil
}

// Unsubscribe stops the consumer and closes its reader
func (q *KafkaQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, exists := q.subscriptions[subject]
	if !exists {
		return fmt.Errorf("not subscribed to topic: %s", subject)
	}
	cancel()
	delete(q.subscriptions, subject)
	if r, ok := q.readers[subject]; ok {
		delete(q.readers, subject)
		return r.Close()
	}
	return nil
}

// Close stops consumers and flushes writers
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var errs []error
	for subject, cancel := range q.subscriptions {
		cancel()
		if r, ok := q.readers[subject]; ok {
			errs = append(errs, r.Close())
		}
	}
	for _, w := range q.writers {
		errs = append(errs, w.Close())
	}
	q.subscriptions = make(map[string]context.CancelFunc)
	q.readers = make(map[string]*kafka.Reader)
	q.writers = make(map[string]*kafka.Writer)
	return errors.Join(errs...)
}

// WriterStats exposes producer statistics of a topic
func (q *KafkaQueue) WriterStats(topic string) kafka.WriterStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w, ok := q.writers[topic]; ok {
		return w.Stats()
	}
	return kafka.WriterStats{}
}
