package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSQueue publishes through NATS JetStream. Each subject is backed by its
// own stream, created on first use.
type NATSQueue struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	streams       map[string]struct{}
	subscriptions map[string]*nats.Subscription
	mu            sync.Mutex
}

// NewNATSQueue connects to url and opens a JetStream context
func NewNATSQueue(url string) (*NATSQueue, error) {
	conn, err := nats.Connect(url, nats.Name("insight"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	q, err := newNATSQueueWithConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func newNATSQueueWithConn(conn *nats.Conn) (*NATSQueue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &NATSQueue{
		conn:          conn,
		js:            js,
		streams:       make(map[string]struct{}),
		subscriptions: make(map[string]*nats.Subscription),
	}, nil
}

// streamName maps "insight.alerts" to "INSIGHT_ALERTS"
func streamName(subject string) string {
	return strings.ToUpper(sanitizeName(subject))
}

func (q *NATSQueue) ensureStream(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.streams[subject]; ok {
		return nil
	}

	name := streamName(subject)
	if _, err := q.js.StreamInfo(name); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up stream %s: %w", name, err)
		}
		_, err = q.js.AddStream(&nats.StreamConfig{
			Name:      name,
			Subjects:  []string{subject},
			Storage:   nats.FileStorage,
			Retention: nats.LimitsPolicy,
			MaxMsgs:   100000,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", name, err)
		}
	}

	q.streams[subject] = struct{}{}
	return nil
}

// Publish waits for the JetStream acknowledgement
func (q *NATSQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := q.ensureStream(subject); err != nil {
		return err
	}
	if _, err := q.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

// PublishBatch queues every message asynchronously, then waits for all acks
func (q *NATSQueue) PublishBatch(ctx context.Context, messages []Message) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	futures := make([]nats.PubAckFuture, 0, len(messages))
	for _, m := range messages {
		if err := q.ensureStream(m.Subject); err != nil {
			return 0, err
		}
		f, err := q.js.PublishAsync(m.Subject, m.Data)
		if err != nil {
			continue
		}
		futures = append(futures, f)
	}

	select {
	case <-q.js.PublishAsyncComplete():
	case <-ctx.Done():
		return 0, fmt.Errorf("waiting for batch acknowledgements: %w", ctx.Err())
	}

	acked := 0
	for _, f := range futures {
		select {
		case <-f.Ok():
			acked++
		case <-f.Err():
		}
	}
	return acked, nil
}

// Subscribe attaches a durable, manually acknowledged consumer
func (q *NATSQueue) Subscribe(subject string, handler Handler) error {
	if err := q.ensureStream(subject); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	sub, err := q.js.Subscribe(subject, func(msg *nats.Msg) {
		if err := handler(msg.Data); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("insight-"+sanitizeName(subject)),
		nats.ManualAck(),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(3),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	q.subscriptions[subject] = sub
	return nil
}

// Unsubscribe stops delivery for a subject
func (q *NATSQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	sub, exists := q.subscriptions[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	delete(q.subscriptions, subject)
	return sub.Unsubscribe()
}

// Close drains subscriptions and closes the connection
func (q *NATSQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for subject, sub := range q.subscriptions {
		_ = sub.Unsubscribe()
		delete(q.subscriptions, subject)
	}
	q.conn.Close()
	return nil
}

// sanitizeName keeps A-Z, a-z, 0-9, dash and underscore; anything else becomes '_'
func sanitizeName(subject string) string {
	var b strings.Builder
	b.Grow(len(subject))
	for _, c := range subject {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
