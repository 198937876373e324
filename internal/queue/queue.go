// Package queue carries anomaly alert batches to external consumers.
package queue

import "context"

// Publisher publishes messages to a subject/topic/stream
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishBatch returns how many messages were accepted
	PublishBatch(ctx context.Context, messages []Message) (int, error)

	Close() error
}

// Subscriber delivers messages of a subject to a handler
type Subscriber interface {
	Subscribe(subject string, handler Handler) error
	Unsubscribe(subject string) error
	Close() error
}

// Queue is a transport that can both publish and subscribe
type Queue interface {
	Publisher
	Subscriber
}

// Message is one payload addressed to a subject
type Message struct {
	Subject string
	Data    []byte
}

// Handler processes one delivered payload; an error asks the transport to redeliver
type Handler func(data []byte) error

// NopQueue discards everything; it backs queue.type=none
type NopQueue struct{}

func (NopQueue) Publish(context.Context, string, []byte) error { return nil }

func (NopQueue) PublishBatch(_ context.Context, messages []Message) (int, error) {
	return len(messages), nil
}

func (NopQueue) Subscribe(string, Handler) error { return nil }
func (NopQueue) Unsubscribe(string) error       { return nil }
func (NopQueue) Close() error                   { return nil }
