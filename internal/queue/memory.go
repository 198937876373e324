package queue

import (
	"context"
	"fmt"
	"sync"
)

const defaultMemoryBacklog = 1000

// MemoryQueue delivers messages synchronously to in-process handlers and keeps
// a bounded backlog per subject for inspection
type MemoryQueue struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	backlog  map[string][][]byte
	max      int
	closed   bool
}

// NewMemoryQueue creates a memory queue keeping up to backlog messages per subject
func NewMemoryQueue(backlog int) *MemoryQueue {
	if backlog <= 0 {
		backlog = defaultMemoryBacklog
	}
	return &MemoryQueue{
		handlers: make(map[string]Handler),
		backlog:  make(map[string][][]byte),
		max:      backlog,
	}
}

// Publish stores the message and hands a copy to the subject's handler
func (q *MemoryQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := append([]byte(nil), data...)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("memory queue is closed")
	}
	buf := append(q.backlog[subject], msg)
	if len(buf) > q.max {
		buf = buf[len(buf)-q.max:]
	}
	q.backlog[subject] = buf
	handler := q.handlers[subject]
	q.mu.Unlock()

	if handler != nil {
		if err := handler(msg); err != nil {
			return fmt.Errorf("handler for %s failed: %w", subject, err)
		}
	}
	return nil
}

// PublishBatch publishes each message in order and stops at the first error
func (q *MemoryQueue) PublishBatch(ctx context.Context, messages []Message) (int, error) {
	for i, m := range messages {
		if err := q.Publish(ctx, m.Subject, m.Data); err != nil {
			return i, err
		}
	}
	return len(messages), nil
}

// Subscribe registers the handler for a subject
func (q *MemoryQueue) Subscribe(subject string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.handlers[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}
	q.handlers[subject] = handler
	return nil
}

// Unsubscribe removes the subject's handler
func (q *MemoryQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.handlers[subject]; !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	delete(q.handlers, subject)
	return nil
}

// Messages returns the retained messages of a subject, oldest first
func (q *MemoryQueue) Messages(subject string) [][]byte {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([][]byte(nil), q.backlog[subject]...)
}

// Close drops all handlers; later publishes fail
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.handlers = make(map[string]Handler)
	return nil
}
