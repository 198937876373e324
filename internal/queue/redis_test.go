package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisURL(t *testing.T) string {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	return url
}

func TestRedisQueue_PublishAndSubscribe(t *testing.T) {
	q, err := NewRedisQueue(RedisConfig{URL: redisURL(t), Prefix: "insight-test-" + time.Now().Format("150405.000"), MaxLen: 100})
	require.NoError(t, err)
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, "alerts", []byte("one")))
	n, err := q.PublishBatch(ctx, []Message{{Subject: "alerts", Data: []byte("two")}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := make(chan string, 2)
	require.NoError(t, q.Subscribe("alerts", func(data []byte) error {
		got <- string(data)
		return nil
	}))

	for _, want := range []string{"one", "two"} {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	length, err := q.client.XLen(ctx, q.stream("alerts")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
	_ = q.client.Del(ctx, q.stream("alerts"))
}

func TestRedisQueue_Defaults(t *testing.T) {
	q := newRedisQueueWithClient(nil, RedisConfig{})
	assert.Equal(t, "insight", q.config.Prefix)
	assert.Equal(t, "insight-alerts", q.config.Group)
	assert.NotEmpty(t, q.config.Consumer)
	assert.Equal(t, "insight:insight.alerts", q.stream("insight.alerts"))

	args := q.addArgs("s", []byte("x"))
	assert.Zero(t, args.MaxLen)

	q.config.MaxLen = 50
	args = q.addArgs("s", []byte("x"))
	assert.Equal(t, int64(50), args.MaxLen)
	assert.True(t, args.Approx)
}
