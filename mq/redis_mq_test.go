package mq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisQueue(t *testing.T) (*RedisQueue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewRedisQueue(client)
	q.retryDelay = 10 * time.Millisecond
	q.maxRetries = 1
	return q, client
}

func listLen(client *redis.Client, key string) int64 {
	n, _ := client.LLen(context.Background(), key).Result()
	return n
}

func TestRedisQueueHandlesMessageOnce(t *testing.T) {
	q, client := newTestRedisQueue(t)
	defer q.Close()
	ctx := context.Background()

	var handled atomic.Int32
	require.NoError(t, q.Start(func(_ context.Context, msg VoteMessage) error {
		handled.Add(1)
		return nil
	}))

	msg := NewVoteMessage(1, 2, 0, "alice", time.Now())
	require.NoError(t, q.Publish(ctx, msg))
	require.Eventually(t, func() bool { return handled.Load() == 1 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, q.Publish(ctx, msg))
	require.Eventually(t, func() bool {
		return listLen(client, MainQueueName) == 0 && listLen(client, ProcessingQueueName) == 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), handled.Load())

	stats := q.Stats(ctx)
	assert.Equal(t, "redis", stats["type"])
	assert.Equal(t, int64(0), stats["dead_letter_queue"])
}

func TestRedisQueueDeadLetterAndRetry(t *testing.T) {
	q, client := newTestRedisQueue(t)
	ctx := context.Background()

	var attempts atomic.Int32
	require.NoError(t, q.Start(func(_ context.Context, msg VoteMessage) error {
		attempts.Add(1)
		return errors.New("results unavailable")
	}))

	msg := NewVoteMessage(1, 2, 0, "alice", time.Now())
	require.NoError(t, q.Publish(ctx, msg))
	require.Eventually(t, func() bool {
		return listLen(client, DeadLetterQueueName) == 1
	}, 3*time.Second, 10*time.Millisecond)
	q.Close()

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, int64(0), listLen(client, MainQueueName))
	assert.Equal(t, int64(0), listLen(client, ProcessingQueueName))

	moved, err := q.RetryDeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Equal(t, int64(0), listLen(client, DeadLetterQueueName))
	assert.Equal(t, int64(1), listLen(client, MainQueueName))

	retried, err := client.HExists(ctx, RetriesHashName, msg.MessageID).Result()
	require.NoError(t, err)
	assert.False(t, retried)
}
