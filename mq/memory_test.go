package mq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"polls-backend/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVoteMessage(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewVoteMessage(1, 2, 3, "alice", at)
	b := NewVoteMessage(1, 2, 3, "alice", at)

	assert.NotEmpty(t, a.MessageID)
	assert.NotEqual(t, a.MessageID, b.MessageID)
	assert.Equal(t, at.Unix(), a.Timestamp)
	assert.Equal(t, uint(3), a.PreviousChoiceID)
}

func TestLocalQueueDeliversInOrder(t *testing.T) {
	q := NewLocalQueue(16)
	defer q.Close()

	var mu sync.Mutex
	var got []uint
	require.NoError(t, q.Start(func(_ context.Context, msg VoteMessage) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg.ChoiceID)
		return nil
	}))

	ctx := context.Background()
	for i := uint(1); i <= 3; i++ {
		require.NoError(t, q.Publish(ctx, NewVoteMessage(1, i, 0, "alice", time.Now())))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint{1, 2, 3}, got)
	assert.Equal(t, int64(3), q.Stats(ctx)["handled"])
}

func TestLocalQueueSkipsDuplicates(t *testing.T) {
	q := NewLocalQueue(16)
	defer q.Close()

	calls := make(chan VoteMessage, 4)
	require.NoError(t, q.Start(func(_ context.Context, msg VoteMessage) error {
		calls <- msg
		return nil
	}))

	msg := NewVoteMessage(1, 1, 0, "alice", time.Now())
	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, msg))
	require.NoError(t, q.Publish(ctx, msg))
	require.NoError(t, q.Publish(ctx, NewVoteMessage(1, 2, 1, "alice", time.Now())))

	first := <-calls
	second := <-calls
	assert.Equal(t, msg.MessageID, first.MessageID)
	assert.Equal(t, uint(2), second.ChoiceID)
	assert.Empty(t, calls)
}

func TestLocalQueueCountsFailures(t *testing.T) {
	q := NewLocalQueue(4)
	defer q.Close()

	require.NoError(t, q.Start(func(context.Context, VoteMessage) error { return errors.New("down") }))
	require.NoError(t, q.Publish(context.Background(), NewVoteMessage(1, 1, 0, "a", time.Now())))

	require.Eventually(t, func() bool {
		return q.Stats(context.Background())["failed"] == int64(1)
	}, time.Second, 5*time.Millisecond)
}

func TestLocalQueueFull(t *testing.T) {
	q := NewLocalQueue(1)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, NewVoteMessage(1, 1, 0, "a", time.Now())))
	assert.ErrorIs(t, q.Publish(ctx, NewVoteMessage(1, 1, 0, "b", time.Now())), ErrQueueFull)
}

func TestNewQueueFallsBackToMemory(t *testing.T) {
	q := NewQueue(config.QueueConfig{Driver: "redis"}, nil)
	defer q.Close()
	_, ok := q.(*LocalQueue)
	assert.True(t, ok)

	q2 := NewQueue(config.QueueConfig{Driver: "memory"}, nil)
	defer q2.Close()
	assert.Equal(t, "memory", q2.Stats(context.Background())["type"])
}
