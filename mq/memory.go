package mq

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// LocalQueue 进程内队列，没有消息中间件时使用，单个goroutine按顺序消费
type LocalQueue struct {
	messages  chan VoteMessage
	processed *processedSet
	stop      chan struct{}
	wg        sync.WaitGroup
	started   atomic.Bool
	stopOnce  sync.Once

	published atomic.Int64
	handled   atomic.Int64
	failed    atomic.Int64
}

// NewLocalQueue 创建内存队列
func NewLocalQueue(buffer int) *LocalQueue {
	return &LocalQueue{
		messages:  make(chan VoteMessage, buffer),
		processed: newProcessedSet(time.Hour),
		stop:      make(chan struct{}),
	}
}

// Publish 不阻塞，缓冲区满时返回 ErrQueueFull
func (q *LocalQueue) Publish(_ context.Context, msg VoteMessage) error {
	select {
	case q.messages <- msg:
		q.published.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *LocalQueue) Start(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	if !q.started.CompareAndSwap(false, true) {
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case msg := <-q.messages:
				q.dispatch(handler, msg)
			case <-q.stop:
				return
			}
		}
	}()
	log.Println("内存消息队列消费者已启动")
	return nil
}

func (q *LocalQueue) dispatch(handler Handler, msg VoteMessage) {
	if q.processed.contains(msg.MessageID) {
		log.Printf("消息已处理过，跳过: %s", msg.MessageID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := handler(ctx, msg); err != nil {
		q.failed.Add(1)
		log.Printf("处理消息失败: %s: %v", msg.MessageID, err)
		return
	}
	q.handled.Add(1)
	q.processed.add(msg.MessageID)
}

func (q *LocalQueue) Stats(context.Context) map[string]interface{} {
	return map[string]interface{}{
		"type":      "memory",
		"pending":   len(q.messages),
		"published": q.published.Load(),
		"handled":   q.handled.Load(),
		"failed":    q.failed.Load(),
	}
}

func (q *LocalQueue) Close() {
	q.stopOnce.Do(func() {
		close(q.stop)
		q.wg.Wait()
		log.Println("内存消息队列已关闭")
	})
}
