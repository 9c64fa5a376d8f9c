package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis队列使用的键
const (
	MainQueueName       = "polls:vote_queue"
	ProcessingQueueName = "polls:vote_processing"
	DeadLetterQueueName = "polls:vote_dead_letter"
	RetriesHashName     = "polls:vote_retries"
	processedKeyPrefix  = "polls:vote_processed:"
)

// RedisQueue 基于Redis列表的可靠队列：
// 消费时原子地移到处理中队列，失败重试，超过次数进死信队列
type RedisQueue struct {
	client     *redis.Client
	handler    Handler
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	retryDelay time.Duration
	maxRetries int
}

// NewRedisQueue 创建Redis队列
func NewRedisQueue(client *redis.Client) *RedisQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		client:     client,
		ctx:        ctx,
		cancel:     cancel,
		retryDelay: 5 * time.Second,
		maxRetries: 3,
	}
}

func (r *RedisQueue) Publish(ctx context.Context, msg VoteMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal vote message: %w", err)
	}
	if err := r.client.LPush(ctx, MainQueueName, data).Err(); err != nil {
		return fmt.Errorf("push vote message: %w", err)
	}
	return nil
}

func (r *RedisQueue) Start(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	r.handler = handler
	r.running = true

	// 上次退出时遗留在处理中队列的消息重新入队
	r.recoverProcessing()

	r.wg.Add(1)
	go r.consumeLoop()
	log.Println("Redis消息队列消费者已启动")
	return nil
}

func (r *RedisQueue) consumeLoop() {
	defer r.wg.Done()
	for {
		if r.ctx.Err() != nil {
			return
		}
		data, err := r.client.BLMove(r.ctx, MainQueueName, ProcessingQueueName, "RIGHT", "LEFT", time.Second).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && r.ctx.Err() == nil {
				log.Printf("从队列获取消息失败: %v", err)
				time.Sleep(time.Second)
			}
			continue
		}
		r.processMessage(data)
	}
}

func (r *RedisQueue) processMessage(data string) {
	defer r.client.LRem(context.Background(), ProcessingQueueName, 1, data)

	var msg VoteMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		log.Printf("解析消息失败: %v", err)
		r.client.LPush(context.Background(), DeadLetterQueueName, data)
		return
	}

	// 幂等：同一消息只处理一次
	processedKey := processedKeyPrefix + msg.MessageID
	if n, err := r.client.Exists(r.ctx, processedKey).Result(); err == nil && n > 0 {
		log.Printf("消息已处理过，跳过: %s", msg.MessageID)
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()
	if err := r.handler(ctx, msg); err != nil {
		log.Printf("处理消息失败: %s: %v", msg.MessageID, err)
		r.retryOrBury(msg, data)
		return
	}

	r.client.Set(context.Background(), processedKey, 1, 48*time.Hour)
	r.client.HDel(context.Background(), RetriesHashName, msg.MessageID)
}

func (r *RedisQueue) retryOrBury(msg VoteMessage, data string) {
	bg := context.Background()
	retries, _ := r.client.HIncrBy(bg, RetriesHashName, msg.MessageID, 1).Result()
	if int(retries) > r.maxRetries {
		log.Printf("消息 %s 超过最大重试次数，移至死信队列", msg.MessageID)
		r.client.LPush(bg, DeadLetterQueueName, data)
		return
	}
	time.AfterFunc(r.retryDelay, func() {
		if err := r.client.LPush(bg, MainQueueName, data).Err(); err != nil {
			log.Printf("消息 %s 重新入队失败: %v", msg.MessageID, err)
			return
		}
		log.Printf("消息 %s 重新入队，重试次数: %d", msg.MessageID, retries)
	})
}

func (r *RedisQueue) recoverProcessing() {
	bg := context.Background()
	moved := 0
	for {
		if err := r.client.RPopLPush(bg, ProcessingQueueName, MainQueueName).Err(); err != nil {
			break
		}
		moved++
	}
	if moved > 0 {
		log.Printf("恢复了 %d 条处理中的消息", moved)
	}
}

// RetryDeadLetters 把死信队列中的消息移回主队列
func (r *RedisQueue) RetryDeadLetters(ctx context.Context) (int, error) {
	count := 0
	for {
		data, err := r.client.RPopLPush(ctx, DeadLetterQueueName, MainQueueName).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("retry dead letters: %w", err)
		}
		var msg VoteMessage
		if json.Unmarshal([]byte(data), &msg) == nil {
			r.client.HDel(ctx, RetriesHashName, msg.MessageID)
		}
		count++
	}
	log.Printf("成功将 %d 条消息从死信队列移回主队列", count)
	return count, nil
}

func (r *RedisQueue) Stats(ctx context.Context) map[string]interface{} {
	mainLen, _ := r.client.LLen(ctx, MainQueueName).Result()
	procLen, _ := r.client.LLen(ctx, ProcessingQueueName).Result()
	deadLen, _ := r.client.LLen(ctx, DeadLetterQueueName).Result()
	return map[string]interface{}{
		"type":              "redis",
		"main_queue":        mainLen,
		"processing_queue":  procLen,
		"dead_letter_queue": deadLen,
	}
}

// Close 停止消费，不关闭共享的Redis客户端
func (r *RedisQueue) Close() {
	r.cancel()
	r.wg.Wait()
	log.Println("Redis消息队列消费者已关闭")
}
