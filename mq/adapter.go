package mq

import (
	"log"

	"polls-backend/config"

	"github.com/redis/go-redis/v9"
)

const localQueueBuffer = 1024

// NewQueue 按配置选择队列实现。RocketMQ 或 Redis 不可用时退回内存队列，
// 投票本身不依赖事件投递
func NewQueue(cfg config.QueueConfig, redisClient *redis.Client) Queue {
	switch cfg.Driver {
	case "rocketmq":
		q, err := NewRocketMQQueue(cfg)
		if err == nil {
			return q
		}
		log.Printf("RocketMQ初始化失败，将使用内存队列: %v", err)
	case "redis":
		if redisClient != nil {
			log.Println("使用Redis消息队列")
			return NewRedisQueue(redisClient)
		}
		log.Println("Redis不可用，将使用内存队列")
	}
	return NewLocalQueue(localQueueBuffer)
}
