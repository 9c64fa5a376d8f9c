package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"polls-backend/config"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

// RocketMQQueue 基于RocketMQ的投票事件队列。
// 消费者使用广播模式，每个服务实例都收到事件并推送给自己的WebSocket连接
type RocketMQQueue struct {
	cfg       config.QueueConfig
	producer  rocketmq.Producer
	consumer  rocketmq.PushConsumer
	processed *processedSet
}

// NewRocketMQQueue 创建并启动生产者
func NewRocketMQQueue(cfg config.QueueConfig) (*RocketMQQueue, error) {
	log.Printf("初始化RocketMQ连接, 地址: %s", cfg.NameServerAddr)

	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{cfg.NameServerAddr}),
		producer.WithGroupName(cfg.GroupName+"_producer"),
		producer.WithRetry(2),
		producer.WithSendMsgTimeout(10*time.Second),
		producer.WithVIPChannel(false),
	)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("start rocketmq producer: %w", err)
	}

	log.Println("RocketMQ生产者初始化成功")
	return &RocketMQQueue{cfg: cfg, producer: p, processed: newProcessedSet(24 * time.Hour)}, nil
}

func (q *RocketMQQueue) Publish(ctx context.Context, msg VoteMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal vote message: %w", err)
	}

	message := primitive.NewMessage(TopicVoteEvents, body)
	message.WithTag("vote")
	message.WithKeys([]string{msg.MessageID})
	// 同一问题的事件进入同一队列，保证顺序
	message.WithShardingKey(strconv.FormatUint(uint64(msg.QuestionID), 10))

	res, err := q.producer.SendSync(ctx, message)
	if err != nil {
		return fmt.Errorf("send vote message: %w", err)
	}
	log.Printf("发送消息成功, MsgID: %s, MessageID: %s", res.MsgID, msg.MessageID)
	return nil
}

func (q *RocketMQQueue) Start(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer([]string{q.cfg.NameServerAddr}),
		consumer.WithGroupName(q.cfg.GroupName+"_consumer"),
		consumer.WithConsumerModel(consumer.BroadCasting),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromLastOffset),
	)
	if err != nil {
		return fmt.Errorf("create rocketmq consumer: %w", err)
	}

	err = c.Subscribe(TopicVoteEvents, consumer.MessageSelector{
		Type:       consumer.TAG,
		Expression: "vote",
	}, func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
		for _, m := range msgs {
			var msg VoteMessage
			if err := json.Unmarshal(m.Body, &msg); err != nil {
				log.Printf("解析消息失败: %v", err)
				continue
			}
			if q.processed.contains(msg.MessageID) {
				continue
			}
			if err := handler(ctx, msg); err != nil {
				log.Printf("处理消息失败: %v", err)
				return consumer.ConsumeRetryLater, nil
			}
			q.processed.add(msg.MessageID)
		}
		return consumer.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicVoteEvents, err)
	}
	if err := c.Start(); err != nil {
		return fmt.Errorf("start rocketmq consumer: %w", err)
	}

	q.consumer = c
	log.Println("RocketMQ消费者启动成功")
	return nil
}

func (q *RocketMQQueue) Stats(context.Context) map[string]interface{} {
	return map[string]interface{}{
		"type":        "rocketmq",
		"name_server": q.cfg.NameServerAddr,
		"topic":       TopicVoteEvents,
		"consuming":   q.consumer != nil,
	}
}

func (q *RocketMQQueue) Close() {
	if q.consumer != nil {
		if err := q.consumer.Shutdown(); err != nil {
			log.Printf("关闭RocketMQ消费者失败: %v", err)
		}
	}
	if err := q.producer.Shutdown(); err != nil {
		log.Printf("关闭RocketMQ生产者失败: %v", err)
	}
	log.Println("RocketMQ已关闭")
}
