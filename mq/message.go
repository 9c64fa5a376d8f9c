package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TopicVoteEvents 投票事件主题
const TopicVoteEvents = "poll_vote_events"

// ErrQueueFull 内存队列已满
var ErrQueueFull = errors.New("vote queue is full")

// VoteMessage 一次成功投票（新投或改票）之后发出的事件
type VoteMessage struct {
	MessageID        string `json:"message_id"` // 幂等处理用
	QuestionID       uint   `json:"question_id"`
	ChoiceID         uint   `json:"choice_id"`
	PreviousChoiceID uint   `json:"previous_choice_id,omitempty"`
	VoterID          string `json:"voter_id"`
	Timestamp        int64  `json:"timestamp"`
}

// NewVoteMessage 构造带唯一ID的投票事件
func NewVoteMessage(questionID, choiceID, previousChoiceID uint, voterID string, at time.Time) VoteMessage {
	return VoteMessage{
		MessageID:        uuid.NewString(),
		QuestionID:       questionID,
		ChoiceID:         choiceID,
		PreviousChoiceID: previousChoiceID,
		VoterID:          voterID,
		Timestamp:        at.Unix(),
	}
}

// Handler 消费投票事件
type Handler func(ctx context.Context, msg VoteMessage) error

// Queue 投票事件队列
type Queue interface {
	Publish(ctx context.Context, msg VoteMessage) error
	// Start 注册处理函数并开始消费
	Start(handler Handler) error
	Stats(ctx context.Context) map[string]interface{}
	Close()
}

// DeadLetterRetrier 支持死信重投的队列
type DeadLetterRetrier interface {
	RetryDeadLetters(ctx context.Context) (int, error)
}

// processedSet 进程内的已处理消息ID集合，超过ttl的记录在写入时顺带清理
type processedSet struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

func newProcessedSet(ttl time.Duration) *processedSet {
	return &processedSet{ttl: ttl, seen: make(map[string]time.Time)}
}

func (s *processedSet) contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.seen[id]
	return ok && time.Since(at) < s.ttl
}

func (s *processedSet) add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if len(s.seen) >= 1024 {
		for k, at := range s.seen {
			if now.Sub(at) >= s.ttl {
				delete(s.seen, k)
			}
		}
	}
	s.seen[id] = now
}
