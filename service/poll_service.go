package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"polls-backend/cache"
	"polls-backend/models"
	"polls-backend/mq"
	"polls-backend/repository"
)

var (
	// 业务错误定义
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("question is not open for voting")
	ErrNoChoice        = errors.New("no choice selected")
	ErrVoterRequired   = errors.New("voter identity required")
	ErrInvalidQuestion = errors.New("invalid question")
	ErrBusy            = errors.New("another vote from this voter is in progress")
)

const (
	// IndexLimit 首页最多展示的问题数
	IndexLimit = 5

	maxTextLength  = 200
	defaultLockTTL = 5 * time.Second
)

// Clock 当前时间来源，测试中替换为固定时间
type Clock interface {
	Now() time.Time
}

// SystemClock 系统时钟，统一使用UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Locker 按名字互斥，cache.DistributedLockService 和 cache.LocalLocker 均实现
type Locker interface {
	WithLock(ctx context.Context, name string, expiry time.Duration, action func() error) error
}

// QuestionCache 问题详情缓存，见 cache.QuestionCache
type QuestionCache interface {
	GetQuestion(ctx context.Context, id uint, load func(ctx context.Context) (*models.Question, error)) (*models.Question, error)
	InvalidateQuestion(ctx context.Context, id uint) error
}

// EventPublisher 投票事件发布，见 mq.Queue
type EventPublisher interface {
	Publish(ctx context.Context, msg mq.VoteMessage) error
}

// Dependencies 投票服务的依赖，只有 Repo 是必需的
type Dependencies struct {
	Repo    repository.PollRepository
	Clock   Clock
	Locker  Locker
	Cache   QuestionCache
	Events  EventPublisher
	Logger  *slog.Logger
	LockTTL time.Duration
}

// PollService 投票服务
type PollService struct {
	repo    repository.PollRepository
	clock   Clock
	locker  Locker
	cache   QuestionCache
	events  EventPublisher
	logger  *slog.Logger
	lockTTL time.Duration
}

// NewPollService 创建投票服务
func NewPollService(deps Dependencies) *PollService {
	s := &PollService{
		repo:    deps.Repo,
		clock:   deps.Clock,
		locker:  deps.Locker,
		cache:   deps.Cache,
		events:  deps.Events,
		logger:  deps.Logger,
		lockTTL: deps.LockTTL,
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.locker == nil {
		s.locker = cache.NewLocalLocker()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	return s
}

// QuestionSummary 列表项
type QuestionSummary struct {
	ID                   uint       `json:"id"`
	Text                 string     `json:"question_text"`
	PubDate              time.Time  `json:"pub_date"`
	EndDate              *time.Time `json:"end_date,omitempty"`
	Available            bool       `json:"available"`
	WasPublishedRecently bool       `json:"was_published_recently"`
	CanVote              bool       `json:"can_vote"`
}

// ChoiceResult 单个选项的票数
type ChoiceResult struct {
	ID         uint    `json:"id"`
	Text       string  `json:"choice_text"`
	Votes      int64   `json:"votes"`
	Percentage float64 `json:"percentage"`
}

// Results 问题的计票结果
type Results struct {
	QuestionID uint           `json:"question_id"`
	Text       string         `json:"question_text"`
	TotalVotes int64          `json:"total_votes"`
	CanVote    bool           `json:"can_vote"`
	Choices    []ChoiceResult `json:"choices"`
}

// VoteCommand 投票请求，ChoiceID 为 nil 表示没有选择
type VoteCommand struct {
	QuestionID uint
	VoterID    string
	ChoiceID   *uint
}

// VoteReceipt 投票结果
type VoteReceipt struct {
	QuestionID       uint     `json:"question_id"`
	ChoiceID         uint     `json:"choice_id"`
	PreviousChoiceID uint     `json:"previous_choice_id,omitempty"`
	Created          bool     `json:"created"`
	Results          *Results `json:"results"`
}

func (s *PollService) now() time.Time {
	return s.clock.Now().UTC()
}

// Index 最新发布的问题，按发布时间倒序，最多 IndexLimit 个
func (s *PollService) Index(ctx context.Context) ([]QuestionSummary, error) {
	now := s.now()
	questions, err := s.repo.ListPublished(ctx, now, IndexLimit)
	if err != nil {
		return nil, err
	}
	return summarize(questions, now), nil
}

// Detail 可投票的问题及其选项
func (s *PollService) Detail(ctx context.Context, questionID uint) (*models.Question, error) {
	q, err := s.loadQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !q.CanVote(s.now()) {
		return nil, ErrForbidden
	}
	return q, nil
}

// CastVote 投票或改票。读取问题、写选票、计票在同一个事务里完成，
// 并且同一投票人对同一问题的请求被锁串行化
func (s *PollService) CastVote(ctx context.Context, cmd VoteCommand) (*VoteReceipt, error) {
	voterID := strings.TrimSpace(cmd.VoterID)
	if voterID == "" {
		return nil, ErrVoterRequired
	}
	now := s.now()

	var receipt *VoteReceipt
	lockName := fmt.Sprintf("polls:ballot:%d:%s", cmd.QuestionID, voterID)
	err := s.locker.WithLock(ctx, lockName, s.lockTTL, func() error {
		return s.repo.WithinTx(ctx, func(tx repository.PollRepository) error {
			q, err := tx.Load(ctx, cmd.QuestionID)
			if errors.Is(err, repository.ErrQuestionNotFound) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			if !q.CanVote(now) {
				return ErrForbidden
			}
			if cmd.ChoiceID == nil || q.FindChoice(*cmd.ChoiceID) == nil {
				return ErrNoChoice
			}

			ballot, err := tx.UpsertBallot(ctx, voterID, q.ID, *cmd.ChoiceID)
			if err != nil {
				return err
			}
			counts, err := tx.CountByChoice(ctx, q.ID)
			if err != nil {
				return err
			}

			receipt = &VoteReceipt{
				QuestionID:       q.ID,
				ChoiceID:         *cmd.ChoiceID,
				PreviousChoiceID: ballot.PreviousChoiceID,
				Created:          ballot.Created,
				Results:          buildResults(q, counts, now),
			}
			return nil
		})
	})
	if errors.Is(err, cache.ErrLockNotAcquired) {
		return nil, ErrBusy
	}
	if err != nil {
		if !isBusinessError(err) {
			s.logger.Error("cast vote failed",
				"event", "polls_cast_vote_failed",
				"question_id", cmd.QuestionID,
				"voter_id", voterID,
				"error", err.Error(),
			)
		}
		return nil, err
	}

	s.logger.Info("vote recorded",
		"event", "polls_vote_recorded",
		"question_id", receipt.QuestionID,
		"choice_id", receipt.ChoiceID,
		"created", receipt.Created,
	)
	if receipt.Created || receipt.PreviousChoiceID != receipt.ChoiceID {
		s.publish(ctx, mq.NewVoteMessage(receipt.QuestionID, receipt.ChoiceID, receipt.PreviousChoiceID, voterID, now))
	}
	return receipt, nil
}

// Results 已发布问题的计票结果，票数每次都从选票表重新统计
func (s *PollService) Results(ctx context.Context, questionID uint) (*Results, error) {
	q, err := s.loadQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !q.IsPublished(now) {
		return nil, ErrNotFound
	}
	counts, err := s.repo.CountByChoice(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	return buildResults(q, counts, now), nil
}

// Tally 单个选项的票数
func (s *PollService) Tally(ctx context.Context, choiceID uint) (int64, error) {
	total, err := s.repo.CountForChoice(ctx, choiceID)
	if errors.Is(err, repository.ErrChoiceNotFound) {
		return 0, ErrNotFound
	}
	return total, err
}

// CurrentChoice 投票人当前选择的选项，没有投过票时返回0
func (s *PollService) CurrentChoice(ctx context.Context, questionID uint, voterID string) (uint, error) {
	voterID = strings.TrimSpace(voterID)
	if voterID == "" {
		return 0, nil
	}
	ballot, err := s.repo.FindBallot(ctx, voterID, questionID)
	if err != nil || ballot == nil {
		return 0, err
	}
	return ballot.ChoiceID, nil
}

func (s *PollService) loadQuestion(ctx context.Context, questionID uint) (*models.Question, error) {
	var (
		q   *models.Question
		err error
	)
	if s.cache != nil {
		q, err = s.cache.GetQuestion(ctx, questionID, func(ctx context.Context) (*models.Question, error) {
			return s.repo.Load(ctx, questionID)
		})
	} else {
		q, err = s.repo.Load(ctx, questionID)
	}
	if errors.Is(err, repository.ErrQuestionNotFound) {
		return nil, ErrNotFound
	}
	return q, err
}

func (s *PollService) publish(ctx context.Context, msg mq.VoteMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, msg); err != nil {
		s.logger.Warn("publish vote event failed",
			"event", "polls_vote_event_publish_failed",
			"question_id", msg.QuestionID,
			"message_id", msg.MessageID,
			"error", err.Error(),
		)
	}
}

func isBusinessError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrNoChoice)
}

func summarize(questions []models.Question, now time.Time) []QuestionSummary {
	out := make([]QuestionSummary, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		out = append(out, QuestionSummary{
			ID:                   q.ID,
			Text:                 q.Text,
			PubDate:              q.PubDate,
			EndDate:              q.EndDate,
			Available:            q.Available,
			WasPublishedRecently: q.WasPublishedRecently(now),
			CanVote:              q.CanVote(now),
		})
	}
	return out
}

func buildResults(q *models.Question, counts map[uint]int64, now time.Time) *Results {
	res := &Results{
		QuestionID: q.ID,
		Text:       q.Text,
		CanVote:    q.CanVote(now),
		Choices:    make([]ChoiceResult, 0, len(q.Choices)),
	}
	for _, c := range q.Choices {
		res.TotalVotes += counts[c.ID]
	}
	for _, c := range q.Choices {
		votes := counts[c.ID]
		percentage := 0.0
		if res.TotalVotes > 0 {
			percentage = math.Round(float64(votes)/float64(res.TotalVotes)*10000) / 100
		}
		res.Choices = append(res.Choices, ChoiceResult{
			ID:         c.ID,
			Text:       c.Text,
			Votes:      votes,
			Percentage: percentage,
		})
	}
	return res
}

func validateText(field, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidQuestion, field)
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return "", fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidQuestion, field, maxTextLength)
	}
	return text, nil
}
