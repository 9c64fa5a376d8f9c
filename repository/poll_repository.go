package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polls-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrQuestionNotFound 问题不存在
	ErrQuestionNotFound = errors.New("question not found")
	// ErrChoiceNotFound 选项不存在
	ErrChoiceNotFound = errors.New("choice not found")
)

// BallotResult UpsertBallot 的结果
type BallotResult struct {
	Vote             models.Vote
	Created          bool
	PreviousChoiceID uint // 改票前的选项，新建时为0
}

// QuestionPatch 管理员可修改的字段，nil 表示不修改
type QuestionPatch struct {
	Available    *bool
	EndDate      *time.Time
	ClearEndDate bool
}

// PollRepository 问题、选项和选票的存储接口
type PollRepository interface {
	// WithinTx 在单个事务中执行 fn，fn 收到的仓库绑定到该事务
	WithinTx(ctx context.Context, fn func(repo PollRepository) error) error

	ListPublished(ctx context.Context, now time.Time, limit int) ([]models.Question, error)
	ListAll(ctx context.Context) ([]models.Question, error)
	Load(ctx context.Context, questionID uint) (*models.Question, error)

	FindBallot(ctx context.Context, voterID string, questionID uint) (*models.Vote, error)
	UpsertBallot(ctx context.Context, voterID string, questionID, choiceID uint) (*BallotResult, error)
	CountByChoice(ctx context.Context, questionID uint) (map[uint]int64, error)
	CountForChoice(ctx context.Context, choiceID uint) (int64, error)

	CreateQuestion(ctx context.Context, q *models.Question) error
	AddChoice(ctx context.Context, choice *models.Choice) error
	UpdateQuestion(ctx context.Context, questionID uint, patch QuestionPatch) error

	Ping(ctx context.Context) error
}

// GormPollRepository 基于GORM的实现
type GormPollRepository struct {
	db *gorm.DB
}

// NewPollRepository 创建仓库
func NewPollRepository(db *gorm.DB) *GormPollRepository {
	return &GormPollRepository{db: db}
}

func (r *GormPollRepository) WithinTx(ctx context.Context, fn func(repo PollRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormPollRepository{db: tx})
	})
}

// ListPublished 已发布的问题，按发布时间倒序
func (r *GormPollRepository) ListPublished(ctx context.Context, now time.Time, limit int) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.WithContext(ctx).
		Where("pub_date <= ?", now).
		Order("pub_date desc").
		Limit(limit).
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("list published questions: %w", err)
	}
	return questions, nil
}

func (r *GormPollRepository) ListAll(ctx context.Context) ([]models.Question, error) {
	var questions []models.Question
	if err := r.db.WithContext(ctx).Order("pub_date desc").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// Load 读取问题及其选项
func (r *GormPollRepository) Load(ctx context.Context, questionID uint) (*models.Question, error) {
	var q models.Question
	err := r.db.WithContext(ctx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&q, questionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question %d: %w", questionID, err)
	}
	return &q, nil
}

// FindBallot 查找投票人在某问题上的选票，没有时返回 nil, nil
func (r *GormPollRepository) FindBallot(ctx context.Context, voterID string, questionID uint) (*models.Vote, error) {
	var vote models.Vote
	err := r.db.WithContext(ctx).
		Where("voter_id = ? AND question_id = ?", voterID, questionID).
		Take(&vote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find ballot: %w", err)
	}
	return &vote, nil
}

// UpsertBallot 有选票则改选项，没有则新建。调用方负责开启事务
func (r *GormPollRepository) UpsertBallot(ctx context.Context, voterID string, questionID, choiceID uint) (*BallotResult, error) {
	return r.upsertBallot(ctx, voterID, questionID, choiceID, true)
}

func (r *GormPollRepository) upsertBallot(ctx context.Context, voterID string, questionID, choiceID uint, retry bool) (*BallotResult, error) {
	// SELECT ... FOR UPDATE，SQLite方言会忽略行锁
	var vote models.Vote
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("voter_id = ? AND question_id = ?", voterID, questionID).Take(&vote).Error
	switch {
	case err == nil:
		previous := vote.ChoiceID
		if previous != choiceID {
			if err := r.db.WithContext(ctx).Model(&vote).Update("choice_id", choiceID).Error; err != nil {
				return nil, fmt.Errorf("update ballot: %w", err)
			}
			vote.ChoiceID = choiceID
		}
		return &BallotResult{Vote: vote, PreviousChoiceID: previous}, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		vote = models.Vote{VoterID: voterID, QuestionID: questionID, ChoiceID: choiceID}
		if err := r.db.WithContext(ctx).Create(&vote).Error; err != nil {
			// 并发插入撞上唯一索引，退回更新路径
			if retry && errors.Is(err, gorm.ErrDuplicatedKey) {
				return r.upsertBallot(ctx, voterID, questionID, choiceID, false)
			}
			return nil, fmt.Errorf("create ballot: %w", err)
		}
		return &BallotResult{Vote: vote, Created: true}, nil

	default:
		return nil, fmt.Errorf("lookup ballot: %w", err)
	}
}

type choiceCount struct {
	ChoiceID uint
	Total    int64
}

// CountByChoice 统计问题下每个选项的票数，没有票的选项不出现在结果里
func (r *GormPollRepository) CountByChoice(ctx context.Context, questionID uint) (map[uint]int64, error) {
	var rows []choiceCount
	err := r.db.WithContext(ctx).
		Model(&models.Vote{}).
		Select("choice_id, COUNT(*) AS total").
		Where("question_id = ?", questionID).
		Group("choice_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count ballots: %w", err)
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.ChoiceID] = row.Total
	}
	return counts, nil
}

// CountForChoice 单个选项的票数
func (r *GormPollRepository) CountForChoice(ctx context.Context, choiceID uint) (int64, error) {
	var exists int64
	if err := r.db.WithContext(ctx).Model(&models.Choice{}).Where("id = ?", choiceID).Count(&exists).Error; err != nil {
		return 0, fmt.Errorf("lookup choice: %w", err)
	}
	if exists == 0 {
		return 0, ErrChoiceNotFound
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Vote{}).Where("choice_id = ?", choiceID).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count choice ballots: %w", err)
	}
	return total, nil
}

func (r *GormPollRepository) CreateQuestion(ctx context.Context, q *models.Question) error {
	if err := r.db.WithContext(ctx).Create(q).Error; err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

func (r *GormPollRepository) AddChoice(ctx context.Context, choice *models.Choice) error {
	var exists int64
	if err := r.db.WithContext(ctx).Model(&models.Question{}).Where("id = ?", choice.QuestionID).Count(&exists).Error; err != nil {
		return fmt.Errorf("lookup question: %w", err)
	}
	if exists == 0 {
		return ErrQuestionNotFound
	}
	if err := r.db.WithContext(ctx).Create(choice).Error; err != nil {
		return fmt.Errorf("create choice: %w", err)
	}
	return nil
}

func (r *GormPollRepository) UpdateQuestion(ctx context.Context, questionID uint, patch QuestionPatch) error {
	updates := map[string]interface{}{}
	if patch.Available != nil {
		updates["available"] = *patch.Available
	}
	if patch.ClearEndDate {
		updates["end_date"] = nil
	} else if patch.EndDate != nil {
		updates["end_date"] = *patch.EndDate
	}

	var q models.Question
	if err := r.db.WithContext(ctx).First(&q, questionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("load question %d: %w", questionID, err)
	}
	if len(updates) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&q).Updates(updates).Error; err != nil {
		return fmt.Errorf("update question %d: %w", questionID, err)
	}
	return nil
}

// Ping 检查数据库连接
func (r *GormPollRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
