package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"polls-backend/models"
	"polls-backend/repository"
)

// CreateQuestionInput 创建问题的参数
type CreateQuestionInput struct {
	Text      string     `json:"question_text"`
	PubDate   *time.Time `json:"pub_date"`
	EndDate   *time.Time `json:"end_date"`
	Available *bool      `json:"available"`
	Choices   []string   `json:"choices"`
}

// UpdateQuestionInput 修改问题的参数，nil 字段保持不变
type UpdateQuestionInput struct {
	Available    *bool      `json:"available"`
	EndDate      *time.Time `json:"end_date"`
	ClearEndDate bool       `json:"clear_end_date"`
}

// AdminList 所有问题，包括未发布的
func (s *PollService) AdminList(ctx context.Context) ([]QuestionSummary, error) {
	questions, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(questions, s.now()), nil
}

// CreateQuestion 创建问题。发布时间默认为当前时间，可投票默认为 true
func (s *PollService) CreateQuestion(ctx context.Context, in CreateQuestionInput) (*models.Question, error) {
	text, err := validateText("question_text", in.Text)
	if err != nil {
		return nil, err
	}

	pubDate := s.now()
	if in.PubDate != nil {
		pubDate = in.PubDate.UTC()
	}
	var endDate *time.Time
	if in.EndDate != nil {
		end := in.EndDate.UTC()
		if end.Before(pubDate) {
			return nil, fmt.Errorf("%w: end_date must not be before pub_date", ErrInvalidQuestion)
		}
		endDate = &end
	}
	available := true
	if in.Available != nil {
		available = *in.Available
	}

	q := &models.Question{
		Text:      text,
		PubDate:   pubDate,
		EndDate:   endDate,
		Available: available,
	}
	for _, raw := range in.Choices {
		choiceText, err := validateText("choice_text", raw)
		if err != nil {
			return nil, err
		}
		q.Choices = append(q.Choices, models.Choice{Text: choiceText})
	}

	if err := s.repo.CreateQuestion(ctx, q); err != nil {
		return nil, err
	}
	// 之前对这个ID的查询可能留下了空值缓存
	s.invalidate(ctx, q.ID)
	s.logger.Info("question created",
		"event", "polls_question_created",
		"question_id", q.ID,
		"choices", len(q.Choices),
	)
	return q, nil
}

// AddChoice 给已有问题添加选项
func (s *PollService) AddChoice(ctx context.Context, questionID uint, text string) (*models.Choice, error) {
	choiceText, err := validateText("choice_text", text)
	if err != nil {
		return nil, err
	}
	choice := &models.Choice{QuestionID: questionID, Text: choiceText}
	err = s.repo.AddChoice(ctx, choice)
	if errors.Is(err, repository.ErrQuestionNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, questionID)
	return choice, nil
}

// UpdateQuestion 修改可投票标记或截止时间
func (s *PollService) UpdateQuestion(ctx context.Context, questionID uint, in UpdateQuestionInput) (*models.Question, error) {
	q, err := s.repo.Load(ctx, questionID)
	if errors.Is(err, repository.ErrQuestionNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	patch := repository.QuestionPatch{Available: in.Available, ClearEndDate: in.ClearEndDate}
	if in.EndDate != nil && !in.ClearEndDate {
		end := in.EndDate.UTC()
		if end.Before(q.PubDate) {
			return nil, fmt.Errorf("%w: end_date must not be before pub_date", ErrInvalidQuestion)
		}
		patch.EndDate = &end
	}

	if err := s.repo.UpdateQuestion(ctx, questionID, patch); err != nil {
		if errors.Is(err, repository.ErrQuestionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.invalidate(ctx, questionID)

	updated, err := s.repo.Load(ctx, questionID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("question updated",
		"event", "polls_question_updated",
		"question_id", questionID,
		"available", updated.Available,
	)
	return updated, nil
}

func (s *PollService) invalidate(ctx context.Context, questionID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateQuestion(ctx, questionID); err != nil {
		s.logger.Warn("invalidate question cache failed",
			"event", "polls_question_cache_invalidate_failed",
			"question_id", questionID,
			"error", err.Error(),
		)
	}
}
