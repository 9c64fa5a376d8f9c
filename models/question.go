package models

import (
	"time"
)

// RecentWindow 判断"最近发布"的时间窗口
const RecentWindow = 24 * time.Hour

// Question 投票问题
type Question struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Text      string     `gorm:"size:200;not null" json:"question_text"`
	PubDate   time.Time  `gorm:"not null;index" json:"pub_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Available bool       `gorm:"not null" json:"available"`
	Choices   []Choice   `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"choices,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Choice 问题的选项，票数不落库，由投票记录计数得出
type Choice struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	QuestionID uint      `gorm:"not null;index" json:"question_id"`
	Text       string    `gorm:"size:200;not null" json:"choice_text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Vote 选票，每个投票人对每个问题最多一张
type Vote struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	VoterID    string    `gorm:"size:150;not null;uniqueIndex:idx_vote_voter_question,priority:1" json:"voter_id"`
	QuestionID uint      `gorm:"not null;uniqueIndex:idx_vote_voter_question,priority:2;index" json:"question_id"`
	ChoiceID   uint      `gorm:"not null;index" json:"choice_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsPublished now >= pub_date
func (q *Question) IsPublished(now time.Time) bool {
	return !now.Before(q.PubDate)
}

// WasPublishedRecently 在过去一天内发布（含边界）
func (q *Question) WasPublishedRecently(now time.Time) bool {
	return q.IsPublished(now) && !q.PubDate.Before(now.Add(-RecentWindow))
}

// IsExpired 已过截止时间，截止时刻本身仍可投票
func (q *Question) IsExpired(now time.Time) bool {
	return q.EndDate != nil && now.After(*q.EndDate)
}

// CanVote 已发布、未过期且处于开放状态
func (q *Question) CanVote(now time.Time) bool {
	return q.Available && q.IsPublished(now) && !q.IsExpired(now)
}

// FindChoice 在问题自身的选项中查找
func (q *Question) FindChoice(choiceID uint) *Choice {
	for i := range q.Choices {
		if q.Choices[i].ID == choiceID {
			return &q.Choices[i]
		}
	}
	return nil
}
