package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"polls-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCache struct {
	mu          sync.Mutex
	invalidated []uint
}

func (c *countingCache) GetQuestion(ctx context.Context, _ uint, load func(ctx context.Context) (*models.Question, error)) (*models.Question, error) {
	return load(ctx)
}

func (c *countingCache) InvalidateQuestion(_ context.Context, id uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	return nil
}

func TestCreateQuestionDefaults(t *testing.T) {
	f := newFixture(t)

	q, err := f.svc.CreateQuestion(context.Background(), CreateQuestionInput{
		Text:    "  Best pizza topping?  ",
		Choices: []string{"Cheese", " Mushroom "},
	})
	require.NoError(t, err)

	assert.Equal(t, "Best pizza topping?", q.Text)
	assert.True(t, q.PubDate.Equal(testNow))
	assert.True(t, q.Available)
	assert.Nil(t, q.EndDate)
	require.Len(t, q.Choices, 2)
	assert.Equal(t, "Mushroom", q.Choices[1].Text)
}

func TestCreateQuestionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateQuestion(ctx, CreateQuestionInput{Text: "   "})
	assert.ErrorIs(t, err, ErrInvalidQuestion)

	_, err = f.svc.CreateQuestion(ctx, CreateQuestionInput{Text: strings.Repeat("x", 201)})
	assert.ErrorIs(t, err, ErrInvalidQuestion)

	_, err = f.svc.CreateQuestion(ctx, CreateQuestionInput{Text: "ok", Choices: []string{""}})
	assert.ErrorIs(t, err, ErrInvalidQuestion)

	end := testNow.Add(-time.Hour)
	_, err = f.svc.CreateQuestion(ctx, CreateQuestionInput{Text: "ok", EndDate: &end})
	assert.ErrorIs(t, err, ErrInvalidQuestion)

	all, err := f.svc.AdminList(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAdminWritesInvalidateCache(t *testing.T) {
	f := newFixture(t)
	c := &countingCache{}
	f.svc.cache = c
	ctx := context.Background()
	q := f.question(t, -time.Hour, "A")
	assert.Equal(t, []uint{q.ID}, c.invalidated)

	choice, err := f.svc.AddChoice(ctx, q.ID, "B")
	require.NoError(t, err)
	assert.NotZero(t, choice.ID)

	closed := false
	updated, err := f.svc.UpdateQuestion(ctx, q.ID, UpdateQuestionInput{Available: &closed})
	require.NoError(t, err)
	assert.False(t, updated.Available)
	assert.Len(t, updated.Choices, 2)
	assert.Equal(t, []uint{q.ID, q.ID, q.ID}, c.invalidated)

	_, err = f.svc.CastVote(ctx, VoteCommand{QuestionID: q.ID, VoterID: "alice", ChoiceID: &choice.ID})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateQuestionEndDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.question(t, -time.Hour, "A")

	tooEarly := testNow.Add(-2 * time.Hour)
	_, err := f.svc.UpdateQuestion(ctx, q.ID, UpdateQuestionInput{EndDate: &tooEarly})
	assert.ErrorIs(t, err, ErrInvalidQuestion)

	end := testNow.Add(time.Hour)
	updated, err := f.svc.UpdateQuestion(ctx, q.ID, UpdateQuestionInput{EndDate: &end})
	require.NoError(t, err)
	require.NotNil(t, updated.EndDate)
	assert.True(t, updated.EndDate.Equal(end))

	cleared, err := f.svc.UpdateQuestion(ctx, q.ID, UpdateQuestionInput{ClearEndDate: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.EndDate)

	_, err = f.svc.UpdateQuestion(ctx, 9999, UpdateQuestionInput{ClearEndDate: true})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.AddChoice(ctx, 9999, "Z")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminListIncludesUnpublished(t *testing.T) {
	f := newFixture(t)
	f.question(t, -time.Hour, "A")
	future := f.question(t, 48*time.Hour, "A")

	all, err := f.svc.AdminList(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)

	var found bool
	for _, item := range all {
		if item.ID == future.ID {
			found = true
			assert.False(t, item.CanVote)
		}
	}
	assert.True(t, found)
}
