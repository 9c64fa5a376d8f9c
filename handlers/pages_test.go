package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postForm(path string, form url.Values, voter string) *http.Request {
	req, _ := http.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if voter != "" {
		req.AddCookie(&http.Cookie{Name: VoterCookie, Value: voter})
	}
	return req
}

func TestRootRedirectsToIndex(t *testing.T) {
	env := SetupTestEnvironment(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/polls/", w.Header().Get("Location"))
}

func TestIndexPage(t *testing.T) {
	env := SetupTestEnvironment(t)
	env.createQuestion(t, "Past question.", -time.Hour, "A")
	env.createQuestion(t, "Future question.", 30*24*time.Hour, "A")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/polls/", nil)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Past question.")
	assert.NotContains(t, w.Body.String(), "Future question.")
}

func TestIndexPageWithoutQuestions(t *testing.T) {
	env := SetupTestEnvironment(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/polls/", nil)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No polls are available.")
}

func TestDetailPageOfFutureQuestionRedirectsWithNotice(t *testing.T) {
	env := SetupTestEnvironment(t)
	q := env.createQuestion(t, "Future question.", 5*24*time.Hour, "A")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/polls/%d/", q.ID), nil)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/polls/", w.Header().Get("Location"))

	var notice *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == noticeCookie {
			notice = cookie
		}
	}
	require.NotNil(t, notice)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/polls/", nil)
	req.AddCookie(notice)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), NoticeNotOpen)
}

func TestDetailPageShowsChoices(t *testing.T) {
	env := SetupTestEnvironment(t)
	q := env.createQuestion(t, "Past question.", -5*24*time.Hour, "Red", "Blue")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/polls/%d/", q.ID), nil)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Past question.")
	assert.Contains(t, w.Body.String(), "Red")
	assert.Contains(t, w.Body.String(), "Blue")
}

func TestDetailPageOfMissingQuestion(t *testing.T) {
	env := SetupTestEnvironment(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/polls/999/", nil)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVoteFormFlow(t *testing.T) {
	env := SetupTestEnvironment(t)
	q := env.createQuestion(t, "Past question.", -30*24*time.Hour, "Red", "Blue")
	red := q.Choices[0].ID

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, postForm(fmt.Sprintf("/polls/%d/vote/", q.ID), url.Values{"choice": {fmt.Sprint(red)}}, "alice"))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, fmt.Sprintf("/polls/%d/results/", q.ID), w.Header().Get("Location"))

	w = httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/polls/%d/results/", q.ID), nil)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Red -- 1 vote<")
	assert.Contains(t, w.Body.String(), "Blue -- 0 votes")
}

func TestVoteFormWithoutChoice(t *testing.T) {
	env := SetupTestEnvironment(t)
	q := env.createQuestion(t, "Past question.", -time.Hour, "Red")

	for _, form := range []url.Values{{}, {"choice": {"abc"}}, {"choice": {"99999"}}} {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, postForm(fmt.Sprintf("/polls/%d/vote/", q.ID), form, "alice"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), NoticeNoChoice)
	}

	tally, err := env.svc.Tally(context.Background(), q.Choices[0].ID)
	require.NoError(t, err)
	assert.Zero(t, tally)
}

func TestVoteFormOnFutureQuestion(t *testing.T) {
	env := SetupTestEnvironment(t)
	q := env.createQuestion(t, "Future question.", 30*24*time.Hour, "Red")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, postForm(fmt.Sprintf("/polls/%d/vote/", q.ID), url.Values{"choice": {fmt.Sprint(q.Choices[0].ID)}}, "alice"))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/polls/", w.Header().Get("Location"))

	tally, err := env.svc.Tally(context.Background(), q.Choices[0].ID)
	require.NoError(t, err)
	assert.Zero(t, tally)
}

func TestVoteFormRequiresVoter(t *testing.T) {
	env := SetupTestEnvironment(t)
	q := env.createQuestion(t, "Past question.", -time.Hour, "Red")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, postForm(fmt.Sprintf("/polls/%d/vote/", q.ID), url.Values{"choice": {fmt.Sprint(q.Choices[0].ID)}}, ""))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestResultsPageOfFutureQuestion(t *testing.T) {
	env := SetupTestEnvironment(t)
	q := env.createQuestion(t, "Future question.", time.Hour, "Red")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/polls/%d/results/", q.ID), nil)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
