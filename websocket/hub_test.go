package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func TestHubBroadcastOnlyToSubscribers(t *testing.T) {
	hub := startHub(t)

	a := &Client{QuestionID: 1, send: make(chan []byte, 4)}
	b := &Client{QuestionID: 2, send: make(chan []byte, 4)}
	require.True(t, hub.RegisterClient(a))
	require.True(t, hub.RegisterClient(b))
	require.Eventually(t, func() bool { return hub.ClientCount(1) == 1 && hub.ClientCount(2) == 1 }, time.Second, time.Millisecond)

	hub.BroadcastToQuestion(1, NewResultsMessage(1, map[string]int{"total": 3}))

	select {
	case payload := <-a.send:
		var msg Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, "results", msg.Type)
		assert.Equal(t, uint(1), msg.QuestionID)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
	assert.Empty(t, b.send)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := startHub(t)

	slow := &Client{QuestionID: 1, send: make(chan []byte)}
	require.True(t, hub.RegisterClient(slow))
	require.Eventually(t, func() bool { return hub.ClientCount(1) == 1 }, time.Second, time.Millisecond)

	hub.BroadcastToQuestion(1, NewResultsMessage(1, nil))
	assert.Zero(t, hub.ClientCount(1))

	_, open := <-slow.send
	assert.False(t, open)
}

func TestHubStopsWithContext(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	c := &Client{QuestionID: 7, send: make(chan []byte, 1)}
	require.True(t, hub.RegisterClient(c))
	cancel()
	<-stopped

	assert.False(t, hub.RegisterClient(&Client{QuestionID: 7, send: make(chan []byte, 1)}))
	hub.UnregisterClient(c) // must not block
	assert.Zero(t, hub.ClientCount(7))
}

func TestHandlerStreamsResults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := startHub(t)
	handler := NewHandler(hub, func(_ context.Context, id uint) (interface{}, error) {
		if id != 1 {
			return nil, errors.New("not found")
		}
		return map[string]int{"total": 0}, nil
	})

	router := gin.New()
	router.GET("/questions/:id/ws", handler.HandleConnection)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/questions/2/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/questions/1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot Message
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, uint(1), snapshot.QuestionID)

	require.Eventually(t, func() bool { return hub.ClientCount(1) == 1 }, time.Second, time.Millisecond)
	hub.BroadcastToQuestion(1, NewResultsMessage(1, map[string]int{"total": 1}))

	var update Message
	require.NoError(t, conn.ReadJSON(&update))
	data, ok := update.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["total"])
}
