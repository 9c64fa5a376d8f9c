package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message 推送给客户端的消息
type Message struct {
	Type       string      `json:"type"`
	QuestionID uint        `json:"question_id"`
	Data       interface{} `json:"data"`
	Timestamp  int64       `json:"timestamp"`
}

// NewResultsMessage 构造票数更新消息
func NewResultsMessage(questionID uint, results interface{}) *Message {
	return &Message{
		Type:       "results",
		QuestionID: questionID,
		Data:       results,
		Timestamp:  time.Now().Unix(),
	}
}

// ToJSON 序列化
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Client 一个订阅某问题结果的WebSocket连接
type Client struct {
	QuestionID uint
	conn       *websocket.Conn
	send       chan []byte
}

// Hub 按问题ID分组维护客户端并广播消息
type Hub struct {
	clients    map[uint]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub 创建Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 处理注册和注销，ctx结束时关闭所有客户端
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.QuestionID]; !ok {
				h.clients[client.QuestionID] = make(map[*Client]bool)
			}
			h.clients[client.QuestionID][client] = true
			total := len(h.clients[client.QuestionID])
			h.mu.Unlock()
			log.Printf("Client registered for question %d, total clients: %d", client.QuestionID, total)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.QuestionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.QuestionID)
	}
}

// BroadcastToQuestion 向订阅某问题的所有客户端广播，发送缓冲满的客户端被断开
func (h *Hub) BroadcastToQuestion(questionID uint, message *Message) {
	payload, err := message.ToJSON()
	if err != nil {
		log.Printf("Error converting message to JSON: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.clients[questionID]
	for client := range clients {
		select {
		case client.send <- payload:
		default:
			h.removeLocked(client)
		}
	}
}

// ClientCount 某问题当前的订阅数
func (h *Hub) ClientCount(questionID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[questionID])
}

// RegisterClient 注册客户端，Hub已停止时返回false
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient 注销客户端
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
