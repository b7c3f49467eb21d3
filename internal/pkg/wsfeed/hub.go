// internal/pkg/wsfeed/hub.go
package wsfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nexus-ledger/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 管理端实时面板，跨域由外层 cors 控制
		return true
	},
}

// Event 推送给订阅者的一条消息
type Event struct {
	Topic     string      `json:"topic"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub 维护所有活跃的连接，并负责消息广播
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	lock       sync.RWMutex
}

// NewHub 创建 Hub，需要调用 Run 启动事件循环
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 处理注册与注销，ctx 结束时关闭全部连接
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client.id] = client
			h.lock.Unlock()
			logger.Logger().Debug().Str("client", client.id).Str("topic", client.topic).Msg("feed client registered")
		case client := <-h.unregister:
			h.remove(client)
		case <-ctx.Done():
			close(h.done)
			h.lock.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			h.lock.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		close(client.send)
		logger.Logger().Debug().Str("client", client.id).Msg("feed client unregistered")
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// Broadcast 把事件推送给订阅了该 topic（或未指定 topic）的所有客户端。
// 慢客户端的缓冲区满时直接丢弃该消息，不阻塞台账操作。
func (h *Hub) Broadcast(topic string, payload interface{}) {
	msg, err := json.Marshal(Event{Topic: topic, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		logger.Logger().Error().Err(err).Str("topic", topic).Msg("failed to marshal feed event")
		return
	}

	h.lock.RLock()
	defer h.lock.RUnlock()
	for _, c := range h.clients {
		if c.topic != "" && c.topic != topic {
			continue
		}
		select {
		case c.send <- msg:
		default:
			logger.Logger().Warn().Str("client", c.id).Msg("feed client buffer full, dropping event")
		}
	}
}

// ServeHTTP 把 HTTP 请求升级为 WebSocket；?topic= 可选，用于只订阅某一类事件
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		id:    uuid.NewString(),
		topic: r.URL.Query().Get("topic"),
	}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Client 是一个WebSocket连接的代表
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	id    string
	topic string
}

// writePump 负责将 send channel 中的消息写入 websocket，并定期发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只负责读取心跳与关闭帧；订阅者不需要向服务端发送业务消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
