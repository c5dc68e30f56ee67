package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"TrackShelf/logger"

	"github.com/gorilla/websocket"
)

// EventType 事件类型
type EventType string

const (
	ArtistCreated EventType = "artist.created"
	ArtistUpdated EventType = "artist.updated"
	ArtistDeleted EventType = "artist.deleted"

	ProjectCreated EventType = "project.created"
	ProjectUpdated EventType = "project.updated"
	ProjectDeleted EventType = "project.deleted"

	TrackCreated      EventType = "track.created"
	TrackUpdated      EventType = "track.updated"
	TrackDeleted      EventType = "track.deleted"
	TrackPathRepaired EventType = "track.path_repaired" // 播放时发现并写回了正确的对象 key
)

const (
	sendBuffer = 64
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Event 推送给客户端的库变更事件
type Event struct {
	Type      EventType `json:"type"`
	ProjectID string    `json:"project_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// Publisher is what the rest of the application needs from the hub.
type Publisher interface {
	Publish(evt Event)
}

// Client 一个 WebSocket 连接
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	projectID string // 为空表示接收所有项目的事件
}

// Hub 管理所有事件订阅连接
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Event
	mu         sync.RWMutex
	done       chan struct{}
	stopOnce   sync.Once
	upgrader   websocket.Upgrader
}

// NewHub 创建事件 Hub
func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Debug("events client registered", logger.String("projectId", client.projectID))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case evt := <-h.broadcast:
			h.deliver(evt)

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				h.removeClient(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop 停止 Hub 并关闭所有连接的发送通道
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// removeClient 需要持有锁
func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) deliver(evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error("failed to marshal event", logger.String("type", string(evt.Type)), logger.ErrorField(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.projectID != "" && evt.ProjectID != "" && client.projectID != evt.ProjectID {
			continue
		}
		select {
		case client.send <- data:
		default:
			// 发送缓冲区满，断开慢客户端
			h.removeClient(client)
		}
	}
}

// Publish 广播事件，不会阻塞调用方
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}
	select {
	case <-h.done:
	case h.broadcast <- &evt:
	default:
		logger.Warn("event dropped, broadcast queue full", logger.String("type", string(evt.Type)))
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS 升级连接并订阅事件。?projectId= 只接收该项目的事件。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		projectID: r.URL.Query().Get("projectId"),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

// readPump 只用于检测断开和处理 pong，客户端发来的消息被忽略
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
