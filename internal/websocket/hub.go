package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mailwatch/internal/auth/jwt"
	"mailwatch/internal/domain"
)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// 如果允许所有来源
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			// 获取请求的 Origin
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 如果没有 Origin，检查是否是同源请求
				return true
			}

			// 检查 Origin 是否在允许列表中
			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}

			return false
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeLogEvent MessageType = "log_event"
	MessageTypePing     MessageType = "ping"
	MessageTypePong     MessageType = "pong"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Event     string          `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID       string
	Username string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	log      *zap.Logger
}

// Hub 管理所有WebSocket连接
//
// 所有客户端共享同一条事件流：每次生命周期变更都会推送给
// 全部已连接的仪表盘。
type Hub struct {
	clients        map[string]*Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan []byte
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
	jwtManager     *jwt.Manager // 为 nil 时不要求认证
}

// NewHub 创建WebSocket Hub
//
// 参数:
//   - allowedOrigins: 允许的 Origin 列表，用于 WebSocket 连接验证
//   - jwtManager: 认证管理器，nil 表示认证关闭
func NewHub(allowedOrigins []string, jwtManager *jwt.Manager, log *zap.Logger) *Hub {
	// 如果没有配置，默认允许所有
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return &Hub{
		clients:        make(map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan []byte, 256),
		log:            log.Named("websocket"),
		allowedOrigins: allowedOrigins,
		jwtManager:     jwtManager,
	}
}

// Run 启动Hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Info("client registered", zap.String("id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case data := <-h.broadcast:
			h.broadcastToAll(data)

		case <-ticker.C:
			// 定期ping所有客户端
			h.pingAllClients()
		}
	}
}

// LogEventData 生命周期事件通知数据
type LogEventData struct {
	ID           string        `json:"id"`
	MessageID    string        `json:"messageId"`
	To           string        `json:"to"`
	From         string        `json:"from"`
	Subject      string        `json:"subject"`
	Status       domain.Status `json:"status"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	CreatedAt    string        `json:"createdAt"`
}

// BroadcastLogEvent 向所有客户端推送一次生命周期变更
func (h *Hub) BroadcastLogEvent(event string, log *domain.EmailLog) {
	eventData := LogEventData{
		ID:           log.ID,
		MessageID:    log.MessageID,
		To:           log.To,
		From:         log.From,
		Subject:      log.Subject,
		Status:       log.Status,
		ErrorMessage: log.ErrorMessage,
		CreatedAt:    log.CreatedAt.Format(time.RFC3339),
	}

	data, err := json.Marshal(eventData)
	if err != nil {
		h.log.Error("failed to marshal log event", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeLogEvent,
		Event:     event,
		Data:      data,
		Timestamp: time.Now(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		// 广播通道打满时丢弃，推送是尽力而为
		h.log.Warn("broadcast channel full, event dropped", zap.String("event", event))
	}
}

// broadcastToAll 向全部客户端广播消息
func (h *Hub) broadcastToAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			// 客户端阻塞，跳过
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	msg := &Message{
		Type:      MessageTypePing,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			// 跳过阻塞的客户端
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
}

// authenticateClient 认证客户端
func (h *Hub) authenticateClient(c *gin.Context) (*Client, error) {
	client := &Client{
		ID:  uuid.New().String(),
		log: h.log,
	}

	if h.jwtManager == nil {
		return client, nil
	}

	// 从URL参数或Header获取token
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	client.Username = claims.Username
	return client, nil
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	// 使用 Hub 配置的允许 Origin 创建 upgrader
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		// 认证客户端
		client, err := hub.authenticateClient(c)
		if err != nil {
			hub.log.Warn("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		// 升级连接
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		// 设置连接和Hub
		client.conn = conn
		client.hub = hub
		client.send = make(chan []byte, 256)

		// 注册客户端
		hub.register <- client

		// 启动读写协程
		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}

		// 处理消息
		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypePong:
		// 客户端响应pong，更新活动时间
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	default:
		c.log.Warn("unknown message type", zap.String("type", string(msg.Type)))
	}
}
