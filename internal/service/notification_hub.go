package service

import (
	"context"
	"edu_backend/pkg/logger"
	"edu_backend/pkg/monitoring"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	shardCount     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Pusher 把消息推给指定用户
type Pusher interface {
	Push(ctx context.Context, userID uint, msg WSMessage) error
}

type wsClient struct {
	hub     *NotificationHub
	conn    *websocket.Conn
	send    chan []byte
	userID  uint
	limiter *rate.Limiter
}

// readPump 客户端上行只处理 READ 回执，其余消息忽略
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("WebSocket unexpected close", zap.Error(err), zap.Uint("userId", c.userID))
			}
			break
		}

		if !c.limiter.Allow() {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type != "READ" || c.hub.OnRead == nil {
			continue
		}
		data, ok := msg.Data.(map[string]interface{})
		if !ok {
			continue
		}
		id := cast.ToUint(data["id"])
		if id == 0 {
			continue
		}
		if err := c.hub.OnRead(context.Background(), c.userID, id); err != nil {
			logger.Log.Debug("mark notification read failed", zap.Uint("userId", c.userID), zap.Error(err))
		}
	}
}

func (c *wsClient) writePump() {
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

type shard struct {
	clients map[uint]map[*wsClient]struct{}
	mu      sync.RWMutex
}

// pubSubMessage 跨实例转发的消息
type pubSubMessage struct {
	UserID  uint            `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// NotificationHub 维护本实例的 websocket 连接；多实例时经 Redis pub/sub 转发
type NotificationHub struct {
	shards     [shardCount]*shard
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	Redis      *redis.Client
	Channel    string

	// OnRead 客户端回执已读时回调
	OnRead func(ctx context.Context, userID, id uint) error
}

func NewNotificationHub(rdb *redis.Client, channel string) *NotificationHub {
	h := &NotificationHub{
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		Redis:      rdb,
		Channel:    channel,
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &shard{
			clients: make(map[uint]map[*wsClient]struct{}),
		}
	}
	return h
}

func (h *NotificationHub) getShard(userID uint) *shard {
	return h.shards[userID%shardCount]
}

// Run 处理连接注册与 pub/sub 订阅，ctx 取消后关闭所有连接
func (h *NotificationHub) Run(ctx context.Context) {
	if h.Redis != nil {
		pubsub := h.Redis.Subscribe(ctx, h.Channel)
		defer pubsub.Close()
		go func() {
			for msg := range pubsub.Channel() {
				var psMsg pubSubMessage
				if err := json.Unmarshal([]byte(msg.Payload), &psMsg); err != nil {
					logger.Log.Error("PubSub unmarshal error", zap.Error(err))
					continue
				}
				h.deliverLocal(psMsg.UserID, psMsg.Payload)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case client := <-h.register:
			s := h.getShard(client.userID)
			s.mu.Lock()
			if s.clients[client.userID] == nil {
				s.clients[client.userID] = make(map[*wsClient]struct{})
			}
			s.clients[client.userID][client] = struct{}{}
			s.mu.Unlock()
			monitoring.NotificationSockets.Inc()
		case client := <-h.unregister:
			s := h.getShard(client.userID)
			s.mu.Lock()
			if conns, ok := s.clients[client.userID]; ok {
				if _, ok := conns[client]; ok {
					delete(conns, client)
					close(client.send)
					monitoring.NotificationSockets.Dec()
				}
				if len(conns) == 0 {
					delete(s.clients, client.userID)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (h *NotificationHub) closeAll() {
	closed := 0
	for i := 0; i < shardCount; i++ {
		s := h.shards[i]
		s.mu.Lock()
		for userID, conns := range s.clients {
			for c := range conns {
				close(c.send)
				closed++
			}
			delete(s.clients, userID)
		}
		s.mu.Unlock()
	}
	monitoring.NotificationSockets.Set(0)
	logger.Log.Info("NotificationHub stopped", zap.Int("closedConnections", closed))
}

// Push 有 Redis 时发布到频道，由各实例投递给本地连接；否则直接本地投递
func (h *NotificationHub) Push(ctx context.Context, userID uint, msg WSMessage) error {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if h.Redis == nil {
		h.deliverLocal(userID, msgBytes)
		return nil
	}

	payload, err := json.Marshal(pubSubMessage{UserID: userID, Payload: msgBytes})
	if err != nil {
		return err
	}
	return h.Redis.Publish(ctx, h.Channel, payload).Err()
}

// deliverLocal 返回实际投递的连接数
func (h *NotificationHub) deliverLocal(userID uint, payload []byte) int {
	s := h.getShard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for c := range s.clients[userID] {
		select {
		case c.send <- payload:
			n++
		default:
		}
	}
	return n
}

func (h *NotificationHub) IsOnline(userID uint) bool {
	s := h.getShard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[userID]) > 0
}

func ServeNotificationWs(hub *NotificationHub, w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	client := &wsClient{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 64),
		userID:  userID,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
