// internal/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Corphon/LifeBranches/internal/models"
	"github.com/Corphon/LifeBranches/internal/utils"
)

const (
	clientSendBuffer = 64
	// consecutive dropped messages before a client is treated as dead
	maxDroppedMessages = 32
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient 表示一个 WebSocket 客户端连接
type WebSocketClient struct {
	id        string
	conn      WebSocketConnection
	send      chan []byte
	done      chan struct{}
	closed    int32 // 0=开启，1=关闭
	dropped   int32
	lastPing  atomic.Int64
	createdAt time.Time
}

func newWebSocketClient(conn WebSocketConnection) *WebSocketClient {
	client := &WebSocketClient{
		id:        uuid.NewString(),
		conn:      conn,
		send:      make(chan []byte, clientSendBuffer),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	client.UpdatePing()
	return client
}

// Close 安全关闭客户端连接
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后ping时间
func (client *WebSocketClient) UpdatePing() {
	client.lastPing.Store(time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(time.Unix(0, client.lastPing.Load())) > timeout
}

// enqueue never blocks. It reports false when the message was dropped.
func (client *WebSocketClient) enqueue(message []byte) bool {
	if client.IsClosed() {
		return false
	}
	select {
	case client.send <- message:
		atomic.StoreInt32(&client.dropped, 0)
		return true
	default:
		atomic.AddInt32(&client.dropped, 1)
		return false
	}
}

// Hub fans timeline messages out to every connected websocket client.
type Hub struct {
	clients     map[*WebSocketClient]struct{}
	register    chan *WebSocketClient
	unregister  chan *WebSocketClient
	mutex       sync.RWMutex
	pingTimeout time.Duration

	logger  *utils.Logger
	metrics *utils.MetricsCollector
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(logger *utils.Logger, metrics *utils.MetricsCollector) *Hub {
	return &Hub{
		clients:     make(map[*WebSocketClient]struct{}),
		register:    make(chan *WebSocketClient, 16),
		unregister:  make(chan *WebSocketClient, 16),
		pingTimeout: 60 * time.Second,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run 运行 WebSocket 管理器主循环
func (h *Hub) Run(ctx context.Context) {
	cleanup := time.NewTicker(30 * time.Second)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case <-cleanup.C:
			h.cleanupExpiredConnections()
		}
	}
}

func (h *Hub) registerClient(client *WebSocketClient) {
	h.mutex.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mutex.Unlock()

	h.metrics.SetGauge(utils.GaugeWSClients, int64(count))
	h.logger.Info("websocket client connected", map[string]interface{}{
		"client_id": client.id,
		"clients":   count,
	})
}

func (h *Hub) unregisterClient(client *WebSocketClient) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	count := len(h.clients)
	h.mutex.Unlock()

	client.Close()
	if !ok {
		return
	}
	h.metrics.SetGauge(utils.GaugeWSClients, int64(count))
	h.logger.Info("websocket client disconnected", map[string]interface{}{
		"client_id": client.id,
		"clients":   count,
	})
}

// cleanupExpiredConnections 清理过期和死连接
func (h *Hub) cleanupExpiredConnections() {
	h.mutex.Lock()
	for client := range h.clients {
		if client.IsClosed() || client.IsExpired(h.pingTimeout) {
			delete(h.clients, client)
			client.Close()
		}
	}
	count := len(h.clients)
	h.mutex.Unlock()

	h.metrics.SetGauge(utils.GaugeWSClients, int64(count))
}

func (h *Hub) shutdown() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		client.Close()
	}
	h.clients = make(map[*WebSocketClient]struct{})
	h.metrics.SetGauge(utils.GaugeWSClients, 0)
	h.logger.Info("websocket hub stopped", nil)
}

// Broadcast marshals message once and queues it for every client. Clients
// whose buffer is full lose the message; persistently slow ones are closed.
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("websocket message marshal failed", map[string]interface{}{"error": err.Error()})
		return
	}

	h.mutex.RLock()
	clients := make([]*WebSocketClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		if client.enqueue(data) {
			continue
		}
		h.metrics.IncrementCounter(utils.MetricWSMessagesDropped)
		if atomic.LoadInt32(&client.dropped) >= maxDroppedMessages {
			client.Close()
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// GetStatus 获取管理器状态
func (h *Hub) GetStatus() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]map[string]interface{}, 0, len(h.clients))
	for client := range h.clients {
		if client.IsClosed() {
			continue
		}
		clients = append(clients, map[string]interface{}{
			"client_id":    client.id,
			"connected_at": client.createdAt.Format(time.RFC3339),
			"last_ping":    time.Unix(0, client.lastPing.Load()).Format(time.RFC3339),
		})
	}
	return map[string]interface{}{
		"total_connections": len(clients),
		"clients":           clients,
	}
}

// Message types pushed to websocket clients besides signal kinds.
const (
	MessageSnapshot   = "snapshot"
	MessageCommentary = "commentary"
	MessageWelcome    = "welcome"
)

type snapshotMessage struct {
	Type     string          `json:"type"`
	Snapshot models.Snapshot `json:"snapshot"`
}

type commentaryMessage struct {
	Type       string            `json:"type"`
	Commentary models.Commentary `json:"commentary"`
}

// BroadcastCommentary pushes a narrated remark to every client.
func (h *Hub) BroadcastCommentary(c models.Commentary) {
	h.Broadcast(commentaryMessage{Type: MessageCommentary, Commentary: c})
}

// Forward relays simulation signals to clients and, when every is positive,
// a snapshot at most once per interval. It returns when ctx ends or signals
// is closed.
func (h *Hub) Forward(ctx context.Context, signals <-chan models.Signal, snapshot func() models.Snapshot, every time.Duration) {
	var tick <-chan time.Time
	if every > 0 && snapshot != nil {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			h.Broadcast(sig)
		case <-tick:
			if h.ClientCount() == 0 {
				continue
			}
			h.Broadcast(snapshotMessage{Type: MessageSnapshot, Snapshot: snapshot()})
		}
	}
}
