// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingPeriod   = 54 * time.Second
	maxReadSize  = 4096
)

// WebSocketConnWrapper 包装真实的 websocket.Conn 以实现接口
type WebSocketConnWrapper struct {
	*websocket.Conn
}

type welcomeMessage struct {
	Type     string          `json:"type"`
	ClientID string          `json:"client_id"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// TimelineWebSocket serves GET /ws/timeline. Clients only receive; inbound
// text frames other than {"type":"ping"} are ignored.
func (h *Handler) TimelineWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	conn.SetReadLimit(maxReadSize)

	client := newWebSocketClient(&WebSocketConnWrapper{conn})

	snapshot, err := json.Marshal(h.sim.Snapshot())
	if err == nil {
		welcome, _ := json.Marshal(welcomeMessage{Type: MessageWelcome, ClientID: client.id, Snapshot: snapshot})
		client.enqueue(welcome)
	}

	select {
	case h.hub.register <- client:
	case <-c.Request.Context().Done():
		client.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

// readPump blocks until the connection fails, then unregisters the client.
func (h *Handler) readPump(client *WebSocketClient) {
	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-time.After(5 * time.Second):
			client.Close()
		}
	}()

	client.conn.SetReadDeadline(time.Now().Add(readTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Type == "ping" {
			client.enqueue([]byte(`{"type":"pong"}`))
		}
	}
}

// writePump drains the client's queue and keeps the connection alive.
func (h *Handler) writePump(client *WebSocketClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case <-client.done:
			return
		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
