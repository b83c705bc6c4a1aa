package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"paycore/config"
	"paycore/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	// Clients only send pongs and close frames.
	maxInbound = 512
)

// SnapshotFunc returns the current state of orderID's intent, or an error if userID may not
// watch it.
type SnapshotFunc func(ctx context.Context, orderID string, userID uint, admin bool) (any, error)

// ServePaymentStatus upgrades /ws/payments?order_id=&token= and streams status events for
// that order. The current snapshot is sent first.
func ServePaymentStatus(cfg *config.JWTConfig, hub *Hub, snapshot SnapshotFunc, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Query("order_id")
		token := c.Query("token")
		if orderID == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "order_id and token are required"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		snap, err := snapshot(c.Request.Context(), orderID, claims.UserID, claims.IsAdmin())
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		client := NewClient(claims.UserID, orderID)
		hub.Register(client)
		defer client.Close()

		if err := conn.WriteJSON(Message{Type: "snapshot", Snapshot: snap}); err != nil {
			return
		}
		go writePump(client, conn)
		readPump(conn)
	}
}

// writePump copies messages from client.Send to the connection.
func writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames until the connection drops or pongs stop arriving.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxInbound)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
