package ws

import (
	"context"
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
	"go.uber.org/zap"

	"paycore/config"
	"paycore/internal/auth"
	"paycore/internal/domain"
	"paycore/internal/events"
)

func TestHubDeliversOnlyToOrderWatchers(t *testing.T) {
	h := NewHub()
	a := NewClient(7, "O1")
	b := NewClient(8, "O2")
	h.Register(a)
	h.Register(b)

	require.NoError(t, h.Publish(context.Background(), events.IntentEvent{OrderID: "O1", Status: domain.StatusCompleted}))

	select {
	case msg := <-a.Send:
		assert.Contains(t, string(msg), `"status":"COMPLETED"`)
	default:
		t.Fatal("watcher of O1 got nothing")
	}
	assert.Empty(t, b.Send)

	a.Close()
	a.Close()
	assert.Equal(t, 0, h.WatcherCount("O1"))
	// publishing after close must not panic on the closed channel
	require.NoError(t, h.Publish(context.Background(), events.IntentEvent{OrderID: "O1"}))
}

func TestServePaymentStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.JWTConfig{AccessSecret: "s", AccessExpiry: time.Minute, Issuer: "paycore"}
	hub := NewHub()
	snapshot := func(_ context.Context, orderID string, userID uint, _ bool) (any, error) {
		if orderID != "O1" || userID != 7 {
			return nil, errors.New("not yours")
		}
		return map[string]string{"status": "PENDING"}, nil
	}
	r := gin.New()
	r.GET("/ws/payments", ServePaymentStatus(cfg, hub, snapshot, zap.NewNop()))
	srv := httptest.NewServer(r)
	defer srv.Close()

	tok, err := auth.GenerateAccessToken(cfg, 7, "", domain.RoleCustomer)
	require.NoError(t, err)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/payments"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?order_id=O2&token="+tok, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?order_id=O1&token="+tok, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first.Type)

	require.Eventually(t, func() bool { return hub.WatcherCount("O1") == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish(context.Background(), events.IntentEvent{OrderID: "O1", Status: domain.StatusCompleted}))

	var next Message
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "status", next.Type)
	require.NotNil(t, next.Event)
	assert.Equal(t, domain.StatusCompleted, next.Event.Status)
}
