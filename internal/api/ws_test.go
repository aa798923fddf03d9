package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mr1hm/go-disaster-map/internal/assistant"
	"github.com/mr1hm/go-disaster-map/internal/broadcast"
	"github.com/mr1hm/go-disaster-map/internal/models"
)

func TestStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	b := broadcast.NewBroadcaster(0)
	router := gin.New()
	NewHandler(newFakeSource(), &fakeRuns{}, assistant.New(nil, nil), b, nil).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg streamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if msg.Type != "snapshot" || msg.Snapshot.Generation != 7 {
		t.Errorf("unexpected initial message %+v", msg)
	}

	// The subscription is registered before the initial write.
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.SubscriberCount())
	}

	b.Publish(&models.Snapshot{Generation: 8, Status: models.StatusDisconnected})
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if msg.Snapshot.Generation != 8 || msg.Snapshot.Status != models.StatusDisconnected {
		t.Errorf("unexpected update %+v", msg.Snapshot)
	}

	b.Close()
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}

func TestStream_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(newFakeSource(), &fakeRuns{}, nil, nil, nil).RegisterRoutes(router)

	w := do(router, "GET", "/ws", "")
	if w.Code != 503 {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}
