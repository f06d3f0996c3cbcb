package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Priya8975/hookrelay/internal/domain"
)

func setupTestHub(t *testing.T) *Hub {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func connectWS(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()
	return connectWSQuery(t, hub, "")
}

func connectWSQuery(t *testing.T, hub *Hub, query string) (*websocket.Conn, func()) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + query

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect WebSocket: %v", err)
	}

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func readFeed(t *testing.T, conn *websocket.Conn) FeedMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var msg FeedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid feed message %s: %v", data, err)
	}
	return msg
}

func TestHub_ClientConnectsAndDisconnects(t *testing.T) {
	hub := setupTestHub(t)

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("expected 0 clients initially, got %d", count)
	}

	conn, cleanup := connectWS(t, hub)
	defer cleanup()

	time.Sleep(50 * time.Millisecond)
	if count := hub.ClientCount(); count != 1 {
		t.Errorf("expected 1 client, got %d", count)
	}

	conn.Close()
	time.Sleep(50 * time.Millisecond)
	if count := hub.ClientCount(); count != 0 {
		t.Errorf("expected 0 clients after disconnect, got %d", count)
	}
}

func TestHub_EventAcceptedReachesClients(t *testing.T) {
	hub := setupTestHub(t)

	conn1, cleanup1 := connectWS(t, hub)
	defer cleanup1()
	conn2, cleanup2 := connectWS(t, hub)
	defer cleanup2()
	time.Sleep(50 * time.Millisecond)

	hub.EventAccepted(&domain.Event{ID: "d-1", Type: "push", ReceivedAt: time.Now()}, 2)

	for i, conn := range []*websocket.Conn{conn1, conn2} {
		msg := readFeed(t, conn)
		if msg.Type != TypeEventAccepted || msg.EventID != "d-1" || msg.Handlers != 2 {
			t.Errorf("client %d got %+v", i+1, msg)
		}
	}
}

func TestHub_HandlerFinishedCarriesError(t *testing.T) {
	hub := setupTestHub(t)

	conn, cleanup := connectWS(t, hub)
	defer cleanup()
	time.Sleep(50 * time.Millisecond)

	errMsg := "boom"
	hub.HandlerFinished(domain.HandlerRun{
		EventID:    "d-2",
		EventType:  "issues",
		Handler:    "plugins.announceIssue",
		Status:     domain.RunFailed,
		Error:      &errMsg,
		DurationMs: 12,
		FinishedAt: time.Now(),
	})

	msg := readFeed(t, conn)
	if msg.Type != TypeHandlerFinished || msg.Handler != "plugins.announceIssue" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Status != domain.RunFailed || msg.Error != "boom" {
		t.Errorf("status/error = %q/%q", msg.Status, msg.Error)
	}
}

func TestHub_EventTypeFilter(t *testing.T) {
	hub := setupTestHub(t)

	pushOnly, cleanup1 := connectWSQuery(t, hub, "?event_type=push")
	defer cleanup1()
	all, cleanup2 := connectWS(t, hub)
	defer cleanup2()
	time.Sleep(50 * time.Millisecond)

	hub.EventAccepted(&domain.Event{ID: "d-1", Type: "issues", ReceivedAt: time.Now()}, 1)
	hub.EventAccepted(&domain.Event{ID: "d-2", Type: "push", ReceivedAt: time.Now()}, 1)

	if msg := readFeed(t, pushOnly); msg.EventID != "d-2" {
		t.Errorf("filtered client got %+v, want only d-2", msg)
	}
	if msg := readFeed(t, all); msg.EventID != "d-1" {
		t.Errorf("unfiltered client got %+v, want d-1 first", msg)
	}
	if msg := readFeed(t, all); msg.EventID != "d-2" {
		t.Errorf("unfiltered client got %+v, want d-2 second", msg)
	}
}

func TestHub_StoppedHubClosesNewClients(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	conn, cleanup := connectWS(t, hub)
	defer cleanup()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("expected 0 clients, got %d", n)
	}
}

func TestHub_BroadcastWithoutRunDoesNotBlock(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(logger)

	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer*2; i++ {
			hub.HandlerFinished(domain.HandlerRun{EventID: "d", Handler: "h", Status: domain.RunSucceeded})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked with a full channel")
	}
}

func TestHub_BroadcastAfterStopIsDropped(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	for i := 0; i < sendBuffer*2; i++ {
		hub.HandlerFinished(domain.HandlerRun{EventID: "d", Handler: "h", Status: domain.RunSucceeded})
	}
	if n := len(hub.broadcast); n != 0 {
		t.Errorf("stopped hub queued %d messages, want 0", n)
	}
}
