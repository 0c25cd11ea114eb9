package runner

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/insolvency-console/notifyd/internal/config"
	"github.com/insolvency-console/notifyd/internal/notify"
	"github.com/insolvency-console/notifyd/internal/session"
)

// syncBuffer guards a bytes.Buffer shared by the logger and the test
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(origin, sessionFile string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "notifyd-test", LogLevel: "debug", StatusInterval: 10 * time.Millisecond},
		WebSocket: config.WebSocketConfig{
			Origin:               origin,
			Path:                 "/ws/notification",
			ReconnectInterval:    10 * time.Millisecond,
			MaxReconnectAttempts: lo.ToPtr(2),
			HandshakeTimeout:     time.Second,
			KeepaliveInterval:    time.Second,
			ReadTimeout:          5 * time.Second,
			WriteTimeout:         time.Second,
		},
		Session: config.SessionConfig{File: sessionFile},
	}
}

func TestRunner_RunDeliversAndShutsDown(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	tokens := make(chan string, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"worklog.created"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	sessionFile := filepath.Join(t.TempDir(), "session.json")
	if err := session.NewFileStore(sessionFile, nil).Save(session.Session{AccessToken: "tok-1"}); err != nil {
		t.Fatalf("Save session: %v", err)
	}

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r, err := New(context.Background(), testConfig(server.URL, sessionFile), logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got := make(chan any, 1)
	r.Socket().Register(func(msg any) error {
		got <- msg
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
	}
	if tok := <-tokens; tok != "tok-1" {
		t.Errorf("token = %q, want tok-1", tok)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if r.Socket().State() != notify.StateDisconnected {
		t.Errorf("State after Run = %v, want Disconnected", r.Socket().State())
	}
	out := logs.String()
	if !strings.Contains(out, "type=worklog.created") {
		t.Errorf("notification not logged:\n%s", out)
	}
	if strings.Contains(out, "tok-1") {
		t.Errorf("token leaked into logs:\n%s", out)
	}
}

func TestRunner_ReportStatus(t *testing.T) {
	logs := &syncBuffer{}
	r := &Runner{logger: slog.New(slog.NewTextHandler(logs, nil))}

	prev := notify.SyncStatusSyncing
	prev = r.reportStatus(prev, notify.Status{State: notify.StateConnecting})
	if prev != notify.SyncStatusSyncing {
		t.Errorf("prev = %v, want SYNCING", prev)
	}
	if logs.String() != "" {
		t.Errorf("unchanged status should not log, got %s", logs.String())
	}

	prev = r.reportStatus(prev, notify.Status{State: notify.StateConnected})
	if prev != notify.SyncStatusSynced {
		t.Errorf("prev = %v, want SYNCED", prev)
	}

	prev = r.reportStatus(prev, notify.Status{State: notify.StateDisconnected, GaveUp: true, Attempts: 2})
	if prev != notify.SyncStatusFailed {
		t.Errorf("prev = %v, want FAILED", prev)
	}

	out := logs.String()
	if !strings.Contains(out, "to=SYNCED") || !strings.Contains(out, "Notifications offline") {
		t.Errorf("unexpected logs:\n%s", out)
	}
}

func TestNew_WithoutSessionFile(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	r, err := New(context.Background(), testConfig("https://console.example.com", ""), logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if r.Socket().State() != notify.StateDisconnected {
		t.Errorf("State = %v, want Disconnected", r.Socket().State())
	}
	if err := r.Shutdown(); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestNew_NilLogger(t *testing.T) {
	r, err := New(context.Background(), testConfig("https://console.example.com", ""), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if r.logger == nil {
		t.Fatal("logger should fall back to slog.Default")
	}
	if err := r.Shutdown(); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestRunner_WatchStatusRejectsNonPositiveInterval(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	r, err := New(context.Background(), testConfig("https://console.example.com", ""), logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer r.Shutdown()

	done := make(chan struct{})
	go func() {
		r.watchStatus(context.Background(), -time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchStatus should return for a negative interval")
	}
	if !strings.Contains(logs.String(), "Status polling disabled") {
		t.Errorf("unexpected logs:\n%s", logs.String())
	}
}
