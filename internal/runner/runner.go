package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/insolvency-console/notifyd/internal/archive"
	"github.com/insolvency-console/notifyd/internal/config"
	"github.com/insolvency-console/notifyd/internal/notify"
	"github.com/insolvency-console/notifyd/internal/session"
)

// Runner is the service runner
// Responsible for wiring the notification socket to its collaborators
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
	socket *notify.Socket
	pool   *pgxpool.Pool
}

// New creates a service runner. A nil logger falls back to slog.Default.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		cfg:    cfg,
		logger: logger,
	}

	// 1. Token source
	var tokens notify.TokenSource = notify.StaticToken("")
	if cfg.Session.File != "" {
		tokens = session.NewFileStore(cfg.Session.File, logger)
		logger.Info("Session store initialized", "file", cfg.Session.File)
	} else {
		logger.Warn("No session file configured, connecting without a token")
	}

	// 2. Notification socket
	dialer := notify.NewWebSocketDialer(notify.TransportConfig{
		HandshakeTimeout:  cfg.WebSocket.HandshakeTimeout,
		KeepaliveInterval: cfg.WebSocket.KeepaliveInterval,
		ReadTimeout:       cfg.WebSocket.ReadTimeout,
		WriteTimeout:      cfg.WebSocket.WriteTimeout,
	}, logger)
	r.socket = notify.NewSocket(notify.Config{
		Endpoint: notify.Endpoint{
			Origin: cfg.WebSocket.Origin,
			Host:   cfg.WebSocket.Host,
			Path:   cfg.WebSocket.Path,
		},
		Retry: notify.RetryPolicy{
			Delay:       cfg.WebSocket.ReconnectInterval,
			MaxAttempts: cfg.WebSocket.ReconnectAttempts(),
		},
	}, dialer, tokens, logger)

	// 3. Handlers
	r.socket.Register(r.logNotification)

	if cfg.Archive.Enabled() {
		pool, err := archive.Open(ctx, cfg.Archive.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive database: %w", err)
		}
		r.pool = pool

		a := archive.New(pool, archive.Config{
			Table:         cfg.Archive.Table,
			InsertTimeout: cfg.Archive.InsertTimeout,
		}, logger)
		if err := a.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to prepare archive: %w", err)
		}
		r.socket.Register(a.Handle)
		logger.Info("Notification archive enabled", "table", cfg.Archive.Table)
	}

	return r, nil
}

// Socket exposes the notification socket for additional handlers
func (r *Runner) Socket() *notify.Socket {
	return r.socket
}

// Run connects and blocks until a signal arrives or ctx is cancelled
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Starting notification service",
		"app", r.cfg.App.Name,
		"origin", r.cfg.WebSocket.Origin,
		"path", r.cfg.WebSocket.Path)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Listen for system signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	r.socket.Connect()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.watchStatus(gctx, r.cfg.App.StatusInterval)
		return nil
	})
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			r.logger.Info("Received signal, shutting down", "signal", sig)
		case <-gctx.Done():
			r.logger.Info("Context cancelled, shutting down")
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		r.logger.Error("Service error", "error", err)
	}

	return r.Shutdown()
}

// Shutdown cancels any pending reconnect, closes the socket and the archive pool
func (r *Runner) Shutdown() error {
	r.logger.Info("Shutting down notification service...")

	if r.socket != nil {
		if err := r.socket.Close(); err != nil {
			r.logger.Error("Failed to close notification socket", "error", err)
		}
	}
	if r.pool != nil {
		r.pool.Close()
	}

	r.logger.Info("Notification service stopped")
	return nil
}

// watchStatus polls connectivity and logs sync status changes
func (r *Runner) watchStatus(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		r.logger.Warn("Status polling disabled", "interval", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := r.socket.Status().Sync()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := r.socket.Status()
			last = r.reportStatus(last, status)
		}
	}
}

// reportStatus logs a transition and returns the new sync status
func (r *Runner) reportStatus(prev notify.SyncStatus, status notify.Status) notify.SyncStatus {
	cur := status.Sync()
	if cur == prev {
		return cur
	}

	switch cur {
	case notify.SyncStatusFailed:
		r.logger.Warn("Notifications offline",
			"state", status.State.String(),
			"attempts", status.Attempts,
			"gaveUp", status.GaveUp)
	default:
		r.logger.Info("Notification sync status changed",
			"from", prev.String(),
			"to", cur.String(),
			"attempts", status.Attempts)
	}
	return cur
}

// logNotification logs every inbound notification
func (r *Runner) logNotification(msg any) error {
	if obj, ok := msg.(map[string]any); ok {
		r.logger.Info("Notification received", "type", obj["type"])
		return nil
	}
	r.logger.Info("Notification received", "payload", msg)
	return nil
}
