// Package archive stores inbound notifications in Postgres.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// execer is the subset of *pgxpool.Pool the archive needs
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config archive configuration
type Config struct {
	Table         string        // Destination table, must be a plain identifier
	InsertTimeout time.Duration // Per-insert deadline
}

// Archive writes each notification as one row
type Archive struct {
	db     execer
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// Open connects a pool and verifies it with a ping
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// New creates an archive on top of db
func New(db execer, cfg Config, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Table == "" {
		cfg.Table = "notifications"
	}
	if cfg.InsertTimeout == 0 {
		cfg.InsertTimeout = 5 * time.Second
	}
	return &Archive{
		db:     db,
		cfg:    cfg,
		logger: logger.With("component", "NotificationArchive"),
		now:    time.Now,
	}
}

// EnsureSchema creates the table if it does not exist
func (a *Archive) EnsureSchema(ctx context.Context) error {
	sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	kind        TEXT,
	payload     JSONB NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
)`, a.cfg.Table)

	if _, err := a.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", a.cfg.Table, err)
	}
	return nil
}

// Handle stores msg. Its signature matches notify.Handler.
func (a *Archive) Handle(msg any) error {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.InsertTimeout)
	defer cancel()

	sql := fmt.Sprintf(`INSERT INTO %s (kind, payload, received_at) VALUES ($1, $2, $3)`, a.cfg.Table)
	if _, err := a.db.Exec(ctx, sql, kindOf(msg), string(payload), a.now().UTC()); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	a.logger.Debug("Notification archived", "kind", kindOf(msg))
	return nil
}

// kindOf extracts the "type" field of an object message, nil otherwise
func kindOf(msg any) any {
	obj, ok := msg.(map[string]any)
	if !ok {
		return nil
	}
	kind, ok := obj["type"].(string)
	if !ok {
		return nil
	}
	return kind
}
