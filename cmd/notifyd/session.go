package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/insolvency-console/notifyd/internal/session"
)

// sessionCommand is a one-shot -login or -logout request
type sessionCommand struct {
	login  string        // Access token to store
	ttl    time.Duration // 0 = never expires
	logout bool
}

func (c sessionCommand) requested() bool {
	return c.login != "" || c.logout
}

// run stores or clears the session and reports what it did
func (c sessionCommand) run(store *session.FileStore, now time.Time, logger *slog.Logger) error {
	if store == nil {
		return errors.New("session.file is not configured")
	}
	if c.login != "" && c.logout {
		return errors.New("-login and -logout are mutually exclusive")
	}

	if c.logout {
		if err := store.Clear(); err != nil {
			return fmt.Errorf("failed to clear session: %w", err)
		}
		logger.Info("Session cleared")
		return nil
	}

	if c.ttl < 0 {
		return fmt.Errorf("-expires must not be negative, got %v", c.ttl)
	}
	s := session.Session{AccessToken: c.login}
	if c.ttl > 0 {
		s.ExpiresAt = now.Add(c.ttl)
	}
	if err := store.Save(s); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	logger.Info("Session saved", "expiresAt", s.ExpiresAt)
	return nil
}
