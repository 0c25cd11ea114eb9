package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open transport to the notification endpoint.
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the connection fails
	ReadMessage() ([]byte, error)
	// Close releases the connection; safe to call more than once
	Close() error
}

// Dialer opens transports. Dial returning an error is treated as the
// transport closing before it opened.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// TransportConfig gorilla/websocket transport configuration
type TransportConfig struct {
	HandshakeTimeout  time.Duration // Opening handshake timeout
	KeepaliveInterval time.Duration // Ping interval (0 disables keepalive)
	ReadTimeout       time.Duration // Max silence before the read fails
	WriteTimeout      time.Duration // Control frame write deadline
}

// DefaultTransportConfig returns default transport configuration
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout:  10 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

type wsDialer struct {
	cfg    TransportConfig
	logger *slog.Logger
}

// NewWebSocketDialer returns a Dialer backed by gorilla/websocket
func NewWebSocketDialer(cfg TransportConfig, logger *slog.Logger) Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &wsDialer{cfg: cfg, logger: logger}
}

func (d *wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	c := &wsConn{
		conn:   conn,
		cfg:    d.cfg,
		logger: d.logger,
		done:   make(chan struct{}),
	}
	c.startKeepalive()
	return c, nil
}

// wsConn gorilla connection with ping keepalive
type wsConn struct {
	conn   *websocket.Conn
	cfg    TransportConfig
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.extendReadDeadline()
	return data, nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
	})
	return err
}

// startKeepalive pings on an interval; any inbound frame or pong pushes the
// read deadline forward, so a silent peer makes ReadMessage fail.
func (c *wsConn) startKeepalive() {
	if c.cfg.KeepaliveInterval <= 0 || c.cfg.ReadTimeout <= 0 {
		return
	}

	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	go func() {
		ticker := time.NewTicker(c.cfg.KeepaliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(c.cfg.WriteTimeout)
				if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					c.logger.Debug("Failed to send keepalive ping", "error", err)
				}
			}
		}
	}()
}

func (c *wsConn) extendReadDeadline() {
	if c.cfg.KeepaliveInterval <= 0 || c.cfg.ReadTimeout <= 0 {
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
}
