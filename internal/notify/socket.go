package notify

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// Config notification socket configuration
type Config struct {
	Endpoint Endpoint    // Where to connect
	Retry    RetryPolicy // Reconnect policy after an unexpected close
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Endpoint: Endpoint{Path: "/ws/notification"},
		Retry:    DefaultRetryPolicy(),
	}
}

// afterFunc schedules f after d and returns a function that cancels it.
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Socket owns one notification connection and fans inbound JSON messages out
// to registered handlers. It reconnects after unexpected closes according to
// its RetryPolicy.
//
// Every state transition happens under mu. Transport callbacks carry the
// generation they were started with; a callback whose generation is no longer
// current belongs to a socket that was disconnected or replaced and is ignored.
type Socket struct {
	cfg      Config
	dialer   Dialer
	tokens   TokenSource
	logger   *slog.Logger
	registry *handlerRegistry

	after afterFunc
	wg    sync.WaitGroup

	mu         sync.Mutex
	state      ConnectionState
	gen        uint64
	attempts   int
	gaveUp     bool
	conn       Conn
	cancelDial context.CancelFunc
	stopRetry  func() bool
}

// NewSocket creates a disconnected socket. A nil tokens source connects with
// an empty token.
func NewSocket(cfg Config, dialer Dialer, tokens TokenSource, logger *slog.Logger) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	if dialer == nil {
		dialer = NewWebSocketDialer(DefaultTransportConfig(), logger)
	}

	return &Socket{
		cfg:      cfg,
		dialer:   dialer,
		tokens:   tokens,
		logger:   logger.With("component", "NotificationSocket"),
		registry: newHandlerRegistry(),
		after:    timeAfterFunc,
		state:    StateDisconnected,
	}
}

// Connect starts connecting unless the socket is already connecting or
// connected. It returns immediately; the outcome is visible through State.
// A pending retry is replaced by an immediate attempt and the retry budget
// starts over.
func (s *Socket) Connect() {
	if s.State() != StateDisconnected {
		return
	}
	token := s.tokens.Token()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDisconnected {
		return
	}

	s.stopRetryLocked()
	s.attempts = 0
	s.gaveUp = false
	s.startLocked(token)
}

// Disconnect cancels any pending retry, closes the transport and leaves the
// socket Disconnected. Registered handlers are kept.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	s.gen++
	s.stopRetryLocked()
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	conn := s.conn
	s.conn = nil
	s.attempts = 0
	s.gaveUp = false
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Transport close error", "error", err)
		}
	}
}

// Close disconnects and waits for the dial and read goroutines to exit. It
// must not be called from a Handler.
func (s *Socket) Close() error {
	s.Disconnect()
	s.wg.Wait()
	return nil
}

// Register appends h to the handler list
func (s *Socket) Register(h Handler) HandlerID {
	return s.registry.register(h)
}

// Unregister removes the registration; unknown ids are a no-op
func (s *Socket) Unregister(id HandlerID) {
	s.registry.unregister(id)
}

// State gets current connection state
func (s *Socket) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of state and retry bookkeeping
func (s *Socket) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:        s.state,
		Attempts:     s.attempts,
		RetryPending: s.stopRetry != nil,
		GaveUp:       s.gaveUp,
	}
}

// Dispatch parses one inbound frame and invokes every handler in
// registration order. Malformed JSON is logged and dropped.
func (s *Socket) Dispatch(raw []byte) {
	msg, err := decodeMessage(raw)
	if err != nil {
		s.logger.Warn("Dropping malformed message", "error", err, "size", len(raw))
		return
	}

	for _, entry := range s.registry.snapshot() {
		s.invoke(entry, msg)
	}
}

func (s *Socket) invoke(entry handlerEntry, msg any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Message handler panicked", "handler", entry.id, "panic", r)
		}
	}()

	if err := entry.fn(msg); err != nil {
		s.logger.Error("Message handler error", "handler", entry.id, "error", err)
	}
}

// startLocked opens a new transport in the background. The token is read by
// the caller before taking mu; a TokenSource may hit the disk.
func (s *Socket) startLocked(token string) {
	target, err := s.cfg.Endpoint.URL(token)
	if err != nil {
		s.logger.Error("Failed to build notification URL", "error", err)
		s.setStateLocked(StateDisconnected)
		return
	}

	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelDial = cancel
	s.setStateLocked(StateConnecting)

	s.wg.Add(1)
	go s.dial(ctx, gen, target)
}

func (s *Socket) dial(ctx context.Context, gen uint64, target string) {
	defer s.wg.Done()

	conn, err := s.dialer.Dial(ctx, target)
	if err != nil {
		s.logger.Error("Notification socket dial failed", "url", redactURL(target), "error", err)
		s.handleDrop(gen)
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	s.conn = conn
	s.attempts = 0
	s.gaveUp = false
	s.setStateLocked(StateConnected)
	s.wg.Add(1)
	go s.readLoop(gen, conn)
	s.mu.Unlock()

	s.logger.Info("Notification socket connected", "url", redactURL(target))
}

// readLoop delivers frames in transport order until the connection fails
func (s *Socket) readLoop(gen uint64, conn Conn) {
	defer s.wg.Done()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if s.current(gen) {
				s.logger.Warn("Notification socket closed", "error", err)
			}
			s.handleDrop(gen)
			return
		}
		if !s.current(gen) {
			return
		}
		s.Dispatch(data)
	}
}

// handleDrop applies the retry policy after the transport errored or closed.
func (s *Socket) handleDrop(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}

	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	conn := s.conn
	s.conn = nil
	s.setStateLocked(StateDisconnected)

	delay, ok := s.cfg.Retry.Next(s.attempts)
	if ok {
		s.attempts++
		s.stopRetryLocked()
		s.stopRetry = s.after(delay, func() { s.fireRetry(gen) })
		s.logger.Info("Reconnecting", "interval", delay, "attempt", s.attempts)
	} else {
		s.gaveUp = true
		s.logger.Error("Max reconnect attempts reached, giving up", "attempts", s.attempts)
	}
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Socket) fireRetry(gen uint64) {
	if !s.current(gen) {
		return
	}
	token := s.tokens.Token()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.stopRetry == nil || s.state != StateDisconnected {
		return
	}
	s.stopRetry = nil
	s.startLocked(token)
}

func (s *Socket) stopRetryLocked() {
	if s.stopRetry != nil {
		s.stopRetry()
		s.stopRetry = nil
	}
}

func (s *Socket) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

func (s *Socket) setStateLocked(state ConnectionState) {
	old := s.state
	s.state = state
	if old != state {
		s.logger.Info("Notification socket state changed", "from", old.String(), "to", state.String())
	}
}

// redactURL drops the query so tokens never reach the logs
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	u.RawQuery = ""
	return u.String()
}
