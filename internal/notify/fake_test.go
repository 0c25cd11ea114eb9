package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errConnReset = errors.New("connection reset by peer")

// fakeConn is a scripted transport: frames and drop errors are pushed by the test
type fakeConn struct {
	frames chan []byte
	drops  chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		drops:  make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, errors.New("use of closed network connection")
	default:
	}

	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.drops:
		return nil, err
	case <-c.closed:
		return nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out fakeConns, failing the next failNext dials
type fakeDialer struct {
	mu       sync.Mutex
	failNext int
	failAll  bool
	urls     []string
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.urls = append(d.urls, url)
	if d.failAll || d.failNext > 0 {
		if d.failNext > 0 {
			d.failNext--
		}
		return nil, errors.New("dial tcp: connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) setFailAll(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = v
}

// fakeScheduler records scheduled retries; the test fires them by hand
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

type fakeTask struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (s *fakeScheduler) after(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &fakeTask{delay: d, fn: f}
	s.tasks = append(s.tasks, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		was := !t.stopped
		t.stopped = true
		return was
	}
}

func (s *fakeScheduler) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// pending returns tasks that were neither stopped nor fired
func (s *fakeScheduler) pending() []*fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTask
	for _, t := range s.tasks {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

// fireLatest runs the most recent live task as if its timer expired
func (s *fakeScheduler) fireLatest(t *testing.T) {
	t.Helper()
	pending := s.pending()
	if len(pending) == 0 {
		t.Fatal("no pending retry to fire")
	}
	task := pending[len(pending)-1]

	s.mu.Lock()
	task.stopped = true
	s.mu.Unlock()

	task.fn()
}

func newTestSocket(t *testing.T, dialer Dialer, maxAttempts int) (*Socket, *fakeScheduler) {
	t.Helper()

	cfg := Config{
		Endpoint: Endpoint{Origin: "https://console.example.com", Path: "/ws/notification"},
		Retry:    RetryPolicy{Delay: 3 * time.Second, MaxAttempts: maxAttempts},
	}
	s := NewSocket(cfg, dialer, StaticToken("tok"), nil)
	sched := &fakeScheduler{}
	s.after = sched.after
	t.Cleanup(func() { _ = s.Close() })
	return s, sched
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func waitState(t *testing.T, s *Socket, want ConnectionState) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return s.State() == want })
}
