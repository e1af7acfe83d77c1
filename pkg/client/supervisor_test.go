package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport scripts dial/auth/heartbeat outcomes.
type fakeTransport struct {
	mu      sync.Mutex
	dialErr error
	authErr error
	hbErr   error
	dials   int
	beats   int
}

type fakeConn struct {
	t      *fakeTransport
	closed bool
}

func (f *fakeTransport) Dial(context.Context) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return &fakeConn{t: f}, nil
}

func (f *fakeTransport) Heartbeat(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	return f.hbErr
}

func (f *fakeTransport) set(mut func(*fakeTransport)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mut(f)
}

func (f *fakeTransport) count(get func(*fakeTransport) int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return get(f)
}

func (c *fakeConn) Authenticate(_ context.Context, _ string) (string, error) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.t.authErr != nil {
		return "", c.t.authErr
	}
	return "session-1", nil
}

func (c *fakeConn) Close() error {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	c.closed = true
	return nil
}

// stateRecorder collects transitions.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func waitForState(t *testing.T, s *Supervisor, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %q, want %q", s.State(), want)
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		n        int
		expected time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.n); got != tt.expected {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.n, got, tt.expected)
		}
	}
}

func TestConnectHappyPath(t *testing.T) {
	ft := &fakeTransport{}
	rec := &stateRecorder{}
	s := NewSupervisor(ft, Options{
		Token:             "tok",
		HeartbeatInterval: time.Hour, // no heartbeats during this test
		OnState:           rec.record,
	})
	defer s.Disconnect()

	s.Connect()
	waitForState(t, s, StateConnected)

	if s.SessionID() != "session-1" {
		t.Errorf("SessionID = %q", s.SessionID())
	}
	want := []State{StateConnecting, StateAuthenticating, StateConnected}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConnectIsReentrant(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSupervisor(ft, Options{Token: "tok", HeartbeatInterval: time.Hour})
	defer s.Disconnect()

	s.Connect()
	waitForState(t, s, StateConnected)
	s.Connect()
	s.Connect()

	if got := ft.count(func(f *fakeTransport) int { return f.dials }); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestAuthFailureGoesIdleAndDiscardsToken(t *testing.T) {
	ft := &fakeTransport{authErr: &AuthError{Reason: "bad token"}}
	s := NewSupervisor(ft, Options{Token: "bad", HeartbeatInterval: time.Hour})

	s.Connect()
	waitForState(t, s, StateIdle)

	// No auto-retry after an auth rejection.
	time.Sleep(20 * time.Millisecond)
	if got := ft.count(func(f *fakeTransport) int { return f.dials }); got != 1 {
		t.Errorf("dials = %d, want 1 (no retry on auth failure)", got)
	}

	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token != "" {
		t.Errorf("token not discarded: %q", token)
	}
}

func TestConnectionFailureBacksOff(t *testing.T) {
	ft := &fakeTransport{dialErr: errors.New("refused")}
	s := NewSupervisor(ft, Options{Token: "tok", HeartbeatInterval: time.Hour})
	defer s.Disconnect()

	s.Connect()
	waitForState(t, s, StateDisconnected)

	// The daemon comes back; manual Retry skips the remaining backoff.
	ft.set(func(f *fakeTransport) { f.dialErr = nil })
	s.Retry()
	waitForState(t, s, StateConnected)
}

func TestAutoRetryStopsAtMaxAttempts(t *testing.T) {
	ft := &fakeTransport{dialErr: errors.New("refused")}
	s := NewSupervisor(ft, Options{Token: "tok", HeartbeatInterval: time.Hour, MaxAttempts: 1})
	defer s.Disconnect()

	s.Connect()
	waitForState(t, s, StateDisconnected)
	time.Sleep(20 * time.Millisecond)
	if got := ft.count(func(f *fakeTransport) int { return f.dials }); got != 1 {
		t.Errorf("dials = %d, want 1 (auto-retry exhausted)", got)
	}

	// Manual Retry resets the counter.
	ft.set(func(f *fakeTransport) { f.dialErr = nil })
	s.Retry()
	waitForState(t, s, StateConnected)
}

func TestHeartbeatFailureReconnects(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSupervisor(ft, Options{Token: "tok", HeartbeatInterval: 5 * time.Millisecond})
	defer s.Disconnect()

	s.Connect()
	waitForState(t, s, StateConnected)

	ft.set(func(f *fakeTransport) { f.hbErr = errors.New("timeout") })
	// Heartbeat fails, transport recovers, supervisor reconnects on its own.
	time.Sleep(15 * time.Millisecond)
	ft.set(func(f *fakeTransport) { f.hbErr = nil })
	waitForState(t, s, StateConnected)

	if got := ft.count(func(f *fakeTransport) int { return f.dials }); got < 2 {
		t.Errorf("dials = %d, want at least 2 after heartbeat failure", got)
	}
}

func TestPokeFiresImmediateHeartbeat(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSupervisor(ft, Options{Token: "tok", HeartbeatInterval: time.Hour})
	defer s.Disconnect()

	s.Connect()
	waitForState(t, s, StateConnected)
	if got := ft.count(func(f *fakeTransport) int { return f.beats }); got != 0 {
		t.Fatalf("beats = %d before poke", got)
	}

	s.Poke()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ft.count(func(f *fakeTransport) int { return f.beats }) == 1 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Error("poke did not trigger a heartbeat")
}

// blockingAuthTransport parks Authenticate until released, then rejects.
type blockingAuthTransport struct {
	fakeTransport
	authStarted chan struct{}
	release     chan struct{}
}

func (b *blockingAuthTransport) Dial(context.Context) (Conn, error) {
	return &blockingAuthConn{b: b}, nil
}

type blockingAuthConn struct {
	b *blockingAuthTransport
}

func (c *blockingAuthConn) Authenticate(context.Context, string) (string, error) {
	close(c.b.authStarted)
	<-c.b.release
	return "", &AuthError{Reason: "revoked"}
}

func (c *blockingAuthConn) Close() error { return nil }

func TestDisconnectDuringAuthRejection(t *testing.T) {
	bt := &blockingAuthTransport{
		authStarted: make(chan struct{}),
		release:     make(chan struct{}),
	}
	s := NewSupervisor(bt, Options{Token: "tok", HeartbeatInterval: time.Hour})

	s.Connect()
	<-bt.authStarted

	// Disconnect observes the loop still running, then the handshake comes
	// back rejected. It must not hang on the exiting loop.
	done := make(chan struct{})
	go func() {
		s.Disconnect()
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	close(bt.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect did not return after an auth rejection")
	}
	if s.State() != StateIdle {
		t.Errorf("state = %q after Disconnect", s.State())
	}
}

func TestDisconnectReturnsToIdle(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSupervisor(ft, Options{Token: "tok", HeartbeatInterval: time.Hour})

	s.Connect()
	waitForState(t, s, StateConnected)
	s.Disconnect()

	if s.State() != StateIdle {
		t.Errorf("state = %q after Disconnect", s.State())
	}
	// Connect starts a fresh loop after a clean disconnect.
	s.Connect()
	waitForState(t, s, StateConnected)
	s.Disconnect()
}
