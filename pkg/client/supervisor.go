// Package client maintains a client's connection to the loom daemon. The
// Supervisor owns the full connection lifecycle: dialing, the auth
// handshake, heartbeats, and reconnection with exponential backoff.
package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// State of the supervisor's connection.
type State string

// Supervisor states. Idle means no connection and no retry pending (fresh,
// stopped, or auth-rejected); Disconnected means a retry is scheduled.
const (
	StateIdle           State = "idle"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateConnected      State = "connected"
	StateDisconnected   State = "disconnected"
)

// AuthError is an authentication-level rejection. Unlike connection-level
// failures it is not retried: the credentials are wrong, not the network.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Reason }

// Conn is an established (but not yet authenticated) daemon connection.
type Conn interface {
	// Authenticate performs the typed auth handshake and returns the
	// session ID. An *AuthError means the token was rejected; any other
	// error is connection-level.
	Authenticate(ctx context.Context, token string) (string, error)
	Close() error
}

// Transport dials daemon connections and probes daemon health.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
	Heartbeat(ctx context.Context) error
}

const (
	backoffBase = time.Second
	backoffCap  = 30 * time.Second

	defaultHeartbeatInterval = 15 * time.Second
	defaultHeartbeatTimeout  = 5 * time.Second
	defaultAuthTimeout       = 10 * time.Second
	defaultMaxAttempts       = 10
)

// backoffDelay returns the reconnect delay before attempt n (1-based):
// min(1s * 2^(n-1), 30s).
func backoffDelay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := backoffBase << (n - 1)
	if d <= 0 || d > backoffCap {
		return backoffCap
	}
	return d
}

// Options configures a Supervisor.
type Options struct {
	Token             string
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	AuthTimeout       time.Duration
	MaxAttempts       int

	// OnState is invoked after every state transition, outside the
	// supervisor's lock.
	OnState func(State)
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.HeartbeatInterval == 0 {
		out.HeartbeatInterval = defaultHeartbeatInterval
	}
	if out.HeartbeatTimeout == 0 {
		out.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if out.AuthTimeout == 0 {
		out.AuthTimeout = defaultAuthTimeout
	}
	if out.MaxAttempts == 0 {
		out.MaxAttempts = defaultMaxAttempts
	}
	return out
}

// Supervisor drives one client connection. A single goroutine owns all
// timers, so heartbeat and reconnect cycles never overlap.
type Supervisor struct {
	transport Transport
	opts      Options

	mu        sync.Mutex
	state     State
	token     string
	sessionID string
	running   bool

	pokeCh  chan struct{}
	retryCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSupervisor creates a Supervisor in the idle state.
func NewSupervisor(transport Transport, opts Options) *Supervisor {
	resolved := opts.withDefaults()
	return &Supervisor{
		transport: transport,
		opts:      resolved,
		state:     StateIdle,
		token:     resolved.Token,
	}
}

// State returns a snapshot of the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the session established by the last successful auth.
func (s *Supervisor) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// SetToken replaces the credentials used on the next connect.
func (s *Supervisor) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Connect starts the connection loop. Calling it while the supervisor is
// already connecting, authenticating, or connected is a no-op.
func (s *Supervisor) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.pokeCh = make(chan struct{}, 1)
	s.retryCh = make(chan struct{}, 1)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.loop(s.pokeCh, s.retryCh, s.stopCh, s.doneCh)
}

// Disconnect tears the connection down and returns the supervisor to idle.
// It blocks until the loop goroutine has exited.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopCh, s.doneCh
	s.mu.Unlock()
	close(stop)
	<-done
}

// Retry resets the attempt counter and triggers an immediate reconnect.
// Useful after auto-retry gave up.
func (s *Supervisor) Retry() {
	s.mu.Lock()
	running := s.running
	retry := s.retryCh
	s.mu.Unlock()
	if running {
		select {
		case retry <- struct{}{}:
		default:
		}
		return
	}
	s.Connect()
}

// Poke fires an immediate out-of-band heartbeat, for foreground resumption.
// A no-op unless connected.
func (s *Supervisor) Poke() {
	s.mu.Lock()
	poke := s.pokeCh
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}
	select {
	case poke <- struct{}{}:
	default:
	}
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	cb := s.opts.OnState
	s.mu.Unlock()
	if cb != nil {
		cb(next)
	}
}

// finish marks the loop stopped and moves to the terminal state.
func (s *Supervisor) finish(terminal State, done chan struct{}) {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.setState(terminal)
	close(done)
}

// loop is the single timer-owning goroutine.
func (s *Supervisor) loop(poke, retry, stop, done chan struct{}) {
	attempt := 1
	for {
		select {
		case <-stop:
			s.finish(StateIdle, done)
			return
		default:
		}

		conn, ok := s.connectOnce(stop)
		if !ok {
			// Auth-level rejection or stop: the loop is over. Every exit
			// goes through finish so a blocked Disconnect is released.
			s.mu.Lock()
			stopped := !s.running
			s.mu.Unlock()
			if stopped {
				s.finish(StateIdle, done)
				return
			}
			// connection-level failure: back off.
			s.setState(StateDisconnected)
			if attempt >= s.opts.MaxAttempts {
				// Auto-retry exhausted; wait for a manual Retry.
				select {
				case <-retry:
					attempt = 1
					continue
				case <-stop:
					s.finish(StateIdle, done)
					return
				}
			}
			timer := time.NewTimer(backoffDelay(attempt))
			attempt++
			select {
			case <-timer.C:
			case <-retry:
				timer.Stop()
				attempt = 1
			case <-stop:
				timer.Stop()
				s.finish(StateIdle, done)
				return
			}
			continue
		}

		// Connected. Heartbeat until something breaks.
		attempt = 1
		s.setState(StateConnected)
		if !s.heartbeatLoop(conn, poke, stop) {
			s.finish(StateIdle, done)
			return
		}
		// Heartbeat failure: reconnect as attempt 1 (the loop turn above
		// already reset it).
	}
}

// connectOnce runs one dial+auth cycle. ok=false with running still true
// means a retryable connection failure; running=false means the loop must
// exit (stopped, or credentials rejected).
func (s *Supervisor) connectOnce(stop chan struct{}) (Conn, bool) {
	s.setState(StateConnecting)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer cancel()

	conn, err := s.transport.Dial(ctx)
	if err != nil {
		log.Printf("client: dial failed: %v", err)
		return nil, false
	}

	s.setState(StateAuthenticating)
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	authCtx, authCancel := context.WithTimeout(ctx, s.opts.AuthTimeout)
	sessionID, err := conn.Authenticate(authCtx, token)
	authCancel()
	if err != nil {
		_ = conn.Close()
		var authErr *AuthError
		if errors.As(err, &authErr) {
			// Bad credentials: discard them and stop retrying.
			log.Printf("client: %v", authErr)
			s.mu.Lock()
			s.token = ""
			s.sessionID = ""
			s.running = false
			s.mu.Unlock()
			s.setState(StateIdle)
			return nil, false
		}
		log.Printf("client: auth handshake failed: %v", err)
		return nil, false
	}

	s.mu.Lock()
	s.sessionID = sessionID
	s.mu.Unlock()
	return conn, true
}

// heartbeatLoop pings the daemon until a heartbeat fails (returns true, the
// caller reconnects) or the supervisor stops (returns false).
func (s *Supervisor) heartbeatLoop(conn Conn, poke, stop chan struct{}) bool {
	defer func() { _ = conn.Close() }()
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	beat := func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.HeartbeatTimeout)
		defer cancel()
		if err := s.transport.Heartbeat(ctx); err != nil {
			log.Printf("client: heartbeat failed: %v", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ticker.C:
			if !beat() {
				return true
			}
		case <-poke:
			if !beat() {
				return true
			}
			ticker.Reset(s.opts.HeartbeatInterval)
		case <-stop:
			return false
		}
	}
}
