// Package live holds the client side of the realtime layer: a report
// update channel and a gamification score stream, both reconnecting
// with capped exponential backoff over plain WebSocket frames.
package live

import (
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// State describes where a connection is in its lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	// StateClosed is a deliberate local disconnect; no reconnect follows.
	StateClosed State = "closed"
	// StateFailed means the reconnect budget is spent. A fresh Connect
	// call is the only way out.
	StateFailed State = "failed"
)

const (
	maxReconnectAttempts = 5
	baseReconnectDelay   = time.Second
	maxReconnectDelay    = 30 * time.Second
)

// reconnectDelay returns the wait before reconnect attempt n: 1s, 2s,
// 4s, 8s, 16s, capped at 30s.
func reconnectDelay(attempt int) time.Duration {
	delay := baseReconnectDelay << uint(attempt)
	if delay > maxReconnectDelay || delay <= 0 {
		delay = maxReconnectDelay
	}
	return delay
}

// wsURL rewrites an http(s) base URL into its ws(s) equivalent with the
// given path and query appended.
func wsURL(base, path, rawQuery string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = path
	parsed.RawQuery = rawQuery
	return parsed.String(), nil
}

// socket is the shared connect/read/reconnect machine under Channel and
// ScoreStream. The owner supplies the target URL, a frame dispatcher,
// and an on-open hook; socket owns the state transitions.
type socket struct {
	origin   string
	target   func() (string, error)
	dispatch func(raw []byte)
	onOpen   func()
	onState  func(State)
	logf     func(format string, args ...any)

	// after is the timer seam; tests swap it to observe delays.
	after func(d time.Duration, fn func()) *time.Timer

	mu       sync.Mutex
	state    State
	attempts int
	conn     *websocket.Conn
	timer    *time.Timer
	// gen invalidates stale dial goroutines and read loops after a
	// disconnect or a newer connect has superseded them.
	gen int
}

func newSocket(origin string) *socket {
	return &socket{
		origin: origin,
		state:  StateIdle,
		logf:   log.Printf,
		after:  time.AfterFunc,
	}
}

func (s *socket) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setStateLocked updates the state and returns a notifier to run after
// the lock is released, so callbacks never fire under the mutex.
func (s *socket) setStateLocked(state State) func() {
	s.state = state
	notify := s.onState
	if notify == nil {
		return func() {}
	}
	return func() { notify(state) }
}

// connect starts a dial. Any pending reconnect timer and any previous
// socket generation are superseded.
func (s *socket) connect() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	gen := s.gen
	s.attempts = 0
	notify := s.setStateLocked(StateConnecting)
	s.mu.Unlock()
	notify()

	go s.dial(gen)
}

func (s *socket) dial(gen int) {
	target, err := s.target()
	if err != nil {
		s.logf("live: bad socket target: %v", err)
		s.mu.Lock()
		if s.gen == gen {
			notify := s.setStateLocked(StateFailed)
			s.mu.Unlock()
			notify()
			return
		}
		s.mu.Unlock()
		return
	}

	conn, err := websocket.Dial(target, "", s.origin)

	s.mu.Lock()
	if s.gen != gen {
		// A disconnect or newer connect won the race; abandon this dial.
		s.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		s.logf("live: dial %s: %v", target, err)
		s.scheduleReconnectLocked(gen)
		return
	}

	s.conn = conn
	s.attempts = 0
	notify := s.setStateLocked(StateOpen)
	onOpen := s.onOpen
	s.mu.Unlock()

	notify()
	if onOpen != nil {
		onOpen()
	}
	go s.readLoop(conn, gen)
}

func (s *socket) readLoop(conn *websocket.Conn, gen int) {
	for {
		var raw []byte
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			break
		}
		if s.dispatch != nil {
			s.dispatch(raw)
		}
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	if s.state == StateClosed {
		// Deliberate disconnect already ran; nothing to do.
		s.mu.Unlock()
		return
	}
	s.scheduleReconnectLocked(gen)
}

// scheduleReconnectLocked is called with the mutex held after an
// abnormal closure or a failed dial; it releases the mutex.
func (s *socket) scheduleReconnectLocked(gen int) {
	if s.attempts >= maxReconnectAttempts {
		notify := s.setStateLocked(StateFailed)
		s.mu.Unlock()
		s.logf("live: reconnect attempts exhausted")
		notify()
		return
	}

	delay := reconnectDelay(s.attempts)
	s.attempts++
	notify := s.setStateLocked(StateConnecting)
	s.timer = s.after(delay, func() {
		s.mu.Lock()
		if s.gen != gen || s.state == StateClosed {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		s.dial(gen)
	})
	s.mu.Unlock()
	notify()
}

// close tears the connection down. A pending reconnect timer is
// cancelled before the socket closes so a retry cannot race shutdown.
func (s *socket) close() {
	s.mu.Lock()
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.conn = nil
	notify := s.setStateLocked(StateClosed)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	notify()
}

// send transmits one JSON frame if the connection is open. Anything
// else drops the frame with a warning; frames are never queued.
func (s *socket) send(v any) {
	s.mu.Lock()
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || conn == nil {
		s.logf("live: dropping send, connection not open (state=%s)", s.currentState())
		return
	}
	if err := websocket.JSON.Send(conn, v); err != nil {
		s.logf("live: send failed: %v", err)
	}
}
