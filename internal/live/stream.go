package live

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"crowdcare/internal/gamification"
	"crowdcare/internal/ws"
)

// ScoreHandlers receives gamification stream events.
type ScoreHandlers struct {
	Hello             func(ws.Hello)
	PointsUpdate      func(gamification.PointsUpdate)
	BadgeUnlocked     func(gamification.BadgeUnlocked)
	StreakUpdate      func(gamification.StreakUpdate)
	LeaderboardUpdate func(gamification.LeaderboardUpdate)
	StateChange       func(State)
}

// ScoreStream is the receive-only gamification connection. It shares
// the Channel's reconnect behavior but never sends after the handshake.
type ScoreStream struct {
	opts     Options
	handlers ScoreHandlers
	sock     *socket

	mu     sync.Mutex
	userID string
}

func NewScoreStream(opts Options, handlers ScoreHandlers) *ScoreStream {
	if opts.Origin == "" {
		opts.Origin = opts.BaseURL
	}
	s := &ScoreStream{opts: opts, handlers: handlers}
	s.sock = newSocket(opts.Origin)
	s.sock.target = s.target
	s.sock.dispatch = s.dispatch
	s.sock.onState = handlers.StateChange
	if opts.Logf != nil {
		s.sock.logf = opts.Logf
	}
	return s
}

func (s *ScoreStream) target() (string, error) {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()

	query := url.Values{"user_id": {userID}}
	if s.opts.Token != "" {
		query.Set("token", s.opts.Token)
	}
	return wsURL(s.opts.BaseURL, "/gamification/stream", query.Encode())
}

func (s *ScoreStream) Connect(userID string) error {
	if userID == "" {
		return fmt.Errorf("live: score stream requires a user id")
	}
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()

	s.sock.connect()
	return nil
}

func (s *ScoreStream) Disconnect() {
	s.sock.close()
}

func (s *ScoreStream) State() State {
	return s.sock.currentState()
}

func (s *ScoreStream) dispatch(raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.sock.logf("live: dropping malformed score frame: %v", err)
		return
	}

	switch envelope.Type {
	case "hello":
		var event ws.Hello
		if err := json.Unmarshal(raw, &event); err != nil {
			return
		}
		if s.handlers.Hello != nil {
			s.handlers.Hello(event)
		}
	case "points_update":
		var event gamification.PointsUpdate
		if err := json.Unmarshal(raw, &event); err != nil {
			return
		}
		if s.handlers.PointsUpdate != nil {
			s.handlers.PointsUpdate(event)
		}
	case "badge_unlocked":
		var event gamification.BadgeUnlocked
		if err := json.Unmarshal(raw, &event); err != nil {
			return
		}
		if s.handlers.BadgeUnlocked != nil {
			s.handlers.BadgeUnlocked(event)
		}
	case "streak_update":
		var event gamification.StreakUpdate
		if err := json.Unmarshal(raw, &event); err != nil {
			return
		}
		if s.handlers.StreakUpdate != nil {
			s.handlers.StreakUpdate(event)
		}
	case "leaderboard_update":
		var event gamification.LeaderboardUpdate
		if err := json.Unmarshal(raw, &event); err != nil {
			return
		}
		if s.handlers.LeaderboardUpdate != nil {
			s.handlers.LeaderboardUpdate(event)
		}
	default:
		// Unknown event types are ignored.
	}
}
