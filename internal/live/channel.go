package live

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"crowdcare/internal/ws"
)

// Handlers receives the typed report events. Exactly one handler fires
// per inbound frame; nil handlers drop their event kind.
type Handlers struct {
	StatusUpdate     func(ws.StatusUpdate)
	ResolutionUpdate func(ws.ResolutionUpdate)
	UpvoteUpdate     func(ws.UpvoteUpdate)
	CommentNew       func(ws.CommentNew)
	// StateChange observes the connection lifecycle, including the
	// terminal failed state once the reconnect budget is spent.
	StateChange func(State)
}

// Options configures a Channel.
type Options struct {
	// BaseURL is the API origin, e.g. "https://crowdcare.example". The
	// socket scheme is derived from it: https becomes wss.
	BaseURL string
	// Origin is sent in the handshake; defaults to BaseURL.
	Origin string
	// Token authenticates the handshake when the server requires it.
	Token string
	Logf  func(format string, args ...any)
}

// Channel is one realtime report-update connection for a session. It
// reconnects on abnormal closure with exponential backoff (1s, 2s, 4s,
// 8s, 16s) and gives up after five failed attempts.
type Channel struct {
	opts     Options
	handlers Handlers
	sock     *socket

	mu        sync.Mutex
	userID    string
	reportIDs []string
}

type subscribePayload struct {
	Type      string   `json:"type"`
	ReportIDs []string `json:"report_ids"`
}

func NewChannel(opts Options, handlers Handlers) *Channel {
	if opts.Origin == "" {
		opts.Origin = opts.BaseURL
	}
	c := &Channel{opts: opts, handlers: handlers}
	c.sock = newSocket(opts.Origin)
	c.sock.target = c.target
	c.sock.dispatch = c.dispatch
	c.sock.onOpen = c.resubscribe
	c.sock.onState = handlers.StateChange
	if opts.Logf != nil {
		c.sock.logf = opts.Logf
	}
	return c
}

func (c *Channel) target() (string, error) {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()

	query := ""
	if c.opts.Token != "" {
		query = "token=" + url.QueryEscape(c.opts.Token)
	}
	return wsURL(c.opts.BaseURL, "/ws/"+userID, query)
}

// Connect opens the channel for the given user. Safe to call again
// after a terminal failure to start a fresh attempt cycle.
func (c *Channel) Connect(userID string) error {
	if userID == "" {
		return fmt.Errorf("live: connect requires a user id")
	}
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()

	c.sock.connect()
	return nil
}

// Disconnect closes the channel and cancels any pending reconnect.
// Terminal: no reconnect is scheduled afterwards.
func (c *Channel) Disconnect() {
	c.sock.close()
}

// State reports the current connection state.
func (c *Channel) State() State {
	return c.sock.currentState()
}

// Send transmits an arbitrary JSON frame if the channel is open,
// dropping it with a warning otherwise.
func (c *Channel) Send(v any) {
	c.sock.send(v)
}

// Subscribe replaces the set of watched report ids. The set is sent
// immediately when open and re-sent after every successful reconnect,
// so updates survive connection drops.
func (c *Channel) Subscribe(reportIDs []string) {
	ids := make([]string, len(reportIDs))
	copy(ids, reportIDs)

	c.mu.Lock()
	c.reportIDs = ids
	c.mu.Unlock()

	if c.sock.currentState() == StateOpen {
		c.sock.send(subscribePayload{Type: "subscribe_reports", ReportIDs: ids})
	}
}

// resubscribe runs on every successful open and replays the current
// subscription set, if any.
func (c *Channel) resubscribe() {
	c.mu.Lock()
	ids := c.reportIDs
	c.mu.Unlock()

	if len(ids) > 0 {
		c.sock.send(subscribePayload{Type: "subscribe_reports", ReportIDs: ids})
	}
}

// dispatch routes one inbound frame to exactly one handler. Malformed
// frames are logged and dropped; unknown types are a deliberate no-op.
func (c *Channel) dispatch(raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.sock.logf("live: dropping malformed frame: %v", err)
		return
	}

	switch envelope.Type {
	case "status_update":
		var event ws.StatusUpdate
		if err := json.Unmarshal(raw, &event); err != nil {
			c.sock.logf("live: bad status_update frame: %v", err)
			return
		}
		if c.handlers.StatusUpdate != nil {
			c.handlers.StatusUpdate(event)
		}
	case "resolution_update":
		var event ws.ResolutionUpdate
		if err := json.Unmarshal(raw, &event); err != nil {
			c.sock.logf("live: bad resolution_update frame: %v", err)
			return
		}
		if c.handlers.ResolutionUpdate != nil {
			c.handlers.ResolutionUpdate(event)
		}
	case "upvote_update":
		var event ws.UpvoteUpdate
		if err := json.Unmarshal(raw, &event); err != nil {
			c.sock.logf("live: bad upvote_update frame: %v", err)
			return
		}
		if c.handlers.UpvoteUpdate != nil {
			c.handlers.UpvoteUpdate(event)
		}
	case "comment_new":
		var event ws.CommentNew
		if err := json.Unmarshal(raw, &event); err != nil {
			c.sock.logf("live: bad comment_new frame: %v", err)
			return
		}
		if c.handlers.CommentNew != nil {
			c.handlers.CommentNew(event)
		}
	case "subscribed":
		// Acknowledgment only.
	default:
		// Unknown event types are ignored.
	}
}
