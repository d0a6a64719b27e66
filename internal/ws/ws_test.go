package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return got
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func TestSubscribeAndStatusBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub))
	t.Cleanup(srv.Close)

	conn := dialWS(t, srv, "/ws/usr_1")
	writeFrame(t, conn, map[string]any{
		"type":       "subscribe_reports",
		"report_ids": []string{"rpt_a", "rpt_b"},
	})

	ack := readEvent(t, conn)
	if ack["type"] != "subscribed" {
		t.Fatalf("expected subscribed ack, got %v", ack)
	}

	// The subscription is registered before the ack is sent, so the
	// broadcast below must reach the peer.
	hub.BroadcastStatusUpdate("rpt_a", "reported", "acknowledged", "Dispatcher", "")

	event := readEvent(t, conn)
	if event["type"] != "status_update" {
		t.Fatalf("expected status_update, got %v", event)
	}
	if event["report_id"] != "rpt_a" || event["new_status"] != "acknowledged" {
		t.Errorf("unexpected payload: %v", event)
	}
}

func TestBroadcastOnlyReachesWatchers(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub))
	t.Cleanup(srv.Close)

	watcher := dialWS(t, srv, "/ws/usr_1")
	writeFrame(t, watcher, map[string]any{"type": "subscribe_reports", "report_ids": []string{"rpt_a"}})
	readEvent(t, watcher) // subscribed

	other := dialWS(t, srv, "/ws/usr_2")
	writeFrame(t, other, map[string]any{"type": "subscribe_reports", "report_ids": []string{"rpt_b"}})
	readEvent(t, other) // subscribed

	hub.BroadcastUpvote("rpt_a", 3, "usr_9", true)

	event := readEvent(t, watcher)
	if event["type"] != "upvote_update" || event["action"] != "added" {
		t.Fatalf("watcher missing upvote event: %v", event)
	}

	// The non-watcher should see nothing.
	_ = other.SetDeadline(time.Now().Add(200 * time.Millisecond))
	var stray map[string]any
	if err := json.NewDecoder(other).Decode(&stray); err == nil {
		t.Fatalf("non-watcher received stray event: %v", stray)
	}
}

func TestGamificationStreamHello(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub))
	t.Cleanup(srv.Close)

	conn := dialWS(t, srv, "/gamification/stream?user_id=usr_1")

	hello := readEvent(t, conn)
	if hello["type"] != "hello" || hello["channel"] != "gamification" {
		t.Fatalf("expected hello frame, got %v", hello)
	}

	hub.PublishToUser("usr_1", map[string]any{"type": "points_update", "delta": 50, "total": 50})

	event := readEvent(t, conn)
	if event["type"] != "points_update" {
		t.Fatalf("expected points_update, got %v", event)
	}
}

func TestGamificationStreamRequiresUserID(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/gamification/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDisconnectPrunesSubscriptions(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub))
	t.Cleanup(srv.Close)

	conn := dialWS(t, srv, "/ws/usr_1")
	writeFrame(t, conn, map[string]any{"type": "subscribe_reports", "report_ids": []string{"rpt_a"}})
	readEvent(t, conn)

	if got := hub.WatcherCount("rpt_a"); got != 1 {
		t.Fatalf("watchers = %d, want 1", got)
	}

	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.WatcherCount("rpt_a") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("watcher not pruned after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type fakeAuthenticator struct {
	userID string
	err    error
}

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.userID, nil
}

func TestAuthenticatedHandlerRejectsMissingToken(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandlerWithAuthenticator(hub, fakeAuthenticator{userID: "usr_1"}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/ws/usr_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthenticatedHandlerRejectsMismatchedUser(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandlerWithAuthenticator(hub, fakeAuthenticator{userID: "usr_other"}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/ws/usr_1?token=abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestAuthenticatedHandlerAcceptsValidToken(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandlerWithAuthenticator(hub, fakeAuthenticator{userID: "usr_1"}))
	t.Cleanup(srv.Close)

	conn := dialWS(t, srv, "/ws/usr_1?token=abc")
	writeFrame(t, conn, map[string]any{"type": "subscribe_reports", "report_ids": []string{"rpt_a"}})
	if ack := readEvent(t, conn); ack["type"] != "subscribed" {
		t.Fatalf("expected subscribed ack, got %v", ack)
	}
}

func TestAuthenticatorError(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandlerWithAuthenticator(hub, fakeAuthenticator{err: errors.New("bad token")}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/ws/usr_1?token=abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
