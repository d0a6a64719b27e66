package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"golang.org/x/net/websocket"
)

// Authenticator resolves an access token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// NewHandler creates the realtime routes without token checks.
// Intended for tests and trusted local setups.
func NewHandler(hub *Hub) http.Handler {
	return newHandler(hub, nil)
}

// NewHandlerWithAuthenticator creates the realtime routes with token
// verification on both streams.
func NewHandlerWithAuthenticator(hub *Hub, auth Authenticator) http.Handler {
	return newHandler(hub, auth)
}

func newHandler(hub *Hub, auth Authenticator) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimPrefix(r.URL.Path, "/ws/")
		if userID == "" || strings.Contains(userID, "/") {
			http.Error(w, "user id required", http.StatusNotFound)
			return
		}
		if !authorize(w, r, auth, userID) {
			return
		}
		websocket.Handler(func(conn *websocket.Conn) {
			handleReportStream(conn, hub, userID)
		}).ServeHTTP(w, r)
	})

	mux.HandleFunc("/gamification/stream", func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		if !authorize(w, r, auth, userID) {
			return
		}
		websocket.Handler(func(conn *websocket.Conn) {
			handleGamificationStream(conn, hub, userID)
		}).ServeHTTP(w, r)
	})

	return mux
}

// authorize verifies the access token resolves to the requested user.
// With no authenticator configured every connection is accepted.
func authorize(w http.ResponseWriter, r *http.Request, auth Authenticator, userID string) bool {
	if auth == nil {
		return true
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return false
	}
	resolved, err := auth.Authenticate(r.Context(), token)
	if err != nil {
		log.Printf("ws: token verification failed for remote=%s: %v", r.RemoteAddr, err)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return false
	}
	if resolved != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// handleReportStream serves one /ws/{userID} connection: the client
// sends subscribe_reports frames and receives report events.
func handleReportStream(conn *websocket.Conn, hub *Hub, userID string) {
	defer func() {
		_ = conn.Close()
	}()

	p := newPeer(json.NewEncoder(conn), userID)
	hub.register(p)
	defer hub.unregister(p)

	decoder := json.NewDecoder(conn)
	for {
		var req subscribeRequest
		if err := decoder.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("ws: read frame from user %s: %v", userID, err)
			}
			return
		}
		if req.Type != "subscribe_reports" {
			continue
		}
		hub.subscribe(p, req.ReportIDs)
		if err := p.send(Subscribed{Type: "subscribed", ReportIDs: req.ReportIDs}); err != nil {
			return
		}
	}
}

// handleGamificationStream serves one /gamification/stream connection:
// the server greets with a hello frame and then pushes score events.
// Inbound frames are drained and ignored.
func handleGamificationStream(conn *websocket.Conn, hub *Hub, userID string) {
	defer func() {
		_ = conn.Close()
	}()

	p := newPeer(json.NewEncoder(conn), userID)
	hub.register(p)
	defer hub.unregister(p)

	if err := p.send(Hello{Type: "hello", Channel: "gamification", Connected: true}); err != nil {
		return
	}

	// Keep the connection registered until the client goes away.
	buf := make([]byte, 512)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}
