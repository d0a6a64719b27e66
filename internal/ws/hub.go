// Package ws hosts the realtime WebSocket layer: citizens subscribe to
// the reports they care about and receive status, resolution, upvote
// and comment events without polling. A separate stream carries
// per-user gamification events.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// peer is one connected WebSocket client. Writes are serialized so
// concurrent broadcasts cannot interleave frames.
type peer struct {
	mu      sync.Mutex
	encoder *json.Encoder
	userID  string
}

func newPeer(encoder *json.Encoder, userID string) *peer {
	return &peer{encoder: encoder, userID: userID}
}

func (p *peer) send(event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(event)
}

// Hub tracks connected peers by user and by watched report.
type Hub struct {
	mu      sync.Mutex
	users   map[string]map[*peer]bool
	reports map[string]map[*peer]bool
	// watched tracks each peer's report subscriptions for cleanup.
	watched map[*peer]map[string]bool
}

func NewHub() *Hub {
	return &Hub{
		users:   make(map[string]map[*peer]bool),
		reports: make(map[string]map[*peer]bool),
		watched: make(map[*peer]map[string]bool),
	}
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[p.userID]
	if !ok {
		set = make(map[*peer]bool)
		h.users[p.userID] = set
	}
	set[p] = true
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(p)
}

// dropLocked removes a peer from every registry. Callers hold h.mu.
func (h *Hub) dropLocked(p *peer) {
	if set, ok := h.users[p.userID]; ok {
		delete(set, p)
		if len(set) == 0 {
			delete(h.users, p.userID)
		}
	}
	for reportID := range h.watched[p] {
		if set, ok := h.reports[reportID]; ok {
			delete(set, p)
			if len(set) == 0 {
				delete(h.reports, reportID)
			}
		}
	}
	delete(h.watched, p)
}

func (h *Hub) subscribe(p *peer, reportIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	watched, ok := h.watched[p]
	if !ok {
		watched = make(map[string]bool)
		h.watched[p] = watched
	}
	for _, id := range reportIDs {
		if id == "" {
			continue
		}
		set, ok := h.reports[id]
		if !ok {
			set = make(map[*peer]bool)
			h.reports[id] = set
		}
		set[p] = true
		watched[id] = true
	}
}

// broadcast sends an event to every peer in the set, pruning peers
// whose connection is gone.
func (h *Hub) broadcast(peers map[*peer]bool, event any) {
	targets := make([]*peer, 0, len(peers))
	for p := range peers {
		targets = append(targets, p)
	}
	h.mu.Unlock()

	var dead []*peer
	for _, p := range targets {
		if err := p.send(event); err != nil {
			dead = append(dead, p)
		}
	}

	h.mu.Lock()
	for _, p := range dead {
		h.dropLocked(p)
	}
}

// BroadcastToReport delivers an event to every peer watching reportID.
func (h *Hub) BroadcastToReport(reportID string, event any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.reports[reportID]
	if !ok {
		return
	}
	h.broadcast(set, event)
}

// PublishToUser delivers an event to every connection of one user.
// It satisfies the gamification publisher contract.
func (h *Hub) PublishToUser(userID string, event any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[userID]
	if !ok {
		return
	}
	h.broadcast(set, event)
}

// WatcherCount reports how many peers watch a report. Used by tests
// and the readiness probe.
func (h *Hub) WatcherCount(reportID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reports[reportID])
}

// BroadcastStatusUpdate announces a status transition on a report.
func (h *Hub) BroadcastStatusUpdate(reportID, oldStatus, newStatus, changedBy, notes string) {
	now := time.Now().UTC().Format(time.RFC3339)
	h.BroadcastToReport(reportID, StatusUpdate{
		Type:      "status_update",
		ReportID:  reportID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		ChangedBy: changedBy,
		Notes:     notes,
		Timestamp: now,
		UpdatedAt: now,
	})
	log.Printf("ws: status update for report %s: %s -> %s", reportID, oldStatus, newStatus)
}

// BroadcastResolution announces a geo-verified resolution.
func (h *Hub) BroadcastResolution(reportID, evidenceURL string, lat, lng, distanceMeters float64) {
	h.BroadcastToReport(reportID, ResolutionUpdate{
		Type:             "resolution_update",
		ReportID:         reportID,
		EvidenceURL:      evidenceURL,
		AdminCoordinates: Coordinates{Latitude: lat, Longitude: lng},
		DistanceMeters:   distanceMeters,
		ResolvedAt:       time.Now().UTC().Format(time.RFC3339),
	})
	log.Printf("ws: resolution update for report %s", reportID)
}

// BroadcastUpvote announces an upvote toggle on a report.
func (h *Hub) BroadcastUpvote(reportID string, totalUpvotes int, userID string, added bool) {
	action := "removed"
	if added {
		action = "added"
	}
	h.BroadcastToReport(reportID, UpvoteUpdate{
		Type:         "upvote_update",
		ReportID:     reportID,
		TotalUpvotes: totalUpvotes,
		UserID:       userID,
		Action:       action,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
	})
}

// BroadcastComment announces a new comment on a report.
func (h *Hub) BroadcastComment(reportID, commentID, userID, userName, body string, createdAt time.Time) {
	h.BroadcastToReport(reportID, CommentNew{
		Type:      "comment_new",
		ReportID:  reportID,
		CommentID: commentID,
		UserID:    userID,
		UserName:  userName,
		Comment:   body,
		CreatedAt: createdAt.UTC().Format(time.RFC3339),
	})
}
