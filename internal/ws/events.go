package ws

// Coordinates is a lat/lng pair embedded in resolution events.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// StatusUpdate announces a report status transition to watchers.
// Timestamp and UpdatedAt carry the same instant; older clients read
// updated_at, newer ones timestamp.
type StatusUpdate struct {
	Type      string `json:"type"`
	ReportID  string `json:"report_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	ChangedBy string `json:"changed_by"`
	Notes     string `json:"notes,omitempty"`
	Timestamp string `json:"timestamp"`
	UpdatedAt string `json:"updated_at"`
}

// ResolutionUpdate announces a geo-verified resolution with evidence.
type ResolutionUpdate struct {
	Type             string      `json:"type"`
	ReportID         string      `json:"report_id"`
	EvidenceURL      string      `json:"evidence_url"`
	AdminCoordinates Coordinates `json:"admin_coordinates"`
	DistanceMeters   float64     `json:"distance_meters"`
	ResolvedAt       string      `json:"resolved_at"`
}

// UpvoteUpdate announces an upvote toggle. Action is "added" or "removed".
type UpvoteUpdate struct {
	Type         string `json:"type"`
	ReportID     string `json:"report_id"`
	TotalUpvotes int    `json:"total_upvotes"`
	UserID       string `json:"user_id"`
	Action       string `json:"action"`
	UpdatedAt    string `json:"updated_at"`
}

// CommentNew announces a comment posted on a watched report.
type CommentNew struct {
	Type      string `json:"type"`
	ReportID  string `json:"report_id"`
	CommentID string `json:"comment_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name,omitempty"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"created_at"`
}

// Subscribed acknowledges a subscribe_reports request.
type Subscribed struct {
	Type      string   `json:"type"`
	ReportIDs []string `json:"report_ids"`
}

// Hello is the first frame on the gamification stream.
type Hello struct {
	Type      string `json:"type"`
	Channel   string `json:"channel"`
	Connected bool   `json:"connected"`
}

// subscribeRequest is the only inbound frame clients send.
type subscribeRequest struct {
	Type      string   `json:"type"`
	ReportIDs []string `json:"report_ids"`
}
