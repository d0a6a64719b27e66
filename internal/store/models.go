package store

import "time"

// Report status stages, in lifecycle order.
const (
	StatusReported     = "reported"
	StatusAcknowledged = "acknowledged"
	StatusInProgress   = "in_progress"
	StatusResolved     = "resolved"
)

// StatusOrder maps each status to its position in the lifecycle.
var StatusOrder = map[string]int{
	StatusReported:     0,
	StatusAcknowledged: 1,
	StatusInProgress:   2,
	StatusResolved:     3,
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	Mobile       string
	Role         string
	Department   string
	IsActive     bool
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Department struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

type CategoryMapping struct {
	Category   string
	Department string
}

type Report struct {
	ID          string
	Title       string
	Description string
	Category    string
	ImageURL    string
	Latitude    float64
	Longitude   float64
	ReporterID  string
	Status      string
	AdminNotes  string

	IsDeleted      bool
	DeletionReason string
	DeletedAt      *time.Time

	ResolvedBy               string
	ResolvedAt               *time.Time
	ResolutionImageURL       string
	ResolutionLatitude       *float64
	ResolutionLongitude      *float64
	ResolutionDistanceMeters *float64

	ReportedAt     time.Time
	AcknowledgedAt *time.Time
	InProgressAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ReportImage struct {
	ID       string
	ReportID string
	URL      string
	Position int
}

// ReportSummary is a report plus the aggregate counts the community feed shows.
type ReportSummary struct {
	Report
	Upvotes      int
	Comments     int
	ReporterName string
}

type Comment struct {
	ID        string
	ReportID  string
	UserID    string
	UserName  string
	Body      string
	CreatedAt time.Time
}

type Upvote struct {
	ID        string
	ReportID  string
	UserID    string
	CreatedAt time.Time
}

type StatusChange struct {
	ID        string
	ReportID  string
	OldStatus string
	NewStatus string
	ChangedBy string
	Notes     string
	CreatedAt time.Time
}

type Badge struct {
	Code        string
	Name        string
	Description string
	Tier        int
	IconURL     string
}

// DepartmentStats aggregates the triage workload of one department.
type DepartmentStats struct {
	Department string
	Total      int
	Reported   int
	InProgress int
	Resolved   int
}

// LeaderboardEntry is one row of the monthly points leaderboard.
type LeaderboardEntry struct {
	UserID   string
	FullName string
	Points   int
	Rank     int
}
