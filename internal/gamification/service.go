// Package gamification computes citizen engagement scores: points,
// levels, activity streaks, badge progress and the monthly leaderboard.
package gamification

import (
	"context"
	"fmt"
	"time"

	"crowdcare/internal/store"
)

// Scoring rules per activity.
const (
	PointsPerReport   = 50
	PointsPerResolved = 20
	PointsPerUpvote   = 2
	PointsPerComment  = 3
)

// Level thresholds.
const (
	silverAt   = 500
	goldAt     = 1000
	platinumAt = 2000
)

// SLAWindow is how quickly a report must be resolved to count toward
// the Impact Under SLA badge.
const SLAWindow = 72 * time.Hour

// streakLookback bounds how far back consecutive-day activity is scanned.
const streakLookback = 30

// Counts aggregates a user's scored activity.
type Counts struct {
	Reports      int
	Resolved     int
	UpvotesGiven int
	Comments     int
	WithEvidence int
	WithinSLA    int
	EcoResolved  int
}

// Points applies the scoring rules to a set of activity counts.
func Points(c Counts) int {
	return c.Reports*PointsPerReport +
		c.Resolved*PointsPerResolved +
		c.UpvotesGiven*PointsPerUpvote +
		c.Comments*PointsPerComment
}

// LevelInfo describes where a point total sits in the level ladder.
type LevelInfo struct {
	Name       string
	XPInLevel  int
	XPRequired int
}

// Level maps a point total to its tier. Bronze 0-499, Silver 500-999,
// Gold 1000-1999, Platinum 2000+.
func Level(points int) LevelInfo {
	switch {
	case points >= platinumAt:
		return LevelInfo{Name: "Platinum", XPInLevel: points - platinumAt, XPRequired: 1000}
	case points >= goldAt:
		return LevelInfo{Name: "Gold", XPInLevel: points - goldAt, XPRequired: 1000}
	case points >= silverAt:
		return LevelInfo{Name: "Silver", XPInLevel: points - silverAt, XPRequired: 500}
	default:
		return LevelInfo{Name: "Bronze", XPInLevel: points, XPRequired: 500}
	}
}

// Streak counts consecutive days with activity, walking back from
// today. The scan stops at the first gap or after 30 days.
func Streak(activeDates []time.Time, today time.Time) int {
	active := make(map[string]bool, len(activeDates))
	for _, d := range activeDates {
		active[d.UTC().Format("2006-01-02")] = true
	}

	streak := 0
	for i := 0; i < streakLookback; i++ {
		day := today.UTC().AddDate(0, 0, -i).Format("2006-01-02")
		if !active[day] {
			break
		}
		streak++
	}
	return streak
}

// BadgeProgress is one badge with the user's progress toward it.
type BadgeProgress struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	IconURL  string `json:"icon_url"`
	Tier     int    `json:"tier"`
	Earned   bool   `json:"earned"`
	Progress int    `json:"progress"`
	Goal     int    `json:"goal"`
}

// Profile is the full gamification view for one user.
type Profile struct {
	UserID      string             `json:"user_id"`
	Name        string             `json:"name"`
	Points      int                `json:"points"`
	Level       string             `json:"level"`
	XPInLevel   int                `json:"xp_in_level"`
	XPRequired  int                `json:"xp_required"`
	StreakDays  int                `json:"streak_days"`
	Rank        int                `json:"rank"`
	Badges      []BadgeProgress    `json:"badges"`
	Leaderboard []LeaderboardEntry `json:"leaderboard_preview"`
}

// Store is the subset of report storage the scorer reads from.
type Store interface {
	CountReportsByReporter(ctx context.Context, userID string) (int, error)
	CountResolvedReportsByReporter(ctx context.Context, userID string) (int, error)
	CountUpvotesGivenBy(ctx context.Context, userID string) (int, error)
	CountCommentsBy(ctx context.Context, userID string) (int, error)
	CountReportsWithEvidence(ctx context.Context, userID string) (int, error)
	CountResolvedWithinSLA(ctx context.Context, userID string, window time.Duration) (int, error)
	CountEcoResolved(ctx context.Context, userID string) (int, error)
	ActivityDates(ctx context.Context, userID string, since time.Time) ([]time.Time, error)
	ListBadges(ctx context.Context) ([]store.Badge, error)
	Leaderboard(ctx context.Context, since time.Time, limit int) ([]store.LeaderboardEntry, error)
}

// Publisher delivers gamification events to a connected user.
type Publisher interface {
	PublishToUser(userID string, event any)
}

// Service computes profiles and pushes score changes to live clients.
type Service struct {
	store  Store
	events Publisher
	now    func() time.Time
}

func NewService(st Store, events Publisher) *Service {
	return &Service{store: st, events: events, now: time.Now}
}

func (s *Service) loadCounts(ctx context.Context, userID string) (Counts, error) {
	var c Counts
	var err error
	if c.Reports, err = s.store.CountReportsByReporter(ctx, userID); err != nil {
		return c, fmt.Errorf("count reports: %w", err)
	}
	if c.Resolved, err = s.store.CountResolvedReportsByReporter(ctx, userID); err != nil {
		return c, fmt.Errorf("count resolved: %w", err)
	}
	if c.UpvotesGiven, err = s.store.CountUpvotesGivenBy(ctx, userID); err != nil {
		return c, fmt.Errorf("count upvotes: %w", err)
	}
	if c.Comments, err = s.store.CountCommentsBy(ctx, userID); err != nil {
		return c, fmt.Errorf("count comments: %w", err)
	}
	if c.WithEvidence, err = s.store.CountReportsWithEvidence(ctx, userID); err != nil {
		return c, fmt.Errorf("count evidence: %w", err)
	}
	if c.WithinSLA, err = s.store.CountResolvedWithinSLA(ctx, userID, SLAWindow); err != nil {
		return c, fmt.Errorf("count sla: %w", err)
	}
	if c.EcoResolved, err = s.store.CountEcoResolved(ctx, userID); err != nil {
		return c, fmt.Errorf("count eco: %w", err)
	}
	return c, nil
}

// Profile assembles the gamification view for one user.
func (s *Service) Profile(ctx context.Context, userID, fullName string) (Profile, error) {
	counts, err := s.loadCounts(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	now := s.now()
	points := Points(counts)
	level := Level(points)

	dates, err := s.store.ActivityDates(ctx, userID, now.AddDate(0, 0, -streakLookback))
	if err != nil {
		return Profile{}, fmt.Errorf("activity dates: %w", err)
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	board, err := s.store.Leaderboard(ctx, monthStart, 10)
	if err != nil {
		return Profile{}, fmt.Errorf("leaderboard: %w", err)
	}

	rank := 0
	preview := make([]LeaderboardEntry, 0, len(board))
	for _, entry := range board {
		if entry.UserID == userID {
			rank = entry.Rank
		}
		preview = append(preview, LeaderboardEntry{Rank: entry.Rank, Name: entry.FullName, Points: entry.Points})
	}

	catalog, err := s.store.ListBadges(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("list badges: %w", err)
	}

	return Profile{
		UserID:      userID,
		Name:        fullName,
		Points:      points,
		Level:       level.Name,
		XPInLevel:   level.XPInLevel,
		XPRequired:  level.XPRequired,
		StreakDays:  Streak(dates, now),
		Rank:        rank,
		Badges:      badgeProgress(catalog, counts, rank),
		Leaderboard: preview,
	}, nil
}

// MonthlyLeaderboard returns the current month's top scorers.
func (s *Service) MonthlyLeaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.store.Leaderboard(ctx, monthStart, limit)
}

// badgeProgress evaluates the user's counts against each badge in the
// catalog. Tiered badges (Verified Reporter, Community Ally) report the
// highest threshold crossed.
func badgeProgress(catalog []store.Badge, c Counts, rank int) []BadgeProgress {
	out := make([]BadgeProgress, 0, len(catalog))
	for _, b := range catalog {
		bp := BadgeProgress{Code: b.Code, Name: b.Name, IconURL: b.IconURL, Tier: 1}
		switch b.Code {
		case "first_report":
			bp.Progress, bp.Goal = c.Reports, 1
		case "verified_reporter":
			bp.Progress = c.Reports
			bp.Goal, bp.Tier, bp.Earned = tiered(c.Reports, 5, 25, 100)
		case "community_ally":
			bp.Progress = c.UpvotesGiven
			bp.Goal, bp.Tier, bp.Earned = tiered(c.UpvotesGiven, 50, 200)
		case "evidence_pro":
			bp.Progress, bp.Goal = c.WithEvidence, 10
		case "impact_under_sla":
			bp.Progress, bp.Goal = c.WithinSLA, 5
		case "eco_warrior":
			bp.Progress, bp.Goal = c.EcoResolved, 10
		case "monthly_top10":
			bp.Goal = 1
			if rank > 0 && rank <= 10 {
				bp.Progress = 1
			}
		default:
			// Unknown badge codes stay visible with zero progress.
			bp.Goal = 1
		}
		if b.Code != "verified_reporter" && b.Code != "community_ally" {
			bp.Earned = bp.Goal > 0 && bp.Progress >= bp.Goal
		}
		out = append(out, bp)
	}
	return out
}

// tiered returns the top threshold as goal, the highest tier crossed,
// and whether the first threshold is met.
func tiered(progress int, thresholds ...int) (goal, tier int, earned bool) {
	goal = thresholds[len(thresholds)-1]
	tier = 1
	for i, th := range thresholds {
		if progress >= th {
			tier = i + 1
			earned = true
		}
	}
	return goal, tier, earned
}

// NewlyUnlocked compares two badge snapshots and returns badges earned
// (or upgraded to a higher tier) in the later one.
func NewlyUnlocked(prev, cur []BadgeProgress) []BadgeProgress {
	had := make(map[string]int, len(prev))
	for _, b := range prev {
		if b.Earned {
			had[b.Code] = b.Tier
		}
	}
	var unlocked []BadgeProgress
	for _, b := range cur {
		if !b.Earned {
			continue
		}
		if tier, ok := had[b.Code]; !ok || b.Tier > tier {
			unlocked = append(unlocked, b)
		}
	}
	return unlocked
}
