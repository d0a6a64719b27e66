package gamification

import (
	"context"
	"log"
)

// Event payloads pushed over the gamification stream. Every payload
// carries a "type" discriminator so clients can dispatch on it.

type PointsUpdate struct {
	Type  string `json:"type"`
	Delta int    `json:"delta"`
	Total int    `json:"total"`
	Level string `json:"level"`
}

type BadgeUnlocked struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Badge       string `json:"badge"`
	PointsAdded int    `json:"points_added"`
}

type StreakUpdate struct {
	Type       string `json:"type"`
	StreakDays int    `json:"streak_days"`
}

type LeaderboardUpdate struct {
	Type    string             `json:"type"`
	Entries []LeaderboardEntry `json:"leaderboard"`
}

// LeaderboardEntry mirrors the store row with wire-friendly field names.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// badgeLabel renders a display label for an unlocked badge, appending
// a roman numeral for multi-tier badges.
func badgeLabel(b BadgeProgress) string {
	romans := []string{"", " I", " II", " III"}
	if b.Tier > 1 && b.Tier < len(romans) {
		return b.Name + romans[b.Tier]
	}
	return b.Name
}

// PushUpdates recomputes the user's profile after an activity and
// publishes the resulting score changes. prev is the profile captured
// before the activity; delivery failures are logged, never fatal.
func (s *Service) PushUpdates(ctx context.Context, userID string, prev Profile) {
	if s.events == nil {
		return
	}

	cur, err := s.Profile(ctx, userID, prev.Name)
	if err != nil {
		log.Printf("gamification: recompute profile for %s: %v", userID, err)
		return
	}

	if cur.Points != prev.Points {
		s.events.PublishToUser(userID, PointsUpdate{
			Type:  "points_update",
			Delta: cur.Points - prev.Points,
			Total: cur.Points,
			Level: cur.Level,
		})
	}

	for _, b := range NewlyUnlocked(prev.Badges, cur.Badges) {
		s.events.PublishToUser(userID, BadgeUnlocked{
			Type:        "badge_unlocked",
			Code:        b.Code,
			Badge:       badgeLabel(b),
			PointsAdded: cur.Points - prev.Points,
		})
	}

	if cur.StreakDays != prev.StreakDays {
		s.events.PublishToUser(userID, StreakUpdate{
			Type:       "streak_update",
			StreakDays: cur.StreakDays,
		})
	}

	if cur.Rank != prev.Rank {
		s.events.PublishToUser(userID, LeaderboardUpdate{
			Type:    "leaderboard_update",
			Entries: cur.Leaderboard,
		})
	}
}
