package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Topics
const (
	TopicActivity     = "activity.recorded"
	TopicPointsAward  = "points.awarded"
	TopicAchievement  = "achievement.unlocked"
	TopicStreak       = "streak.updated"
	TopicLeaderboard  = "leaderboard.invalidated"
	TopicAchievementT = "achievement.trigger"
)

// Event envelope, immutable once published
type Event struct {
	ID            uuid.UUID       `json:"event_id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	SourceID      string          `json:"source_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	SchemaVersion int             `json:"schema_version"`
}

func NewEvent(eventType string, source string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            uuid.New(),
		Type:          eventType,
		Payload:       body,
		SourceID:      source,
		OccurredAt:    time.Now().UTC(),
		SchemaVersion: 1,
	}, nil
}

// Points balance
// Version grows on every commit, used for conflict detection in the store
type Balance struct {
	UserID          string
	TotalPoints     int64
	AvailablePoints int64
	CurrentStreak   int
	LongestStreak   int
	Multiplier      float64 // personal base multiplier, 1.0 by default
	VIP             bool
	OptOut          bool // excluded from public rankings
	LastActivityAt  time.Time
	Version         int64
}

// Transaction types
const (
	ActionAdminAdjustment   = "admin_adjustment"
	ActionAchievementReward = "achievement_reward"
)

// Append-only ledger entry
type Transaction struct {
	ID             uuid.UUID
	UserID         string
	ActionType     string
	PointsDelta    int64
	BalanceAfter   int64
	AvailableAfter int64
	OperationID    string // caller-supplied dedup key, unique
	Context        map[string]any
	CreatedAt      time.Time
}

// Achievement tiers, strictly ordered
const (
	TierBronze = "bronze"
	TierSilver = "silver"
	TierGold   = "gold"
)

var TierOrder = []string{TierBronze, TierSilver, TierGold}

// Progress metrics for achievement conditions
const (
	MetricTotalPoints = "total_points"
	MetricActionCount = "action_count"
)

type TierSpec struct {
	Tier         string `bson:"tier" json:"tier"`
	Threshold    int64  `bson:"threshold" json:"threshold"`
	RewardPoints int64  `bson:"reward_points" json:"reward_points"`
}

// Reference data, immutable
type AchievementDefinition struct {
	ID       string     `bson:"id" json:"id"`
	Name     string     `bson:"name" json:"name"`
	Category string     `bson:"category" json:"category"`
	Metric   string     `bson:"metric" json:"metric"`
	Action   string     `bson:"action" json:"action"` // for action_count metric
	Tiers    []TierSpec `bson:"tiers" json:"tiers"`
	IsSecret bool       `bson:"is_secret" json:"is_secret"`
}

type UserAchievement struct {
	UserID        string    `bson:"user_id" json:"user_id"`
	AchievementID string    `bson:"achievement_id" json:"achievement_id"`
	Tier          string    `bson:"tier" json:"tier"`
	UnlockedAt    time.Time `bson:"unlocked_at" json:"unlocked_at"`
}

// Leaderboard timeframes
const (
	TimeframeDaily   = "daily"
	TimeframeWeekly  = "weekly"
	TimeframeMonthly = "monthly"
	TimeframeAllTime = "alltime"
)

var Timeframes = []string{TimeframeDaily, TimeframeWeekly, TimeframeMonthly, TimeframeAllTime}

// Overall leaderboard category, action types form the rest
const CategoryOverall = "overall"

// Derived, never a source of truth
type LeaderboardEntry struct {
	Category  string `json:"category"`
	Timeframe string `json:"timeframe"`
	Rank      int64  `json:"rank"`
	UserID    string `json:"user_id"`
	Score     int64  `json:"score"`
}

// Per-user aggregate used to rebuild rankings
type Score struct {
	UserID    string
	Score     int64
	ReachedAt time.Time // when the score was last reached, breaks ties
	OptOut    bool
}
