package models

import "time"

// Wire payloads for produced and consumed events

type ActivityPayload struct {
	UserID     string         `json:"user_id"`
	ActionType string         `json:"action_type"`
	Amount     int64          `json:"amount"`
	Context    map[string]any `json:"context,omitempty"`
}

type PointsAwardedPayload struct {
	UserID        string `json:"user_id"`
	ActionType    string `json:"action_type"`
	FinalAmount   int64  `json:"final_amount"`
	NewTotal      int64  `json:"new_total"`
	TransactionID string `json:"transaction_id"`
}

type AchievementUnlockedPayload struct {
	UserID        string `json:"user_id"`
	AchievementID string `json:"achievement_id"`
	Tier          string `json:"tier"`
	RewardPoints  int64  `json:"reward_points"`
}

type StreakUpdatedPayload struct {
	UserID        string    `json:"user_id"`
	CurrentStreak int       `json:"current_streak"`
	LongestStreak int       `json:"longest_streak"`
	ActivityDay   time.Time `json:"activity_day"`
}

type LeaderboardInvalidatedPayload struct {
	Category   string   `json:"category"`
	Timeframes []string `json:"timeframes"`
}
