package interfaces

import (
	"context"
	"time"

	model "github.com/glkeru/gamification/internal/models"
)

//go:generate mockgen -destination=./../services/mock_storage_test.go -package=services . LedgerStorage,RewardStorage

// LedgerStorage keeps balances and the append-only transaction log.
// Commit must persist the balance update and the transaction append as one
// durable unit, both succeed or both fail.
type LedgerStorage interface {
	// GetBalance creates a zero-state record on first access
	GetBalance(ctx context.Context, userID string) (model.Balance, error)
	Commit(ctx context.Context, balance model.Balance, tnx model.Transaction) error
	GetByOperation(ctx context.Context, operationID string) (model.Transaction, error)
	ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]model.Transaction, error)
	CountTransactions(ctx context.Context, userID string, actionType string) (int64, error)
	UpdateStreak(ctx context.Context, userID string, current, longest int, at time.Time) error
	// Scores aggregates point deltas per user since the given time,
	// category is overall or an action type
	Scores(ctx context.Context, category string, since time.Time) ([]model.Score, error)
	Ping(ctx context.Context) error
}

// RewardStorage holds achievement reference data and unlocks.
type RewardStorage interface {
	GetDefinitions(ctx context.Context, category string) ([]model.AchievementDefinition, error)
	GetUnlocks(ctx context.Context, userID string, achievementID string) ([]model.UserAchievement, error)
	// InsertUnlock returns model.ErrDuplicate when the (user, achievement, tier)
	// row already exists
	InsertUnlock(ctx context.Context, unlock model.UserAchievement) error
}

// RankCache caches computed rankings per (category, timeframe).
type RankCache interface {
	// Get returns false when the entry is missing or stale
	Get(ctx context.Context, category, timeframe string) ([]model.Score, bool, error)
	Set(ctx context.Context, category, timeframe string, ranked []model.Score, ttl time.Duration) error
	Invalidate(ctx context.Context, category, timeframe string) error
}
