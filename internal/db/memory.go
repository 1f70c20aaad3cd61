package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	model "github.com/glkeru/gamification/internal/models"
)

// In-memory stores for tests and local runs. Same atomicity contract as the
// Postgres implementation: Commit applies the balance update and the
// transaction append under one lock.

type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]model.Balance
	log      []model.Transaction
	byOp     map[string]model.Transaction
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]model.Balance),
		byOp:     make(map[string]model.Transaction),
	}
}

// SeedBalance overwrites a balance record, for tests and local seeding
func (m *MemoryLedger) SeedBalance(bal model.Balance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[bal.UserID] = bal
}

func (m *MemoryLedger) GetBalance(ctx context.Context, userID string) (model.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		bal = model.Balance{UserID: userID, Multiplier: 1}
		m.balances[userID] = bal
	}
	return bal, nil
}

func (m *MemoryLedger) Commit(ctx context.Context, balance model.Balance, tnx model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byOp[tnx.OperationID]; ok {
		return fmt.Errorf("operation %s: %w", tnx.OperationID, model.ErrDuplicate)
	}
	prev := m.balances[balance.UserID]
	if prev.UserID != "" && balance.Version != prev.Version+1 {
		return fmt.Errorf("balance %s version %d: %w", balance.UserID, balance.Version, model.ErrPersistence)
	}
	m.balances[balance.UserID] = balance
	m.log = append(m.log, tnx)
	m.byOp[tnx.OperationID] = tnx
	return nil
}

func (m *MemoryLedger) GetByOperation(ctx context.Context, operationID string) (model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tnx, ok := m.byOp[operationID]
	if !ok {
		return model.Transaction{}, fmt.Errorf("operation %s: %w", operationID, model.ErrNotFound)
	}
	return tnx, nil
}

func (m *MemoryLedger) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tnxs []model.Transaction
	for _, tnx := range m.log {
		if tnx.UserID != userID {
			continue
		}
		if tnx.CreatedAt.Before(from) || tnx.CreatedAt.After(to) {
			continue
		}
		tnxs = append(tnxs, tnx)
	}
	return tnxs, nil
}

func (m *MemoryLedger) CountTransactions(ctx context.Context, userID string, actionType string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, tnx := range m.log {
		if tnx.UserID == userID && tnx.ActionType == actionType {
			count++
		}
	}
	return count, nil
}

func (m *MemoryLedger) UpdateStreak(ctx context.Context, userID string, current, longest int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		bal = model.Balance{UserID: userID, Multiplier: 1}
	}
	bal.CurrentStreak = current
	bal.LongestStreak = longest
	bal.LastActivityAt = at
	bal.Version++
	m.balances[userID] = bal
	return nil
}

func (m *MemoryLedger) Scores(ctx context.Context, category string, since time.Time) ([]model.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := make(map[string]*model.Score)
	for _, tnx := range m.log {
		if category != model.CategoryOverall && tnx.ActionType != category {
			continue
		}
		if tnx.CreatedAt.Before(since) {
			continue
		}
		s, ok := sums[tnx.UserID]
		if !ok {
			s = &model.Score{UserID: tnx.UserID, OptOut: m.balances[tnx.UserID].OptOut}
			sums[tnx.UserID] = s
		}
		s.Score += tnx.PointsDelta
		if tnx.CreatedAt.After(s.ReachedAt) {
			s.ReachedAt = tnx.CreatedAt
		}
	}
	scores := make([]model.Score, 0, len(sums))
	for _, s := range sums {
		scores = append(scores, *s)
	}
	return scores, nil
}

func (m *MemoryLedger) Ping(ctx context.Context) error {
	return nil
}

type MemoryRewards struct {
	mu      sync.Mutex
	defs    []model.AchievementDefinition
	unlocks map[string]model.UserAchievement // userID|achievementID|tier
}

func NewMemoryRewards(defs []model.AchievementDefinition) *MemoryRewards {
	return &MemoryRewards{
		defs:    defs,
		unlocks: make(map[string]model.UserAchievement),
	}
}

func (m *MemoryRewards) GetDefinitions(ctx context.Context, category string) ([]model.AchievementDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var defs []model.AchievementDefinition
	for _, d := range m.defs {
		if d.Category == category {
			defs = append(defs, d)
		}
	}
	return defs, nil
}

func (m *MemoryRewards) GetUnlocks(ctx context.Context, userID string, achievementID string) ([]model.UserAchievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var unlocks []model.UserAchievement
	for _, u := range m.unlocks {
		if u.UserID == userID && u.AchievementID == achievementID {
			unlocks = append(unlocks, u)
		}
	}
	return unlocks, nil
}

func (m *MemoryRewards) InsertUnlock(ctx context.Context, unlock model.UserAchievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := unlock.UserID + "|" + unlock.AchievementID + "|" + unlock.Tier
	if _, ok := m.unlocks[key]; ok {
		return fmt.Errorf("unlock %s: %w", key, model.ErrDuplicate)
	}
	m.unlocks[key] = unlock
	return nil
}

type rankEntry struct {
	ranked   []model.Score
	storedAt time.Time
	ttl      time.Duration
}

type MemoryRankCache struct {
	mu      sync.Mutex
	entries map[string]rankEntry
}

func NewMemoryRankCache() *MemoryRankCache {
	return &MemoryRankCache{entries: make(map[string]rankEntry)}
}

func (m *MemoryRankCache) Get(ctx context.Context, category, timeframe string) ([]model.Score, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[category+"|"+timeframe]
	if !ok || time.Since(e.storedAt) > e.ttl {
		return nil, false, nil
	}
	return e.ranked, true, nil
}

func (m *MemoryRankCache) Set(ctx context.Context, category, timeframe string, ranked []model.Score, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[category+"|"+timeframe] = rankEntry{ranked: ranked, storedAt: time.Now(), ttl: ttl}
	return nil
}

func (m *MemoryRankCache) Invalidate(ctx context.Context, category, timeframe string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, category+"|"+timeframe)
	return nil
}
