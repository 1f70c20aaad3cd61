package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	interf "github.com/glkeru/gamification/internal/interfaces"
	"github.com/glkeru/gamification/internal/lock"
	model "github.com/glkeru/gamification/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher is the bus surface the engines need.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

const (
	vipMultiplier = 1.5
	defaultWait   = 5 * time.Second

	abuseWindow = time.Minute
	abuseLimit  = 30
)

type Result struct {
	NewTotal      int64     `json:"new_total"`
	NewAvailable  int64     `json:"new_available"`
	TransactionID uuid.UUID `json:"transaction_id"`
}

// PointsEngine applies point deltas to the ledger. Operations for one user
// are serialized through the keyed lock, different users proceed in
// parallel.
type PointsEngine struct {
	logger *zap.Logger
	db     interf.LedgerStorage
	bus    Publisher
	locks  *lock.Keyed
	guard  *abuseGuard

	mu         sync.RWMutex
	eventBonus float64 // active-event multiplier, 1.0 when no event runs

	lockWait time.Duration
}

func NewPointsEngine(logger *zap.Logger, db interf.LedgerStorage, bus Publisher, locks *lock.Keyed) *PointsEngine {
	return &PointsEngine{
		logger:     logger,
		db:         db,
		bus:        bus,
		locks:      locks,
		guard:      newAbuseGuard(abuseWindow, abuseLimit),
		eventBonus: 1,
		lockWait:   defaultWait,
	}
}

// SetEventBonus sets the active-event multiplier for subsequent awards
func (p *PointsEngine) SetEventBonus(m float64) {
	p.mu.Lock()
	p.eventBonus = m
	p.mu.Unlock()
}

func (p *PointsEngine) currentEventBonus() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.eventBonus
}

// Award applies one point delta. Repeated calls with the same operationID
// return the original result without touching the ledger again.
func (p *PointsEngine) Award(ctx context.Context, userID, actionType string, baseAmount int64, awardCtx map[string]any, operationID string) (Result, error) {
	if userID == "" || actionType == "" || operationID == "" {
		return Result{}, fmt.Errorf("award: userID, actionType and operationID are required: %w", model.ErrValidation)
	}

	lctx, cancel := context.WithTimeout(ctx, p.lockWait)
	defer cancel()
	release, err := p.locks.Acquire(lctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("award %s for %s: %w: %w", actionType, userID, model.ErrLockTimeout, err)
	}
	defer release()

	// idempotent retry, returned before the rate window so a redelivered
	// operation never counts as a fresh call
	if prev, err := p.db.GetByOperation(ctx, operationID); err == nil {
		return Result{NewTotal: prev.BalanceAfter, NewAvailable: prev.AvailableAfter, TransactionID: prev.ID}, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return Result{}, fmt.Errorf("award dedup lookup: %w", err)
	}

	pol := policyFor(actionType)
	if !pol.trusted && !p.guard.allow(userID, time.Now()) {
		p.logger.Warn("award rate exceeded",
			zap.String("user", userID),
			zap.String("action", actionType),
		)
		return Result{}, fmt.Errorf("award %s for %s: %w", actionType, userID, model.ErrAbuseDetected)
	}

	bal, err := p.db.GetBalance(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("award balance lookup: %w", err)
	}

	// VIP -> event -> streak, multiplicative, rounded once
	multiplier := p.composeMultiplier(bal)
	finalAmount := int64(math.Round(float64(baseAmount) * multiplier))

	if finalAmount == 0 && !pol.allowZero {
		return Result{}, fmt.Errorf("award %s for %s: zero amount: %w", actionType, userID, model.ErrValidation)
	}
	if finalAmount < 0 && bal.TotalPoints+finalAmount < 0 && !pol.allowNegativeTotal {
		return Result{}, fmt.Errorf("award %s for %s: balance would go negative: %w", actionType, userID, model.ErrValidation)
	}

	// balance first, balanceAfter reads the updated state
	bal.TotalPoints += finalAmount
	bal.AvailablePoints += finalAmount
	bal.Multiplier = multiplier
	bal.Version++

	tnx := model.Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		ActionType:     actionType,
		PointsDelta:    finalAmount,
		BalanceAfter:   bal.TotalPoints,
		AvailableAfter: bal.AvailablePoints,
		OperationID:    operationID,
		Context:        awardCtx,
		CreatedAt:      time.Now().UTC(),
	}

	err = p.db.Commit(ctx, bal, tnx)
	if err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			// lost the dedup race, the stored row is the answer
			prev, derr := p.db.GetByOperation(ctx, operationID)
			if derr != nil {
				return Result{}, fmt.Errorf("award dedup lookup: %w", derr)
			}
			return Result{NewTotal: prev.BalanceAfter, NewAvailable: prev.AvailableAfter, TransactionID: prev.ID}, nil
		}
		return Result{}, fmt.Errorf("award commit: %w", err)
	}

	p.publishAwarded(ctx, userID, actionType, finalAmount, bal.TotalPoints, tnx.ID)
	return Result{NewTotal: bal.TotalPoints, NewAvailable: bal.AvailablePoints, TransactionID: tnx.ID}, nil
}

func (p *PointsEngine) composeMultiplier(bal model.Balance) float64 {
	m := 1.0
	if bal.VIP {
		m *= vipMultiplier
	}
	m *= p.currentEventBonus()
	m *= streakMultiplier(bal.CurrentStreak)
	return m
}

// 10% per full week of streak, capped at +50%
func streakMultiplier(streak int) float64 {
	weeks := streak / 7
	if weeks > 5 {
		weeks = 5
	}
	return 1 + 0.1*float64(weeks)
}

// publish after commit, a lost event never rolls back the ledger
func (p *PointsEngine) publishAwarded(ctx context.Context, userID, actionType string, finalAmount, newTotal int64, tnxID uuid.UUID) {
	ev, err := model.NewEvent(model.TopicPointsAward, "points-engine", model.PointsAwardedPayload{
		UserID:        userID,
		ActionType:    actionType,
		FinalAmount:   finalAmount,
		NewTotal:      newTotal,
		TransactionID: tnxID.String(),
	})
	if err != nil {
		p.logger.Error("awarded event encode", zap.Error(err))
		return
	}
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.logger.Error("awarded event publish",
			zap.String("user", userID),
			zap.String("transaction", tnxID.String()),
			zap.Error(err),
		)
	}
}

// ListTransactions exposes the audit trail
func (p *PointsEngine) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]model.Transaction, error) {
	return p.db.ListTransactions(ctx, userID, from, to)
}

func (p *PointsEngine) GetBalance(ctx context.Context, userID string) (model.Balance, error) {
	return p.db.GetBalance(ctx, userID)
}

// Handle consumes activity events from the bus. Permanent rejections are
// logged and acked, transient failures bubble up so the bus retries.
func (p *PointsEngine) Handle(ctx context.Context, ev model.Event) error {
	var payload model.ActivityPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		p.logger.Error("activity payload decode",
			zap.String("event", ev.ID.String()),
			zap.Error(err),
		)
		return nil
	}
	// event id keys dedup, redelivery is a no-op
	_, err := p.Award(ctx, payload.UserID, payload.ActionType, payload.Amount, payload.Context, "evt:"+ev.ID.String())
	if err != nil {
		if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrAbuseDetected) {
			p.logger.Warn("activity rejected",
				zap.String("event", ev.ID.String()),
				zap.String("user", payload.UserID),
				zap.Error(err),
			)
			return nil
		}
		return err
	}
	return nil
}

// abuseGuard keeps a sliding window of award calls per user. Entries are
// pruned as they age out so the map does not grow with inactive users.
type abuseGuard struct {
	mu        sync.Mutex
	window    time.Duration
	limit     int
	calls     map[string][]time.Time
	lastSweep time.Time
}

func newAbuseGuard(window time.Duration, limit int) *abuseGuard {
	return &abuseGuard{
		window: window,
		limit:  limit,
		calls:  make(map[string][]time.Time),
	}
}

func (g *abuseGuard) allow(userID string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Sub(g.lastSweep) > g.window {
		g.sweep(now)
		g.lastSweep = now
	}

	recent := g.calls[userID][:0]
	for _, t := range g.calls[userID] {
		if now.Sub(t) < g.window {
			recent = append(recent, t)
		}
	}
	if len(recent) >= g.limit {
		g.calls[userID] = recent
		return false
	}
	g.calls[userID] = append(recent, now)
	return true
}

// drop users whose whole window aged out
func (g *abuseGuard) sweep(now time.Time) {
	for user, calls := range g.calls {
		live := false
		for _, t := range calls {
			if now.Sub(t) < g.window {
				live = true
				break
			}
		}
		if !live {
			delete(g.calls, user)
		}
	}
}
