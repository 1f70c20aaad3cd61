package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	interf "github.com/glkeru/gamification/internal/interfaces"
	"github.com/glkeru/gamification/internal/lock"
	model "github.com/glkeru/gamification/internal/models"
	"go.uber.org/zap"
)

type Unlock struct {
	AchievementID string `json:"achievement_id"`
	Tier          string `json:"tier"`
}

// AchievementEngine evaluates unlock conditions on ledger and activity
// events. Tiers unlock strictly bronze -> silver -> gold, one reward and one
// notification event per tier.
type AchievementEngine struct {
	logger  *zap.Logger
	rewards interf.RewardStorage
	db      interf.LedgerStorage
	points  *PointsEngine
	bus     Publisher
	locks   *lock.Keyed
}

func NewAchievementEngine(logger *zap.Logger, rewards interf.RewardStorage, db interf.LedgerStorage, points *PointsEngine, bus Publisher, locks *lock.Keyed) *AchievementEngine {
	return &AchievementEngine{
		logger:  logger,
		rewards: rewards,
		db:      db,
		points:  points,
		bus:     bus,
		locks:   locks,
	}
}

// Evaluate checks every definition in the trigger's category and unlocks
// tiers whose thresholds are met. Safe to call again with a redelivered
// event: the unique unlock insert makes the duplicate a no-op.
func (a *AchievementEngine) Evaluate(ctx context.Context, userID string, trigger model.Event) ([]Unlock, error) {
	category := triggerCategory(trigger)
	if category == "" {
		return nil, nil
	}

	// dedicated per-user scope, separate from the award lock so reward
	// grants below can take it
	lctx, cancel := context.WithTimeout(ctx, defaultWait)
	defer cancel()
	release, err := a.locks.Acquire(lctx, "achv:"+userID)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w: %w", userID, model.ErrLockTimeout, err)
	}
	defer release()

	defs, err := a.rewards.GetDefinitions(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", userID, err)
	}

	var unlocked []Unlock
	for _, def := range defs {
		progress, err := a.progress(ctx, userID, def)
		if err != nil {
			return unlocked, fmt.Errorf("evaluate %s progress: %w", def.ID, err)
		}

		have, err := a.unlockedTiers(ctx, userID, def.ID)
		if err != nil {
			return unlocked, fmt.Errorf("evaluate %s unlocks: %w", def.ID, err)
		}

		for _, spec := range orderedTiers(def) {
			if have[spec.Tier] {
				continue
			}
			if progress < spec.Threshold {
				// tiers are ordered, later ones cannot be met either
				break
			}
			ok, err := a.unlockTier(ctx, userID, def, spec)
			if err != nil {
				return unlocked, err
			}
			if ok {
				unlocked = append(unlocked, Unlock{AchievementID: def.ID, Tier: spec.Tier})
			}
		}
	}
	return unlocked, nil
}

func (a *AchievementEngine) unlockTier(ctx context.Context, userID string, def model.AchievementDefinition, spec model.TierSpec) (bool, error) {
	err := a.rewards.InsertUnlock(ctx, model.UserAchievement{
		UserID:        userID,
		AchievementID: def.ID,
		Tier:          spec.Tier,
		UnlockedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			// concurrent evaluation got there first
			return false, nil
		}
		return false, fmt.Errorf("unlock %s %s: %w", def.ID, spec.Tier, err)
	}

	// deterministic operation id keeps retried evaluation idempotent
	opID := fmt.Sprintf("achv:%s:%s:%s", userID, def.ID, spec.Tier)
	_, err = a.points.Award(ctx, userID, model.ActionAchievementReward, spec.RewardPoints,
		map[string]any{"achievement_id": def.ID, "tier": spec.Tier}, opID)
	if err != nil {
		return false, fmt.Errorf("unlock %s %s reward: %w", def.ID, spec.Tier, err)
	}

	ev, err := model.NewEvent(model.TopicAchievement, "achievement-engine", model.AchievementUnlockedPayload{
		UserID:        userID,
		AchievementID: def.ID,
		Tier:          spec.Tier,
		RewardPoints:  spec.RewardPoints,
	})
	if err == nil {
		err = a.bus.Publish(ctx, ev)
	}
	if err != nil {
		a.logger.Error("unlock event publish",
			zap.String("user", userID),
			zap.String("achievement", def.ID),
			zap.String("tier", spec.Tier),
			zap.Error(err),
		)
	}
	return true, nil
}

func (a *AchievementEngine) progress(ctx context.Context, userID string, def model.AchievementDefinition) (int64, error) {
	switch def.Metric {
	case model.MetricTotalPoints:
		bal, err := a.db.GetBalance(ctx, userID)
		if err != nil {
			return 0, err
		}
		return bal.TotalPoints, nil
	case model.MetricActionCount:
		return a.db.CountTransactions(ctx, userID, def.Action)
	default:
		return 0, fmt.Errorf("definition %s metric %q: %w", def.ID, def.Metric, model.ErrValidation)
	}
}

func (a *AchievementEngine) unlockedTiers(ctx context.Context, userID, achievementID string) (map[string]bool, error) {
	unlocks, err := a.rewards.GetUnlocks(ctx, userID, achievementID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(unlocks))
	for _, u := range unlocks {
		have[u.Tier] = true
	}
	return have, nil
}

// Handle is the bus subscriber entry point
func (a *AchievementEngine) Handle(ctx context.Context, ev model.Event) error {
	userID := eventUserID(ev)
	if userID == "" {
		a.logger.Warn("trigger without user", zap.String("event", ev.ID.String()))
		return nil
	}
	_, err := a.Evaluate(ctx, userID, ev)
	return err
}

func orderedTiers(def model.AchievementDefinition) []model.TierSpec {
	tiers := make([]model.TierSpec, len(def.Tiers))
	copy(tiers, def.Tiers)
	sort.Slice(tiers, func(i, j int) bool {
		return tierIndex(tiers[i].Tier) < tierIndex(tiers[j].Tier)
	})
	return tiers
}

func tierIndex(tier string) int {
	for i, t := range model.TierOrder {
		if t == tier {
			return i
		}
	}
	return len(model.TierOrder)
}

func triggerCategory(ev model.Event) string {
	switch ev.Type {
	case model.TopicPointsAward:
		var p model.PointsAwardedPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			return p.ActionType
		}
	case model.TopicActivity, model.TopicAchievementT:
		var p model.ActivityPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			return p.ActionType
		}
	}
	return ""
}

func eventUserID(ev model.Event) string {
	var p struct {
		UserID string `json:"user_id"`
	}
	if json.Unmarshal(ev.Payload, &p) == nil {
		return p.UserID
	}
	return ""
}
