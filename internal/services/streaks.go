package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	interf "github.com/glkeru/gamification/internal/interfaces"
	"github.com/glkeru/gamification/internal/lock"
	model "github.com/glkeru/gamification/internal/models"
	"go.uber.org/zap"
)

// StreakTracker maintains consecutive-day activity counters. It is the only
// writer of the streak fields and LastActivityAt.
type StreakTracker struct {
	logger *zap.Logger
	db     interf.LedgerStorage
	bus    Publisher
	locks  *lock.Keyed

	lockWait time.Duration
}

func NewStreakTracker(logger *zap.Logger, db interf.LedgerStorage, bus Publisher, locks *lock.Keyed) *StreakTracker {
	return &StreakTracker{logger: logger, db: db, bus: bus, locks: locks, lockWait: defaultWait}
}

// Handle consumes activity events. Day granularity is UTC: a second event
// on the same day is a no-op, which also absorbs redeliveries.
func (s *StreakTracker) Handle(ctx context.Context, ev model.Event) error {
	var payload model.ActivityPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		s.logger.Error("activity payload decode",
			zap.String("event", ev.ID.String()),
			zap.Error(err),
		)
		return nil
	}
	if payload.UserID == "" {
		return nil
	}

	// same key as the points engine: both writers bump the balance row
	// version, a private key would let a streak write race an award commit
	lctx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	release, err := s.locks.Acquire(lctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("streak %s: %w: %w", payload.UserID, model.ErrLockTimeout, err)
	}
	defer release()

	bal, err := s.db.GetBalance(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("streak %s: %w", payload.UserID, err)
	}

	day := ev.OccurredAt.UTC().Truncate(24 * time.Hour)
	current, changed := nextStreak(bal, day)
	if !changed {
		return nil
	}
	longest := bal.LongestStreak
	if current > longest {
		longest = current
	}

	if err := s.db.UpdateStreak(ctx, payload.UserID, current, longest, day); err != nil {
		return fmt.Errorf("streak %s: %w", payload.UserID, err)
	}

	out, err := model.NewEvent(model.TopicStreak, "streak-tracker", model.StreakUpdatedPayload{
		UserID:        payload.UserID,
		CurrentStreak: current,
		LongestStreak: longest,
		ActivityDay:   day,
	})
	if err == nil {
		err = s.bus.Publish(ctx, out)
	}
	if err != nil {
		s.logger.Error("streak event publish",
			zap.String("user", payload.UserID),
			zap.Error(err),
		)
	}
	return nil
}

func nextStreak(bal model.Balance, day time.Time) (current int, changed bool) {
	if bal.LastActivityAt.IsZero() {
		return 1, true
	}
	last := bal.LastActivityAt.UTC().Truncate(24 * time.Hour)
	days := int(day.Sub(last).Hours() / 24)
	switch {
	case days <= 0:
		// same day or late event
		return bal.CurrentStreak, false
	case days == 1:
		return bal.CurrentStreak + 1, true
	default:
		return 1, true
	}
}
