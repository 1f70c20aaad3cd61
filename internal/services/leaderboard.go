package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	interf "github.com/glkeru/gamification/internal/interfaces"
	model "github.com/glkeru/gamification/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const rankTTL = 5 * time.Minute

// LeaderboardService serves cached rankings rebuilt from the ledger. The
// cache is never the source of truth: a stale or missing entry triggers a
// lazy rebuild on the next read.
type LeaderboardService struct {
	logger *zap.Logger
	db     interf.LedgerStorage
	cache  interf.RankCache
	bus    Publisher
	ttl    time.Duration
	now    func() time.Time
}

func NewLeaderboardService(logger *zap.Logger, db interf.LedgerStorage, cache interf.RankCache, bus Publisher) *LeaderboardService {
	return &LeaderboardService{
		logger: logger,
		db:     db,
		cache:  cache,
		bus:    bus,
		ttl:    rankTTL,
		now:    time.Now,
	}
}

// Top returns the public Top-N. Opted-out users are filtered from the
// ranking before positions are assigned.
func (l *LeaderboardService) Top(ctx context.Context, category, timeframe string, limit int) ([]model.LeaderboardEntry, error) {
	ranked, err := l.ranked(ctx, category, timeframe)
	if err != nil {
		return nil, err
	}

	entries := make([]model.LeaderboardEntry, 0, limit)
	rank := int64(0)
	for _, s := range ranked {
		if s.OptOut {
			continue
		}
		rank++
		entries = append(entries, model.LeaderboardEntry{
			Category:  category,
			Timeframe: timeframe,
			Rank:      rank,
			UserID:    s.UserID,
			Score:     s.Score,
		})
		if len(entries) == limit {
			break
		}
	}
	return entries, nil
}

// UserRank is the private rank over the full population, opted-out users
// included.
func (l *LeaderboardService) UserRank(ctx context.Context, userID, category, timeframe string) (*model.LeaderboardEntry, error) {
	ranked, err := l.ranked(ctx, category, timeframe)
	if err != nil {
		return nil, err
	}
	for i, s := range ranked {
		if s.UserID == userID {
			return &model.LeaderboardEntry{
				Category:  category,
				Timeframe: timeframe,
				Rank:      int64(i + 1),
				UserID:    s.UserID,
				Score:     s.Score,
			}, nil
		}
	}
	return nil, fmt.Errorf("rank %s in %s/%s: %w", userID, category, timeframe, model.ErrNotFound)
}

// HandlePointsAwarded marks the affected rankings stale, recomputation is
// deferred to the next read or background refresh.
func (l *LeaderboardService) HandlePointsAwarded(ctx context.Context, ev model.Event) error {
	var payload model.PointsAwardedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		l.logger.Error("awarded payload decode",
			zap.String("event", ev.ID.String()),
			zap.Error(err),
		)
		return nil
	}

	for _, category := range []string{model.CategoryOverall, payload.ActionType} {
		for _, timeframe := range model.Timeframes {
			if err := l.cache.Invalidate(ctx, category, timeframe); err != nil {
				return fmt.Errorf("invalidate %s/%s: %w", category, timeframe, err)
			}
		}
		out, err := model.NewEvent(model.TopicLeaderboard, "leaderboard", model.LeaderboardInvalidatedPayload{
			Category:   category,
			Timeframes: model.Timeframes,
		})
		if err == nil {
			err = l.bus.Publish(ctx, out)
		}
		if err != nil {
			l.logger.Error("invalidated event publish",
				zap.String("category", category),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Refresh rebuilds the given categories across all timeframes, used by the
// background refresher so hot boards never go stale on the read path.
func (l *LeaderboardService) Refresh(ctx context.Context, categories []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, category := range categories {
		for _, timeframe := range model.Timeframes {
			category, timeframe := category, timeframe
			g.Go(func() error {
				_, err := l.rebuild(gctx, category, timeframe)
				return err
			})
		}
	}
	return g.Wait()
}

func (l *LeaderboardService) ranked(ctx context.Context, category, timeframe string) ([]model.Score, error) {
	ranked, ok, err := l.cache.Get(ctx, category, timeframe)
	if err != nil {
		l.logger.Error("rank cache read",
			zap.String("category", category),
			zap.String("timeframe", timeframe),
			zap.Error(err),
		)
	}
	if ok {
		return ranked, nil
	}
	return l.rebuild(ctx, category, timeframe)
}

func (l *LeaderboardService) rebuild(ctx context.Context, category, timeframe string) ([]model.Score, error) {
	since, err := l.sinceFor(timeframe)
	if err != nil {
		return nil, err
	}
	scores, err := l.db.Scores(ctx, category, since)
	if err != nil {
		return nil, fmt.Errorf("rebuild %s/%s: %w", category, timeframe, err)
	}

	// equal scores rank by earliest time the score was reached
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if !scores[i].ReachedAt.Equal(scores[j].ReachedAt) {
			return scores[i].ReachedAt.Before(scores[j].ReachedAt)
		}
		return scores[i].UserID < scores[j].UserID
	})

	if err := l.cache.Set(ctx, category, timeframe, scores, l.ttl); err != nil {
		l.logger.Error("rank cache write",
			zap.String("category", category),
			zap.String("timeframe", timeframe),
			zap.Error(err),
		)
	}
	return scores, nil
}

func (l *LeaderboardService) sinceFor(timeframe string) (time.Time, error) {
	now := l.now().UTC()
	switch timeframe {
	case model.TimeframeDaily:
		return now.Truncate(24 * time.Hour), nil
	case model.TimeframeWeekly:
		return now.Truncate(24 * time.Hour).AddDate(0, 0, -6), nil
	case model.TimeframeMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	case model.TimeframeAllTime:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("timeframe %q: %w", timeframe, model.ErrValidation)
	}
}
