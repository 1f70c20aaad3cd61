package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	model "github.com/glkeru/gamification/internal/models"
	redis "github.com/redis/go-redis/v9"
)

// RankCacheService keeps computed rankings in redis with a TTL staleness
// bound. A missing or expired key reads as stale, the leaderboard service
// rebuilds lazily.
type RankCacheService struct {
	client *redis.Client
}

func NewRankCacheService() (serv *RankCacheService, err error) {

	// config
	addr := os.Getenv("RANK_CACHE_URL")
	if addr == "" {
		return nil, fmt.Errorf("env RANK_CACHE_URL is not set")
	}
	user := os.Getenv("RANK_CACHE_USER")
	pwd := os.Getenv("RANK_CACHE_PWD")

	// redis
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    pwd,
		Username:    user,
		DB:          0,
		MaxRetries:  5,
		DialTimeout: 10 * time.Second,
	})
	err = client.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}

	return &RankCacheService{client}, nil
}

func rankKey(category, timeframe string) string {
	return "rank:" + category + ":" + timeframe
}

func (c *RankCacheService) Get(ctx context.Context, category, timeframe string) ([]model.Score, bool, error) {
	val, err := c.client.Get(ctx, rankKey(category, timeframe)).Result()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("rank cache get: %w", err)
	}

	var ranked []model.Score
	err = json.Unmarshal([]byte(val), &ranked)
	if err != nil {
		return nil, false, fmt.Errorf("rank cache decode: %w", err)
	}
	return ranked, true, nil
}

func (c *RankCacheService) Set(ctx context.Context, category, timeframe string, ranked []model.Score, ttl time.Duration) error {
	body, err := json.Marshal(ranked)
	if err != nil {
		return err
	}
	err = c.client.Set(ctx, rankKey(category, timeframe), body, ttl).Err()
	if err != nil {
		return fmt.Errorf("rank cache set: %w", err)
	}
	return nil
}

func (c *RankCacheService) Invalidate(ctx context.Context, category, timeframe string) error {
	err := c.client.Del(ctx, rankKey(category, timeframe)).Err()
	if err != nil {
		return fmt.Errorf("rank cache invalidate: %w", err)
	}
	return nil
}
