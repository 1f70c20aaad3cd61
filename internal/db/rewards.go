package db

import (
	"context"
	"fmt"
	"os"
	"time"

	model "github.com/glkeru/gamification/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RewardsDB stores achievement reference data and unlock rows in Mongo.
// A unique index on (user_id, achievement_id, tier) makes concurrent
// duplicate unlocks lose the race.
type RewardsDB struct {
	mgo     *mongo.Client
	defs    *mongo.Collection
	unlocks *mongo.Collection
}

func NewRewardsDB() (*RewardsDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mng := os.Getenv("REWARDS_MONGO")
	if mng == "" {
		return nil, fmt.Errorf("env REWARDS_MONGO is not set")
	}

	opts := options.Client().ApplyURI("mongodb://" + mng)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, err
	}
	dbase := client.Database("rewardsDB")
	defs := dbase.Collection("definitions")
	unlocks := dbase.Collection("unlocks")

	_, err = unlocks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "achievement_id", Value: 1},
			{Key: "tier", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}

	return &RewardsDB{client, defs, unlocks}, nil
}

func (r *RewardsDB) GetDefinitions(ctx context.Context, category string) ([]model.AchievementDefinition, error) {
	var defs []model.AchievementDefinition
	filter := bson.M{"category": category}
	result, err := r.defs.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("definitions %s: %w: %w", category, model.ErrPersistence, err)
	}

	for result.Next(ctx) {
		var def model.AchievementDefinition
		err := result.Decode(&def)
		if err != nil {
			return nil, fmt.Errorf("definitions %s: %w: %w", category, model.ErrPersistence, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (r *RewardsDB) SaveDefinition(ctx context.Context, def model.AchievementDefinition) error {
	filter := bson.M{"id": def.ID}
	update := bson.M{"$set": def}
	_, err := r.defs.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save definition %s: %w: %w", def.ID, model.ErrPersistence, err)
	}
	return nil
}

func (r *RewardsDB) GetUnlocks(ctx context.Context, userID string, achievementID string) ([]model.UserAchievement, error) {
	var unlocks []model.UserAchievement
	filter := bson.M{"user_id": userID, "achievement_id": achievementID}
	result, err := r.unlocks.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("unlocks %s: %w: %w", userID, model.ErrPersistence, err)
	}

	for result.Next(ctx) {
		var unlock model.UserAchievement
		err := result.Decode(&unlock)
		if err != nil {
			return nil, fmt.Errorf("unlocks %s: %w: %w", userID, model.ErrPersistence, err)
		}
		unlocks = append(unlocks, unlock)
	}
	return unlocks, nil
}

func (r *RewardsDB) InsertUnlock(ctx context.Context, unlock model.UserAchievement) error {
	_, err := r.unlocks.InsertOne(ctx, unlock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("unlock %s %s %s: %w", unlock.UserID, unlock.AchievementID, unlock.Tier, model.ErrDuplicate)
		}
		return fmt.Errorf("insert unlock: %w: %w", model.ErrPersistence, err)
	}
	return nil
}
