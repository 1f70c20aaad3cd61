// Worker - runs the event pipeline: kafka activity ingress, points engine,
// achievement engine, streak tracker and leaderboard maintenance
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	buspkg "github.com/glkeru/gamification/internal/bus"
	db "github.com/glkeru/gamification/internal/db"
	kafka "github.com/glkeru/gamification/internal/external/kafka"
	rabbit "github.com/glkeru/gamification/internal/external/rabbitmq"
	interf "github.com/glkeru/gamification/internal/interfaces"
	"github.com/glkeru/gamification/internal/lock"
	model "github.com/glkeru/gamification/internal/models"
	serv "github.com/glkeru/gamification/internal/services"
	otelinit "github.com/glkeru/gamification/observability/otel"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// tracing
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		shutdown := otelinit.InitTracer(context.Background(), "gamification-worker")
		defer shutdown()
	}

	// database
	var ledger interf.LedgerStorage
	dt, err := db.NewLedgerDB(logger)
	if err != nil {
		panic(err)
	}
	ledger = dt

	var rewards interf.RewardStorage
	rw, err := db.NewRewardsDB()
	if err != nil {
		panic(err)
	}
	rewards = rw

	// cache
	var cache interf.RankCache
	cache, err = db.NewRankCacheService()
	if err != nil {
		logger.Error(err.Error())
		cache = db.NewMemoryRankCache()
	}

	// dead letters
	var opts []buspkg.Option
	sink, err := rabbit.NewDeadLetterPublisher()
	if err != nil {
		logger.Error(err.Error())
	} else {
		defer sink.Close()
		opts = append(opts, buspkg.WithDeadLetterSink(sink))
	}

	// services
	bus := buspkg.New(logger, opts...)
	locks := lock.NewKeyed()
	points := serv.NewPointsEngine(logger, ledger, bus, locks)
	achievements := serv.NewAchievementEngine(logger, rewards, ledger, points, bus, locks)
	streaks := serv.NewStreakTracker(logger, ledger, bus, locks)
	leaderboard := serv.NewLeaderboardService(logger, ledger, cache, bus)

	subscribe(bus, model.TopicActivity, "points-engine", points.Handle)
	subscribe(bus, model.TopicActivity, "streak-tracker", streaks.Handle)
	subscribe(bus, model.TopicActivity, "achievement-engine-activity", achievements.Handle)
	subscribe(bus, model.TopicAchievementT, "achievement-engine-trigger", achievements.Handle)
	subscribe(bus, model.TopicPointsAward, "achievement-engine", achievements.Handle)
	subscribe(bus, model.TopicPointsAward, "leaderboard", leaderboard.HandlePointsAwarded)

	// start
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// background leaderboard refresh
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := leaderboard.Refresh(ctx, []string{model.CategoryOverall}); err != nil {
					logger.Error("leaderboard refresh", zap.Error(err))
				}
			}
		}
	}()

	// kafka
	reader, err := kafka.NewActivityReader("activity")
	if err != nil {
		panic(err)
	}
	defer reader.CloseReader()

	var semcount int
	semenv := os.Getenv("ACTIVITY_WORKER_COUNT")
	if semenv == "" {
		semcount = 5
	} else {
		semcount, err = strconv.Atoi(semenv)
		if err != nil {
			semcount = 5
		}
	}
	if semcount == 0 {
		semcount = 1
	}

	wg := &sync.WaitGroup{}
	semaphore := make(chan struct{}, semcount)

	go func() {
		<-interrupt
		cancel()
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		default:
			ev, err := reader.GetNewEvent(ctx)
			if err != nil {
				if ctx.Err() != nil {
					break loop
				}
				logger.Error(err.Error())
				continue
			}

			semaphore <- struct{}{}
			wg.Add(1)
			go func(ev model.Event) {
				defer wg.Done()
				defer func() { <-semaphore }()
				if err := bus.Publish(ctx, ev); err != nil {
					logger.Error("activity publish", zap.Error(err))
				}
			}(ev)
		}
	}
	wg.Wait()
	bus.Close()
}

func subscribe(bus *buspkg.Bus, topic, name string, handler buspkg.Handler) {
	if _, err := bus.Subscribe(topic, name, handler); err != nil {
		panic(err)
	}
}
