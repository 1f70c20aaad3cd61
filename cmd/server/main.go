// HTTP API - health, balances, transaction history, leaderboards and the
// trusted award endpoint
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/glkeru/gamification/internal/api"
	buspkg "github.com/glkeru/gamification/internal/bus"
	db "github.com/glkeru/gamification/internal/db"
	interf "github.com/glkeru/gamification/internal/interfaces"
	"github.com/glkeru/gamification/internal/lock"
	serv "github.com/glkeru/gamification/internal/services"
	otelinit "github.com/glkeru/gamification/observability/otel"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// config
	port := os.Getenv("API_PORT")
	if port == "" {
		panic("env API_PORT is not set")
	}

	// tracing
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		shutdown := otelinit.InitTracer(context.Background(), "gamification-api")
		defer shutdown()
	}

	// database
	var ledger interf.LedgerStorage
	dt, err := db.NewLedgerDB(logger)
	if err != nil {
		panic(err)
	}
	ledger = dt

	// cache
	var cache interf.RankCache
	cache, err = db.NewRankCacheService()
	if err != nil {
		logger.Error(err.Error())
		cache = db.NewMemoryRankCache()
	}

	// services
	bus := buspkg.New(logger)
	locks := lock.NewKeyed()
	points := serv.NewPointsEngine(logger, ledger, bus, locks)
	leaderboard := serv.NewLeaderboardService(logger, ledger, cache, bus)

	// api handlers
	r := api.NewHandler(logger, points, leaderboard, bus, ledger)
	srv := &http.Server{
		Handler:      otelhttp.NewHandler(r, "gamification-api"),
		Addr:         ":" + port,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	go srv.ListenAndServe()

	// shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	timeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(timeout)
	if err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	bus.Close()
}
