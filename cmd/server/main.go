package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/playmatatu/battlerelay/internal/api"
	"github.com/playmatatu/battlerelay/internal/config"
	"github.com/playmatatu/battlerelay/internal/database"
	"github.com/playmatatu/battlerelay/internal/lobby"
	"github.com/playmatatu/battlerelay/internal/middleware"
	"github.com/playmatatu/battlerelay/internal/migrations"
	"github.com/playmatatu/battlerelay/internal/observability"
	"github.com/playmatatu/battlerelay/internal/redis"
	"github.com/playmatatu/battlerelay/internal/store"
	"github.com/playmatatu/battlerelay/internal/ws"
)

const (
	writerBuffer    = 1024
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		db  *sqlx.DB
		rdb *goredis.Client
	)

	if cfg.StoreBackend == config.StorePostgres {
		db, err = database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if cfg.MigrateOnStart {
			if err := migrations.Run(cfg.DatabaseURL, cfg.MigrationsPath, logger.Named("migrate")); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
	}

	if cfg.RedisURL != "" {
		rdb, err = redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	var gw store.Gateway
	switch cfg.StoreBackend {
	case config.StorePostgres:
		gw = store.NewPostgresStore(db)
	case config.StoreRedis:
		gw = store.NewRedisStore(rdb)
	default:
		gw = store.NewMemoryStore()
	}
	logger.Info("persistence ready", zap.String("backend", cfg.StoreBackend))

	writer := store.NewWriter(gw, logger, writerBuffer)

	opts := ws.Options{
		SweepInterval: time.Duration(cfg.PairSweepSeconds) * time.Second,
		StatsInterval: time.Duration(cfg.StatsIntervalSeconds) * time.Second,
		SendBuffer:    cfg.SendBufferSize,
		Lobby: []lobby.Option{
			lobby.WithRecorder(writer),
			lobby.WithMaxMoves(cfg.MaxRecordedMoves),
		},
	}
	if rdb != nil {
		opts.Publisher = redis.NewStatsPublisher(rdb)
	}
	hub := ws.NewHub(logger, opts)
	go hub.Run(ctx)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))
	api.SetupRoutes(router, hub, gw, cfg, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting battle relay server", zap.String("port", cfg.Port), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	<-hub.Done()
	writer.Close()
	logger.Info("server stopped")
}
