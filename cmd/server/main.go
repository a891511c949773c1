package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nextconvert/cutstudio/internal/api"
	"github.com/nextconvert/cutstudio/internal/api/middleware"
	"github.com/nextconvert/cutstudio/internal/api/websocket"
	"github.com/nextconvert/cutstudio/internal/modules/jobs"
	"github.com/nextconvert/cutstudio/internal/modules/media"
	"github.com/nextconvert/cutstudio/internal/modules/presets"
	"github.com/nextconvert/cutstudio/internal/modules/segments"
	"github.com/nextconvert/cutstudio/internal/shared/config"
	"github.com/nextconvert/cutstudio/internal/shared/database"
	"github.com/nextconvert/cutstudio/internal/shared/logging"
	"github.com/nextconvert/cutstudio/internal/shared/metrics"
	"github.com/nextconvert/cutstudio/internal/shared/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	segmentSweepInterval = 10 * time.Minute
	segmentIdleTimeout   = 24 * time.Hour
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Cut Studio API Server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("environment", cfg.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	// Initialize Redis
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Initialize storage
	storageService, err := storage.NewService(cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize job queue client
	redisOpt, err := jobs.RedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Invalid Redis address", zap.Error(err))
	}
	jobQueue := jobs.NewQueueClient(redisOpt, logger)
	defer jobQueue.Close()

	events := jobs.NewEventPublisher(redisClient, logger)
	jobsModule := jobs.NewModule(jobs.NewPostgresStore(db), jobQueue, events, m, logger)

	// Worker events reach browsers through the hub
	wsHub := websocket.NewHub(cfg.AllowedOrigins, m, logger)
	go wsHub.Run(ctx)

	relay := jobs.NewRelay(redisClient, wsHub.Dispatch, logger)
	go func() {
		if err := relay.Run(ctx); err != nil {
			logger.Error("Job event relay stopped", zap.Error(err))
		}
	}()

	// Segment sets are kept in memory; forget the ones of abandoned sessions
	segmentSets := segments.NewRegistry()
	go func() {
		ticker := time.NewTicker(segmentSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := segmentSets.Expire(segmentIdleTimeout); n > 0 {
					logger.Debug("Expired idle segment sets", zap.Int("count", n))
				}
			}
		}
	}()

	server := api.NewServer(api.ServerConfig{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Redis:       redisClient,
		RateCounter: middleware.NewRedisCounter(redisClient.Client),
		Storage:     storageService,
		WSHub:       wsHub,
		Jobs:        jobsModule,
		Segments:    segmentSets,
		Presets:     presets.NewStore(redisClient, logger),
		Prober: media.NewProcessor(media.ProcessorConfig{
			FFmpegPath:  cfg.FFmpegPath,
			FFprobePath: cfg.FFprobePath,
		}, logger),
		Metrics: m,
	})

	// Create HTTP server. Uploads can be large, so there is no write timeout.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
