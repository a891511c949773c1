package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nextconvert/cutstudio/internal/modules/jobs"
	"github.com/nextconvert/cutstudio/internal/modules/media"
	"github.com/nextconvert/cutstudio/internal/modules/pipeline"
	"github.com/nextconvert/cutstudio/internal/modules/progress"
	"github.com/nextconvert/cutstudio/internal/shared/config"
	"github.com/nextconvert/cutstudio/internal/shared/database"
	"github.com/nextconvert/cutstudio/internal/shared/logging"
	"github.com/nextconvert/cutstudio/internal/shared/metrics"
	"github.com/nextconvert/cutstudio/internal/shared/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
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

	logger.Info("Starting Cut Studio Worker",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("environment", cfg.Environment),
	)

	// Initialize database
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

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

	// Each task binds its own progress channel to a copy of the processor
	processor := media.NewProcessor(media.ProcessorConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		MaxThreads:  cfg.FFmpegMaxThreads,
	}, logger)

	policy := pipeline.KeepOnFailure
	if cfg.CleanupOnFailure {
		policy = pipeline.CleanupOnFailure
	}

	jobHandler := jobs.NewHandler(jobs.HandlerConfig{
		Store:     jobs.NewPostgresStore(db),
		Events:    jobs.NewEventPublisher(redisClient, logger),
		Publisher: storageService,
		NewEngine: func(ch *progress.Channel) pipeline.Engine {
			return processor.Bind(ch)
		},
		Metrics:       m,
		CleanupPolicy: policy,
		Logger:        logger,
	})

	redisOpt, err := jobs.RedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Invalid Redis address", zap.Error(err))
	}

	// Configure Asynq server
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				jobs.QueueDefault: 3,
				jobs.QueueLow:     1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn("Task failed",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
			ShutdownTimeout: 30 * time.Second,
		},
	)

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TypePipelineRun, jobHandler.HandlePipelineRun)

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// Start worker
	if err := srv.Start(mux); err != nil {
		logger.Fatal("Worker failed", zap.Error(err))
	}
	logger.Info("Worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.String("cleanup_policy", policy.String()),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsServer.Shutdown(ctx)

	logger.Info("Worker stopped")
}
