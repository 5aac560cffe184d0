// Package main runs the standalone background job worker (recording upload to
// S3, notification dispatch, scheduled promotion, stale reconcile).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/campuslive/backend/config"
	"github.com/campuslive/backend/internal/notify"
	"github.com/campuslive/backend/internal/provider"
	"github.com/campuslive/backend/internal/recording"
	"github.com/campuslive/backend/internal/store/postgres"
	"github.com/campuslive/backend/internal/worker"
	"github.com/campuslive/backend/pkg/database"
	"github.com/campuslive/backend/pkg/queue"
	"github.com/campuslive/backend/pkg/redis"
	"github.com/campuslive/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		RecordingsBucket:     cfg.AWS.RecordingsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	// The worker reaches the managed provider's API only; self-hosted
	// recordings land on their own Redis list and are processed by the server
	// process that holds the SFU.
	providers := provider.NewRegistry(provider.NewManaged(cfg.Provider, logger))

	sessionRepo := postgres.NewSessionRepository(pool)
	recordingRepo := postgres.NewRecordingRepository(pool)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	notifier := notify.NewService(jobQueue, nil, logger)
	processor := recording.NewProcessor(sessionRepo, recordingRepo, providers, jobQueue, s3Client, notifier, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.New(jobQueue, processor, nil, providers.Kinds(), logger).Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
