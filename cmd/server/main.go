// Package main runs the session orchestration HTTP server with WebSocket
// signaling and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/campuslive/backend/config"
	"github.com/campuslive/backend/internal/attendance"
	"github.com/campuslive/backend/internal/auth"
	"github.com/campuslive/backend/internal/breakout"
	"github.com/campuslive/backend/internal/middleware"
	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/notify"
	"github.com/campuslive/backend/internal/provider"
	"github.com/campuslive/backend/internal/realtime"
	"github.com/campuslive/backend/internal/recorder"
	"github.com/campuslive/backend/internal/recording"
	"github.com/campuslive/backend/internal/sessions"
	"github.com/campuslive/backend/internal/store/postgres"
	"github.com/campuslive/backend/internal/worker"
	"github.com/campuslive/backend/pkg/database"
	"github.com/campuslive/backend/pkg/queue"
	"github.com/campuslive/backend/pkg/redis"
	"github.com/campuslive/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	sfu := realtime.NewSFU(logger, realtime.ParseICEServers(cfg.WebRTC.ICEUrls))
	recorderSvc := recorder.NewService(sfu, cfg.Recording.OutputDir, logger)

	providers := provider.NewRegistry(
		provider.NewManaged(cfg.Provider, logger),
		provider.NewSelfHosted(hub, sfu, recorderSvc, jwtService, cfg.Server.PublicBaseURL, cfg.WebRTC.ICEUrls, logger),
	)
	defaultProvider := models.ProviderSelfHosted
	if cfg.Provider.APIBaseURL != "" {
		defaultProvider = models.ProviderManaged
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	notifier := notify.NewService(jobQueue, hub, logger)

	sessionRepo := postgres.NewSessionRepository(pool)
	participantRepo := postgres.NewParticipantRepository(pool)
	recordingRepo := postgres.NewRecordingRepository(pool)

	tracker := attendance.NewTracker(participantRepo, rdb, logger)
	breakoutCoord := breakout.NewCoordinator(sessionRepo, participantRepo, providers, notifier, logger)
	recordingCoord := recording.NewCoordinator(sessionRepo, recordingRepo, providers, jobQueue, s3Client, notifier, logger)
	sessionSvc := sessions.NewService(
		sessionRepo, participantRepo, providers,
		tracker, breakoutCoord, recordingCoord, notifier,
		defaultProvider, logger,
	)

	sessionHandler := sessions.NewHandler(sessionSvc, tracker)
	breakoutHandler := breakout.NewHandler(breakoutCoord)
	recordingHandler := recording.NewHandler(recordingCoord)

	hub.SetOccupancyChangeHandler(func(roomID string, count int) {
		logger.Debug("room occupancy changed", zap.String("room_id", roomID), zap.Int("count", count))
	})
	// Signaling attach confirms the participant handshake (connecting -> connected).
	hub.SetConnectHandler(func(roomID string, userID uuid.UUID) {
		confirmCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sessionSvc.ConfirmConnection(confirmCtx, roomID, userID); err != nil {
			logger.Debug("confirm connection", zap.String("room_id", roomID), zap.Error(err))
		}
	})

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		sessionHandler.RegisterRoutes(api)
		breakoutHandler.RegisterRoutes(api)
		recordingHandler.RegisterRoutes(api)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", func(c *gin.Context) {
		realtime.ServeWs(hub, logger, jwtValidate, sfu)(c)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (recording upload, notification dispatch). Runs in the
	// server too so single-process deployments don't need cmd/worker.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		processor := recording.NewProcessor(sessionRepo, recordingRepo, providers, jobQueue, s3Client, notifier, logger)
		go worker.New(jobQueue, processor, nil, providers.Kinds(), logger).Run(workerCtx)
		logger.Info("background worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
