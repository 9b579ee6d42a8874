// Package main runs the Creative Contact HTTP server: registrations, door check-in and the live feed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/creative-contact/backend/config"
	"github.com/creative-contact/backend/internal/auditlog"
	"github.com/creative-contact/backend/internal/auth"
	"github.com/creative-contact/backend/internal/checkin"
	"github.com/creative-contact/backend/internal/emaillogs"
	"github.com/creative-contact/backend/internal/events"
	"github.com/creative-contact/backend/internal/middleware"
	"github.com/creative-contact/backend/internal/models"
	"github.com/creative-contact/backend/internal/notify"
	"github.com/creative-contact/backend/internal/realtime"
	"github.com/creative-contact/backend/internal/registrations"
	"github.com/creative-contact/backend/internal/reports"
	"github.com/creative-contact/backend/pkg/database"
	"github.com/creative-contact/backend/pkg/queue"
	"github.com/creative-contact/backend/pkg/redis"
	"github.com/creative-contact/backend/pkg/response"
	"github.com/creative-contact/backend/pkg/storage"
	"github.com/creative-contact/backend/pkg/telemetry"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}, logger)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolConfig{
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var exportStore reports.ObjectStore
	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		Endpoint:             cfg.AWS.S3Endpoint,
		ExportsBucket:        cfg.AWS.ExportsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		logger.Info("attendance exports disabled: no bucket configured")
	case err != nil:
		logger.Warn("s3 disabled", zap.Error(err))
	default:
		exportStore = s3Client
	}

	txManager := database.NewTxManager(pool)
	jobQueue := queue.NewQueue(rdb, logger)
	redisPubSub := realtime.NewRedisPubSub(rdb, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	notifier := notify.New(hub, jobQueue, logger)

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	if cfg.Bootstrap.AdminEmail != "" {
		bootstrapAdmin(ctx, authRepo, cfg.Bootstrap, logger)
	}

	// Events and slots
	eventRepo := events.NewRepository(pool)
	registrationRepo := registrations.NewRepository(pool)
	eventHandler := events.NewHandler(eventRepo, registrationRepo, logger)

	// Registrations
	registrationSvc := registrations.NewService(txManager, registrationRepo, eventRepo, notifier, logger)
	registrationHandler := registrations.NewHandler(registrationSvc, registrationRepo, logger)

	// Check-in
	auditRepo := auditlog.NewRepository(pool)
	auditHandler := auditlog.NewHandler(auditRepo, logger)
	engine := checkin.NewEngine(txManager, registrationRepo, auditRepo, logger)
	checkinHandler := checkin.NewHandler(engine, registrationRepo, notifier, logger)
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst, 10*time.Minute)

	emailLogsRepo := emaillogs.NewRepository(pool)
	emailLogsHandler := emaillogs.NewHandler(emailLogsRepo, registrationRepo, jobQueue, logger)
	reportHandler := reports.NewHandler(eventRepo, registrationRepo, auditRepo, exportStore, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins()))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Public: event listing, registration and the emailed confirmation link
	router.GET("/events", eventHandler.List)
	router.GET("/events/:id", eventHandler.GetByID)
	router.GET("/events/:id/slots", eventHandler.ListSlots)
	router.POST("/slots/:id/register", limiter.Middleware(), registrationHandler.Register)
	router.POST("/registrations/confirm/:signature", registrationHandler.ConfirmBySignature)

	// Auth (public)
	router.POST("/auth/login", limiter.Middleware(), authHandler.Login)

	// Staff API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		admin := middleware.RequireRole(models.RoleAdmin)
		staff := middleware.RequireRole(models.RoleAdmin, models.RoleStaff)

		api.GET("/auth/me", authHandler.Me)
		api.GET("/auth/staff", admin, authHandler.List)
		api.POST("/auth/staff", admin, authHandler.CreateStaff)

		api.POST("/events", admin, eventHandler.Create)
		api.POST("/events/:id/slots", admin, eventHandler.CreateSlot)
		api.GET("/slots/:id/stats", staff, eventHandler.Stats)
		api.GET("/slots/:id/viewers", staff, eventHandler.Viewers(hub))
		api.GET("/slots/:id/registrations", staff, registrationHandler.ListBySlot)
		api.POST("/slots/:id/export", admin, reportHandler.Export)

		api.GET("/registrations/:id", staff, registrationHandler.Get)
		api.POST("/registrations/:id/confirm", staff, registrationHandler.Confirm)
		api.POST("/registrations/:id/cancel", staff, registrationHandler.Cancel)
		api.GET("/registrations/:id/logs", staff, auditHandler.ListByRegistration)
		api.GET("/registrations/:id/emails", staff, emailLogsHandler.ListByRegistration)
		api.POST("/registrations/:id/emails/resend", staff, emailLogsHandler.Resend)
		api.GET("/staff/:id/logs", admin, auditHandler.ListByStaff)

		door := api.Group("/checkin", staff, limiter.Middleware())
		door.POST("/registrations/:id", checkinHandler.CheckIn)
		door.POST("/scan", checkinHandler.Scan)
		door.GET("/search", checkinHandler.Search)
	}

	// WebSocket (token in query; browsers cannot set headers on upgrade)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtService.StaffID))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go sweepLimiter(bgCtx, limiter)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func bootstrapAdmin(ctx context.Context, repo *auth.Repository, b config.BootstrapConfig, logger *zap.Logger) {
	hash, err := auth.HashPassword(b.AdminPassword)
	if err != nil {
		logger.Fatal("hash bootstrap password", zap.Error(err))
	}
	created, err := repo.EnsureAdmin(ctx, b.AdminEmail, hash, "Administrator")
	if err != nil {
		logger.Fatal("bootstrap admin", zap.Error(err))
	}
	if created {
		logger.Info("bootstrap admin created", zap.String("email", b.AdminEmail))
	}
}

func sweepLimiter(ctx context.Context, l *middleware.RateLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
