package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/bonjohen/cedar-terrace-sub001/api/swagger"
	"github.com/bonjohen/cedar-terrace-sub001/internal/handler"
	internalmiddleware "github.com/bonjohen/cedar-terrace-sub001/internal/middleware"
	"github.com/bonjohen/cedar-terrace-sub001/internal/models"
	"github.com/bonjohen/cedar-terrace-sub001/internal/notify"
	"github.com/bonjohen/cedar-terrace-sub001/internal/repository"
	"github.com/bonjohen/cedar-terrace-sub001/internal/service"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/cache"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/config"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/database"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/export"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/jobs"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/logger"
	corsmiddleware "github.com/bonjohen/cedar-terrace-sub001/pkg/middleware/cors"
	reqidmiddleware "github.com/bonjohen/cedar-terrace-sub001/pkg/middleware/requestid"
	"github.com/bonjohen/cedar-terrace-sub001/pkg/storage"
)

// @title Cedar Terrace Parking Enforcement API
// @version 1.0.0
// @description Parking violation lifecycle engine: observations, derived violations, notices, and timeline escalation.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	photoStore, err := storage.NewPhotoStore(cfg.Evidence.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init photo storage", "error", err)
	}
	photoSigner := storage.NewPhotoURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)

	// Repositories.
	idempotencyRepo := repository.NewIdempotencyRepository(db)
	observationRepo := repository.NewObservationRepository(db)
	vehicleRepo := repository.NewVehicleRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	violationRepo := repository.NewViolationRepository(db)
	noticeRepo := repository.NewNoticeRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	sender := notify.NewLogSender(logr)
	ledger := service.NewLedger(idempotencyRepo, repository.IsUniqueViolation, logr)

	queue := jobs.NewQueue(jobs.Config{
		Workers:    cfg.Queue.Workers,
		BufferSize: cfg.Queue.BufferSize,
		MaxRetries: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
		Logger:     logr,
	})

	violationSvc := service.NewViolationService(violationRepo, cacheRepo, metricsSvc, cfg.Cache.ViolationTTL, logr)
	derivationSvc := service.NewDerivationService(violationRepo, observationRepo, sender, metricsSvc, repository.IsUniqueViolation, logr)
	observationSvc := service.NewObservationService(observationRepo, vehicleRepo, positionRepo, ledger, queue, logr)
	timelineSvc := service.NewTimelineService(violationRepo, violationSvc, cfg.Timeline.Rules, cfg.Timeline.PollInterval, cfg.Timeline.SweepLimit, sender, metricsSvc, logr)
	noticeSvc := service.NewNoticeService(noticeRepo, violationRepo, positionRepo, vehicleRepo, violationSvc, ledger, export.NewNoticeRenderer(), cfg.Timeline.Rules, cfg.Notice.Instructions, sender, metricsSvc, logr)
	positionSvc := service.NewPositionService(positionRepo, nil, logr)
	evidenceSvc := service.NewEvidenceService(photoStore, photoSigner, cfg.Evidence.MaxFileSize, logr)

	queue.Subscribe(service.TopicDeriveViolations, derivationSvc.Handler)
	queue.Start(ctx)
	defer queue.Stop()

	timelineSvc.Start(ctx)
	defer timelineSvc.Stop()

	// Handlers.
	observationHandler := handler.NewObservationHandler(observationSvc)
	violationHandler := handler.NewViolationHandler(violationSvc, timelineSvc)
	noticeHandler := handler.NewNoticeHandler(noticeSvc)
	positionHandler := handler.NewPositionHandler(positionSvc)
	evidenceHandler := handler.NewEvidenceHandler(evidenceSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(checkCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// QR resolution is public: the token on a printed notice is the only
	// credential a vehicle owner has.
	api.GET("/notices/qr/:token", noticeHandler.ResolveQR)
	api.GET("/evidence/photos/:token", evidenceHandler.GetPhoto)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(cfg.Auth.JWTSecret))

	enforcer := internalmiddleware.RequireRoles(models.RoleEnforcer, models.RoleAdmin)
	admin := internalmiddleware.RequireRoles(models.RoleAdmin)

	secured.POST("/observations", enforcer, observationHandler.Submit)
	secured.GET("/observations/:id", enforcer, observationHandler.Get)
	secured.GET("/vehicles", enforcer, observationHandler.LookupVehicle)
	secured.GET("/vehicles/:id", enforcer, observationHandler.GetVehicle)

	secured.GET("/violations", enforcer, violationHandler.List)
	secured.GET("/violations/:id", enforcer, violationHandler.Get)
	secured.POST("/violations/:id/events", admin, violationHandler.ApplyEvent)
	secured.POST("/violations/:id/evaluate", admin, violationHandler.Evaluate)

	secured.POST("/notices", enforcer, noticeHandler.Issue)
	secured.GET("/notices/:id", enforcer, noticeHandler.Get)
	secured.GET("/notices/:id/document", enforcer, noticeHandler.Document)

	secured.GET("/positions", enforcer, positionHandler.List)
	secured.GET("/positions/locate", enforcer, positionHandler.Locate)
	secured.GET("/positions/:id", enforcer, positionHandler.Get)
	secured.POST("/positions", admin, positionHandler.Create)
	secured.DELETE("/positions/:id", admin, positionHandler.Delete)

	secured.POST("/evidence/photos", enforcer, evidenceHandler.Upload)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
