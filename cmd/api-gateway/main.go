package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-adp-timetable/api/swagger"
	"github.com/noah-isme/sma-adp-timetable/internal/audit"
	"github.com/noah-isme/sma-adp-timetable/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-adp-timetable/internal/middleware"
	"github.com/noah-isme/sma-adp-timetable/internal/repository"
	"github.com/noah-isme/sma-adp-timetable/internal/scheduler"
	"github.com/noah-isme/sma-adp-timetable/internal/service"
	"github.com/noah-isme/sma-adp-timetable/pkg/cache"
	"github.com/noah-isme/sma-adp-timetable/pkg/config"
	"github.com/noah-isme/sma-adp-timetable/pkg/database"
	"github.com/noah-isme/sma-adp-timetable/pkg/jobs"
	"github.com/noah-isme/sma-adp-timetable/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-adp-timetable/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-adp-timetable/pkg/middleware/requestid"
)

// @title Timetable Engine API
// @version 1.0.0
// @description Constraint-based course timetable solving, auditing and persistence.
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

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Audit.CacheTTL, logr, redisClient != nil)

	termRepo := repository.NewTermRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	runRepo := repository.NewTimetableRunRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)

	engineOpts := scheduler.OptionsFromConfig(cfg.Scheduler)
	engine := scheduler.NewEngine(engineOpts, logr.Named("scheduler"))
	auditor := audit.New(engineOpts.Registry, logr.Named("audit"))

	timetableSvc := service.NewTimetableService(service.TimetableDeps{
		Terms:       termRepo,
		Reference:   referenceRepo,
		Runs:        runRepo,
		Assignments: assignmentRepo,
		Solver:      engine,
		Auditor:     auditor,
		Tx:          db,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		Logger:      logr,
	}, service.TimetableServiceConfig{
		ProposalTTL: cfg.Scheduler.ProposalTTL,
		Days:        engineOpts.Days,
	})

	auditSvc := service.NewAuditService(service.AuditDeps{
		Auditor:     auditor,
		Reference:   referenceRepo,
		Runs:        runRepo,
		Assignments: assignmentRepo,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		Logger:      logr,
		CacheTTL:    cfg.Audit.CacheTTL,
	})

	jobSvc := service.NewTimetableJobService(timetableSvc, nil, cfg.Jobs.MaxRetries, cfg.Jobs.Retention, logr)
	solveQueue := jobs.NewQueue("timetable-solve", jobSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		BufferSize: cfg.Jobs.BufferSize,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		JobTimeout: engineOpts.Budget + time.Minute,
		Logger:     logr,
	})
	jobSvc.AttachQueue(solveQueue)
	solveQueue.Start(ctx)
	defer solveQueue.Stop()

	timetableHandler := handler.NewTimetableHandler(timetableSvc, jobSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta())
	api.GET("/metrics/summary", metricsHandler.Snapshot)

	timetables := api.Group("/timetables")
	timetables.GET("", timetableHandler.List)
	timetables.POST("/save", timetableHandler.Save)
	timetables.POST("/audit", auditHandler.Audit)
	timetables.GET("/proposals/:id", timetableHandler.Proposal)
	timetables.GET("/jobs/:id", timetableHandler.JobStatus)
	timetables.GET("/:id/assignments", timetableHandler.Assignments)
	timetables.GET("/:id/audit", auditHandler.AuditRun)
	timetables.DELETE("/:id", timetableHandler.Delete)
	if cfg.Scheduler.Enabled {
		timetables.POST("/generate", timetableHandler.Generate)
		timetables.POST("/jobs", timetableHandler.SubmitJob)
	} else {
		logr.Info("scheduler disabled, solve endpoints not registered")
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	stats := solveQueue.Stats()
	logr.Info("solve queue drained",
		zap.Uint64("processed", stats.Processed),
		zap.Uint64("failed", stats.Failed),
		zap.Uint64("dropped", stats.Dropped),
	)
	if redisClient != nil {
		_ = cacheRepo.Close()
	}
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}
