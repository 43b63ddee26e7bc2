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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/cptrack/cptrack-api/api/swagger"
	"github.com/cptrack/cptrack-api/internal/handler"
	"github.com/cptrack/cptrack-api/internal/middleware"
	"github.com/cptrack/cptrack-api/internal/models"
	"github.com/cptrack/cptrack-api/internal/repository"
	"github.com/cptrack/cptrack-api/internal/service"
	"github.com/cptrack/cptrack-api/pkg/cache"
	"github.com/cptrack/cptrack-api/pkg/config"
	"github.com/cptrack/cptrack-api/pkg/database"
	"github.com/cptrack/cptrack-api/pkg/logger"
	corsmiddleware "github.com/cptrack/cptrack-api/pkg/middleware/cors"
	reqidmiddleware "github.com/cptrack/cptrack-api/pkg/middleware/requestid"
	"github.com/cptrack/cptrack-api/pkg/storage"
)

// @title Concept Paper Tracking API
// @version 1.0.0
// @description Approval workflow tracking for concept papers
// @BasePath /api/v1
// @schemes http https

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	localStorage, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init attachment storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	paperRepo := repository.NewPaperRepository(db)
	stageRepo := repository.NewStageRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	registrySvc := service.NewRegistryService(templateRepo, cacheRepo, cfg.Workflow.TemplateCacheTTL, logr,
		service.WithRegistryMetrics(metricsSvc))
	deadlines := service.NewDeadlineCalculator(cfg.Workflow.DefaultStageDays)

	notificationSvc := service.NewNotificationService(userRepo, nil, metricsSvc, logr, cfg.Notifications.Enabled,
		service.NotificationQueueConfig{
			Workers:    cfg.Notifications.WorkerConcurrency,
			Retries:    cfg.Notifications.WorkerRetries,
			BufferSize: cfg.Notifications.QueueBuffer,
		})
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	workflowSvc := service.NewWorkflowService(paperRepo, stageRepo, userRepo, registrySvc, deadlines, validate, logr,
		service.WithWorkflowNotifier(notificationSvc),
		service.WithWorkflowMetrics(metricsSvc))

	overdueSvc := service.NewOverdueService(stageRepo, paperRepo, cacheRepo, notificationSvc,
		service.OverdueScanConfig{
			ScanInterval: cfg.Overdue.ScanInterval,
			MarkerTTL:    cfg.Overdue.MarkerTTL,
			BatchSize:    cfg.Overdue.BatchSize,
		}, logr,
		service.WithOverdueMetrics(metricsSvc))
	if cfg.Overdue.Enabled {
		overdueSvc.Start(ctx)
	}

	userSvc := service.NewUserService(userRepo, stageRepo, logr)
	auditSvc := service.NewAuditService(auditRepo, paperRepo)
	attachmentSvc := service.NewAttachmentService(attachmentRepo, paperRepo, localStorage, signer,
		service.AttachmentLimits{
			MaxFileSizeBytes: cfg.Attachments.MaxFileSizeBytes,
			AllowedMIMEs:     cfg.Attachments.AllowedMIMEs,
		}, logr)

	// Handlers.
	paperHandler := handler.NewPaperHandler(workflowSvc)
	workflowHandler := handler.NewWorkflowHandler(workflowSvc, overdueSvc)
	userHandler := handler.NewUserHandler(userSvc)
	templateHandler := handler.NewTemplateHandler(registrySvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	attachmentHandler := handler.NewAttachmentHandler(attachmentSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auth := middleware.NewTokenValidator(cfg.JWT.Secret)
	reviewers := []models.UserRole{
		models.RoleSuperAdmin, models.RoleAdmin, models.RoleSPS, models.RoleVPAcad,
		models.RoleDean, models.RoleFinance, models.RolePresident,
	}
	admins := []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(auth))
	{
		papers := api.Group("/papers")
		{
			papers.POST("", paperHandler.Create)
			papers.GET("", paperHandler.List)
			papers.GET("/:id", paperHandler.Get)
			papers.GET("/:id/audit", auditHandler.Trail)
			papers.POST("/:id/attachments", attachmentHandler.Upload)
			papers.GET("/:id/attachments", attachmentHandler.List)
		}

		stages := api.Group("/stages", middleware.RequireRoles(reviewers...))
		{
			stages.POST("/:id/advance", workflowHandler.Advance)
			stages.POST("/:id/return", workflowHandler.Return)
			stages.POST("/:id/reject", workflowHandler.Reject)
			stages.POST("/:id/reassign", middleware.RequireRoles(admins...), workflowHandler.Reassign)
		}

		api.POST("/workflow/overdue-scan", middleware.RequireRoles(admins...), workflowHandler.ScanOverdue)

		templates := api.Group("/stage-templates")
		{
			templates.GET("", templateHandler.List)
			templates.PATCH("/:id", middleware.RequireRoles(admins...), templateHandler.UpdateMaxDays)
		}

		users := api.Group("/users", middleware.RequireRoles(admins...))
		{
			users.GET("/:id/affected-stages", userHandler.AffectedStages)
			users.POST("/:id/deactivate", userHandler.Deactivate)
		}

		api.POST("/attachments/:id/download-link", attachmentHandler.DownloadLink)
	}

	// Token-authenticated by signature, not by JWT.
	r.GET(cfg.APIPrefix+"/attachments/download", attachmentHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
