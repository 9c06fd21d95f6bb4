package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/labworks/labsched-api/api/swagger"
	"github.com/labworks/labsched-api/internal/handler"
	"github.com/labworks/labsched-api/internal/middleware"
	"github.com/labworks/labsched-api/internal/models"
	"github.com/labworks/labsched-api/internal/repository"
	"github.com/labworks/labsched-api/internal/service"
	"github.com/labworks/labsched-api/pkg/cache"
	"github.com/labworks/labsched-api/pkg/config"
	"github.com/labworks/labsched-api/pkg/database"
	"github.com/labworks/labsched-api/pkg/logger"
	corsmiddleware "github.com/labworks/labsched-api/pkg/middleware/cors"
	reqidmiddleware "github.com/labworks/labsched-api/pkg/middleware/requestid"
)

// @title Labsched API
// @version 1.0.0
// @description Laboratory session scheduling and equipment request coordination
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheSvc *service.CacheService
	if cfg.Calendar.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, calendar cache disabled", "error", err)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Calendar.CacheTTL, logr, true)
			defer cacheRepo.Close()
		}
	}

	sessionRepo := repository.NewSessionRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	userRepo := repository.NewUserRepository(db)

	notifier := service.NewNotifier(service.NewLogSender(logr), cfg.Notifications, logr)
	notifierCtx, cancelNotifier := context.WithCancel(context.Background())
	notifier.Start(notifierCtx)
	defer cancelNotifier()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	sessionSvc := service.NewSessionService(sessionRepo, cacheSvc, metrics, validate, logr)
	if cacheSvc.Enabled() {
		sessionSvc.FlushDayViews(context.Background())
	}
	requestSvc := service.NewRequestService(requestRepo, userRepo, notifier, metrics, validate, logr)
	exportSvc := service.NewExportService(sessionSvc, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("", middleware.JWT(authSvc))
	{
		sessions := authed.Group("/sessions")
		{
			sessions.GET("", sessionHandler.List)
			sessions.GET("/day/:date", sessionHandler.ListByDay)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleLabAssistant), sessionHandler.Create)
			sessions.PUT("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), sessionHandler.Update)
			sessions.PATCH("/:id/status", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleLabAssistant), sessionHandler.UpdateStatus)
			sessions.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), sessionHandler.Delete)
			if cfg.Exports.Enabled {
				sessions.GET("/day/:date/export", middleware.RequireRoles(models.RoleAdmin, models.RoleLabAssistant), exportHandler.ExportDay)
			}
		}

		authed.GET("/teachers/:id/sessions/upcoming", sessionHandler.ListUpcomingForTeacher)

		requests := authed.Group("/requests")
		{
			requests.GET("", requestHandler.List)
			requests.GET("/:id", requestHandler.Get)
			requests.POST("", middleware.RequireRoles(models.RoleTeacher), requestHandler.Create)
			requests.PATCH("/:id/status", middleware.RequireRoles(models.RoleAdmin, models.RoleLabAssistant), requestHandler.Transition)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	notifier.Stop()
}
