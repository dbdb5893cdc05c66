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
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

// @title SMA Timetable API
// @version 1.0.0
// @description Constraint analysis for school timetables: availability, subject rules, saturation and fixes.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		// analysis still works without a cache
		logr.Warn("redis unavailable, analysis cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Analysis.CacheTTL, logr, cfg.Analysis.CacheEnabled && redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	constraintRepo := repository.NewConstraintRepository(db)
	gridRepo := repository.NewTimeGridRepository(db)
	groupRepo := repository.NewClassGroupRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	gridSvc := service.NewTimeGridService(gridRepo, auditRepo, cacheSvc, validate, logr)
	groupSvc := service.NewClassGroupService(groupRepo)
	constraintSvc := service.NewConstraintService(constraintRepo, gridRepo, auditRepo, db, cacheSvc, metricsSvc, validate, logr)
	analysisSvc := service.NewConstraintAnalysisService(constraintRepo, gridRepo, groupRepo, timetableRepo, cacheSvc, metricsSvc, validate, logr,
		service.ConstraintAnalysisConfig{
			ElectiveFallback: cfg.Analysis.ElectiveFallback,
			CacheTTL:         cfg.Analysis.CacheTTL,
		})

	var reportHandler *handler.ReportHandler
	if cfg.Reports.Enabled {
		reportSvc, queue, err := buildReports(ctx, cfg, db, timetableRepo, analysisSvc, metricsSvc, validate, logr)
		if err != nil {
			logr.Fatal("failed to init reports", zap.Error(err))
		}
		defer queue.Stop()
		reportHandler = handler.NewReportHandler(reportSvc)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"postgres": db,
		"redis":    handler.PingFunc(cacheRepo.Ping),
	})
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeHandlers{
		auth:        handler.NewAuthHandler(authSvc),
		grids:       handler.NewTimeGridHandler(gridSvc, groupSvc),
		constraints: handler.NewConstraintHandler(constraintSvc),
		analysis:    handler.NewAnalysisHandler(analysisSvc),
		reports:     reportHandler,
	}, middleware.JWT(authSvc))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type routeHandlers struct {
	auth        *handler.AuthHandler
	grids       *handler.TimeGridHandler
	constraints *handler.ConstraintHandler
	analysis    *handler.AnalysisHandler
	reports     *handler.ReportHandler
}

func registerRoutes(api *gin.RouterGroup, h routeHandlers, authn gin.HandlerFunc) {
	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	api.POST("/auth/login", h.auth.Login)
	if h.reports != nil {
		// the signed token is the credential
		api.GET("/reports/download/:token", h.reports.Download)
	}

	secured := api.Group("", authn)
	secured.GET("/auth/me", h.auth.Me)

	secured.GET("/time-grids", staff, h.grids.List)
	secured.GET("/time-grids/:id", staff, h.grids.Get)
	secured.PUT("/time-grids/:id", admin, h.grids.Upsert)
	secured.GET("/class-groups", staff, h.grids.ListClassGroups)
	secured.GET("/class-groups/:id", staff, h.grids.GetClassGroup)

	secured.GET("/constraints", staff, h.constraints.List)
	secured.POST("/constraints/apply-fix", admin, h.constraints.ApplyFix)
	secured.GET("/constraints/:id", staff, h.constraints.Get)
	secured.POST("/constraints", admin, h.constraints.Create)
	secured.PUT("/constraints/:id", admin, h.constraints.Update)
	secured.DELETE("/constraints/:id", admin, h.constraints.Delete)

	secured.POST("/analysis/lessons", staff, h.analysis.AnalyzeLesson)
	secured.GET("/timetables/:id/analysis", admin, h.analysis.AnalyzeTimetable)

	if h.reports != nil {
		secured.POST("/reports/constraint-audit", admin, h.reports.ConstraintAudit)
		secured.GET("/reports/:id", staff, h.reports.Status)
	}
}
