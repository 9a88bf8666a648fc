package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/research-portal-api/api/swagger"
	"github.com/noah-isme/research-portal-api/internal/handler"
	"github.com/noah-isme/research-portal-api/internal/middleware"
	"github.com/noah-isme/research-portal-api/internal/repository"
	"github.com/noah-isme/research-portal-api/internal/service"
	"github.com/noah-isme/research-portal-api/pkg/cache"
	"github.com/noah-isme/research-portal-api/pkg/compute"
	"github.com/noah-isme/research-portal-api/pkg/config"
	"github.com/noah-isme/research-portal-api/pkg/database"
	"github.com/noah-isme/research-portal-api/pkg/export"
	"github.com/noah-isme/research-portal-api/pkg/logger"
	"github.com/noah-isme/research-portal-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/research-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/research-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/research-portal-api/pkg/storage"
)

// @title Research Portal API
// @version 1.0.0
// @description Academic resource portal
// @BasePath /
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cacheRepo != nil)

	userRepo := repository.NewUserRepository(db)
	sharedRepo := repository.NewSharedArchiveRepository(db)
	personalRepo := repository.NewPersonalArchiveRepository(db)
	researchRepo := repository.NewResearchRecordRepository(db)
	thesisRepo := repository.NewThesisProjectRepository(db)

	validate := service.NewValidator(service.NewEmailPolicy(cfg.Registration))

	notifications := service.NewNotificationService(mailer.NewSMTPMailer(cfg.Notifications), metrics, logr, cfg.Notifications)
	notifications.Start(ctx)
	defer notifications.Stop()

	codes := service.NewAccessCodeGenerator(userRepo.EscrowSecretExists)
	registration := service.NewRegistrationService(userRepo, codes, service.NewEmailPolicy(cfg.Registration), notifications, metrics, validate, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		TTL:    cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})

	if err := service.NewBootstrapService(userRepo, cfg.Bootstrap, logr).Run(ctx); err != nil {
		logr.Fatal("failed to seed administrators", zap.Error(err))
	}

	exports := service.NewExportService(export.NewCSVExporter(), export.NewPDFExporter())
	userSvc := service.NewUserService(userRepo, exports, validate, logr)

	root, err := storage.NewLocalStorage(cfg.Storage.RootDir)
	if err != nil {
		logr.Fatal("failed to prepare storage root", zap.Error(err))
	}
	staging, err := storage.NewLocalStorage(cfg.Storage.StagingDir)
	if err != nil {
		logr.Fatal("failed to prepare staging area", zap.Error(err))
	}
	pipeline := service.NewFilePipeline(root, cfg.Storage, metrics, logr)

	sharedSvc := service.NewSharedArchiveService(sharedRepo, researchRepo, pipeline, userRepo, validate, logr)
	personalSvc := service.NewPersonalArchiveService(personalRepo, pipeline, userRepo, validate, logr)
	researchSvc := service.NewResearchRecordService(researchRepo, pipeline, cacheSvc, userRepo, validate, logr)
	thesisSvc := service.NewThesisProjectService(thesisRepo, pipeline, cacheSvc, userRepo, validate, logr)

	runner := compute.NewScriptRunner(cfg.Algorithms.PythonBin, cfg.Algorithms.ScriptsDir, cfg.Algorithms.Timeout)
	algorithmSvc := service.NewAlgorithmService(runner, metrics, logr)

	reconciler := service.NewReconcileService(root, staging,
		[]service.PathLister{sharedRepo, personalRepo, researchRepo, thesisRepo},
		cfg.Storage.OrphanGrace, metrics, userRepo, logr)
	reconciler.Start(ctx, cfg.Storage.SweepInterval)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.AuditContext())

	metricsHandler := handler.NewMetricsHandler(metrics, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	stager := handler.NewStager(staging)
	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:       handler.NewAuthHandler(registration, authSvc),
		Users:      handler.NewUserHandler(userSvc),
		Shared:     handler.NewSharedArchiveHandler(sharedSvc, stager, cfg.Storage.Shared.MaxFileSizeBytes),
		Personal:   handler.NewPersonalArchiveHandler(personalSvc, stager, cfg.Storage.Personal.MaxFileSizeBytes),
		Research:   handler.NewResearchRecordHandler(researchSvc, stager, cfg.Storage.Research.MaxFileSizeBytes),
		Thesis:     handler.NewThesisProjectHandler(thesisSvc, stager, cfg.Storage.Thesis.MaxFileSizeBytes),
		Algorithms: handler.NewAlgorithmHandler(algorithmSvc),
		Admin:      handler.NewAdminHandler(reconciler),
	}, authSvc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
