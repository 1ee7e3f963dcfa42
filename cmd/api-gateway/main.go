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
	"go.uber.org/zap"

	"github.com/iels-id/learner-api/internal/handler"
	"github.com/iels-id/learner-api/internal/repository"
	"github.com/iels-id/learner-api/internal/service"
	"github.com/iels-id/learner-api/pkg/cache"
	"github.com/iels-id/learner-api/pkg/config"
	"github.com/iels-id/learner-api/pkg/database"
	"github.com/iels-id/learner-api/pkg/export"
	"github.com/iels-id/learner-api/pkg/jobs"
	"github.com/iels-id/learner-api/pkg/logger"
	"github.com/iels-id/learner-api/pkg/observability"
	"github.com/iels-id/learner-api/pkg/sheets"
	"github.com/iels-id/learner-api/pkg/storage"
)

// @title IELS Learner API
// @version 1.0.0
// @description Test access verification, attempts, scores and certificates for IELS learners.
// @BasePath /api/v1
// @schemes http https
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	flushSentry, err := observability.InitSentry(cfg)
	if err != nil {
		logr.Warn("sentry disabled", zap.Error(err))
	}
	defer flushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, certificate verification cache disabled", zap.Error(err))
		redisClient = nil
	}

	source, err := sheets.New(cfg.Sheets)
	if err != nil {
		return fmt.Errorf("registration source: %w", err)
	}

	files, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		return fmt.Errorf("certificate storage: %w", err)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	registrationRepo := repository.NewRegistrationRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	scoreSyncRepo := repository.NewScoreSyncRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Certificates.CacheTTL, logr, redisClient != nil)

	scoreSync := service.NewScoreSyncService(scoreSyncRepo, source, metrics, logr, service.ScoreSyncConfig{
		MaxRetries:        cfg.ScoreSync.MaxRetries,
		MaxAttempts:       cfg.ScoreSync.MaxAttempts,
		ReconcileInterval: cfg.ScoreSync.ReconcileInterval,
	})
	queue := jobs.NewQueue("score-sync", scoreSync.Handle, jobs.QueueConfig{
		Workers:       cfg.ScoreSync.Workers,
		MaxRetries:    cfg.ScoreSync.MaxRetries,
		RetryDelay:    cfg.ScoreSync.RetryDelay,
		MaxRetryDelay: cfg.ScoreSync.MaxRetryDelay,
		Logger:        logr,
	})
	scoreSync.SetQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()
	scoreSync.RecoverPending(ctx)
	scoreSync.StartReconciler(ctx)

	registrations := service.NewRegistrationSyncService(registrationRepo, attemptRepo, source, queue, metrics, validate, logr)
	certificates := service.NewCertificateService(
		certificateRepo,
		attemptRepo,
		cacheSvc,
		export.NewCertificatePDF("IELS"),
		files,
		storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL),
		metrics,
		logr,
		service.CertificateServiceConfig{
			AppBaseURL:   cfg.AppBaseURL,
			DownloadPath: cfg.APIPrefix + "/certificates/download",
			CacheTTL:     cfg.Certificates.CacheTTL,
		},
	)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, logr, routerDeps{
		verifier:     service.NewTokenVerifier(cfg.Auth.JWTSecret),
		metrics:      metrics,
		health:       handler.NewMetricsHandler(metrics, db),
		testAccess:   handler.NewTestAccessHandler(registrations),
		certificates: handler.NewCertificateHandler(certificates, registrations),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logr.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
