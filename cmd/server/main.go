package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/broker"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/database"
	"github.com/stemsi/ieltsmock-backend/internal/handler"
	"github.com/stemsi/ieltsmock-backend/internal/logger"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
	"github.com/stemsi/ieltsmock-backend/internal/repository/memory"
	"github.com/stemsi/ieltsmock-backend/internal/router"
	"github.com/stemsi/ieltsmock-backend/internal/service"
	"github.com/stemsi/ieltsmock-backend/internal/validator"
	"github.com/stemsi/ieltsmock-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", string(cfg.StoreDriver)).
		Str("log_level", cfg.LogLevel).
		Msg("Starting IELTS Mock Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Storage + Broker ──────────────────────────────────────────────
	var (
		store *repository.Store
		b     broker.Broker
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn().Msg("Using in-memory store; data is lost on restart")
		store = memory.NewStore()
		b = broker.NewLocal()

	case config.StoreDriverPostgres:
		if cfg.AutoMigrate {
			if err := database.MigrateUp(cfg.DatabaseURL, log); err != nil {
				log.Fatal().Err(err).Msg("Failed to migrate schema")
			}
		}

		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		store = repository.NewPostgresStore(pool)
		b = broker.NewRedis(rdb)

	default:
		log.Fatal().Str("driver", string(cfg.StoreDriver)).Msg("Unknown STORE_DRIVER")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, b)
	monitorService := service.NewMonitorService(store, b, log)
	keyService := service.NewTestKeyService(cfg, store.Keys, store.Tests, log)
	variantSelector := service.NewVariantSelector(store.MocTests)
	attemptService := service.NewAttemptService(cfg, store, keyService, variantSelector, b, monitorService, log)
	queueService := service.NewQueueService(cfg, store, monitorService, log)
	testService := service.NewTestService(store, monitorService, log)
	mocService := service.NewMocService(store, testService, log)
	adminService := service.NewAdminService(store.Admins, authService, log)
	studentService := service.NewStudentService(store.Students, store.Attempts, authService, log)
	reportService := service.NewReportService(store.Attempts)
	mediaService := service.NewMediaService(cfg)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, studentService, adminService),
		Attempt:       handler.NewAttemptHandler(attemptService, authService, mediaService),
		StudentPortal: handler.NewStudentPortalHandler(queueService, studentService),
		Test:          handler.NewTestHandler(testService),
		TestKey:       handler.NewTestKeyHandler(keyService),
		Moc:           handler.NewMocHandler(mocService),
		Report:        handler.NewReportHandler(reportService, adminService, queueService),
		Media:         handler.NewMediaHandler(mediaService),
		Monitor:       handler.NewMonitorHandler(monitorService, log),
		AdminUser:     handler.NewAdminUserHandler(adminService),
		WS:            handler.NewWSHandler(attemptService, cfg, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	violationWorker := worker.NewViolationWorker(store.Violations, b, log)
	gradingWorker := worker.NewGradingWorker(store, b, log)
	queueSweeper := worker.NewQueueSweeper(queueService, cfg.QueueSweepInterval, log)

	for _, start := range []func(context.Context){violationWorker.Start, gradingWorker.Start, queueSweeper.Start} {
		workers.Add(1)
		go func() {
			defer workers.Done()
			start(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	cancel()

	// 2. Stop background workers and wait for their buffers to flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
