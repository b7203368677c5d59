package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/apiclient"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/database"
	"github.com/stemsi/quizrunner/internal/handler"
	"github.com/stemsi/quizrunner/internal/logger"
	"github.com/stemsi/quizrunner/internal/repository"
	"github.com/stemsi/quizrunner/internal/router"
	"github.com/stemsi/quizrunner/internal/service"
	"github.com/stemsi/quizrunner/internal/validator"
	"github.com/stemsi/quizrunner/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("backend", cfg.BackendURL).
		Msg("Starting quizrunner gateway")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Platform API client ───────────────────────────────────────────
	platform := apiclient.New(cfg.BackendURL, apiclient.WithTimeout(cfg.BackendTimeout))

	// ─── Initialize Repositories ───────────────────────────────────────
	attemptRepo := repository.NewAttemptRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	bus := service.NewRedisBus(rdb)
	sessionService := service.NewSessionService(cfg, service.SessionDeps{
		Clients: func(token string) service.PlatformClient { return platform.WithToken(token) },
		Lock:    service.NewRedisSubmitLock(rdb),
		Bus:     bus,
		Ledger:  service.NewRedisLedgerQueue(rdb),
	}, log)
	ledgerService := service.NewLedgerService(attemptRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(sessionService, ledgerService, log),
		WS:      handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(sessionService, bus, cfg.MonitorRefresh, log),
		Ledger:  handler.NewLedgerHandler(ledgerService, log),
		System:  handler.NewSystemHandler(sessionService, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	ledgerWorker := worker.NewLedgerWorker(attemptRepo, rdb, log)
	workers.Add(2)
	go func() {
		defer workers.Done()
		ledgerWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		sessionService.StartJanitor(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	// Request contexts derive from streamCtx so SSE loops end on shutdown.
	streamCtx, stopStreams := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streamCtx },
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

	// 1. Stop accepting new HTTP requests (5s timeout). WebSocket streams
	// end when their sessions are closed below.
	stopStreams()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close live sessions, then drain the ledger queue buffer.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
