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

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/database"
	"github.com/stemsi/exstem-live/internal/handler"
	"github.com/stemsi/exstem-live/internal/logger"
	"github.com/stemsi/exstem-live/internal/repository"
	"github.com/stemsi/exstem-live/internal/router"
	"github.com/stemsi/exstem-live/internal/service"
	"github.com/stemsi/exstem-live/internal/session"
	"github.com/stemsi/exstem-live/internal/validator"
	ws "github.com/stemsi/exstem-live/internal/websocket"
	"github.com/stemsi/exstem-live/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Dur("tick_interval", cfg.TickInterval).
		Dur("finalize_grace", cfg.FinalizeGrace).
		Msg("Starting ExStem Live")

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

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	scheduleRepo := repository.NewScheduleRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	completionRepo := repository.NewCompletionRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	eligibilityService := service.NewEligibilityService(examRepo, scheduleRepo, questionRepo, completionRepo, rdb, log)
	gradingService := service.NewGradingService(questionRepo, rdb, log)
	completionService := service.NewCompletionService(completionRepo, rdb, log)
	journalService := service.NewAnswerJournalService(rdb, cfg.JournalTTL, log)

	// ─── Live Session Core ────────────────────────────────────────────
	hub := ws.NewHub(cfg.WSSendBuffer, log)
	coordinator := session.NewCoordinator(session.Dependencies{
		Eligibility: eligibilityService,
		Grader:      gradingService,
		Store:       completionService,
		Journal:     journalService,
		Transport:   hub,
	}, session.Options{
		TickInterval:    cfg.TickInterval,
		Grace:           cfg.FinalizeGrace,
		FinalizeTimeout: cfg.FinalizeTimeout,
	}, log)

	// Rebuild rooms left in the journal by a previous process before any
	// student can join.
	recoverCtx, recoverCancel := context.WithTimeout(ctx, cfg.FinalizeTimeout)
	recovered, err := coordinator.Recover(recoverCtx)
	recoverCancel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to recover live rooms")
	} else if recovered > 0 {
		log.Info().Int("rooms", recovered).Msg("Live rooms recovered")
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		WS:      handler.NewWSHandler(coordinator, hub, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(coordinator, gradingService, log),
		System:  handler.NewSystemHandler(pool, rdb, hub, coordinator, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	completionWorker := worker.NewCompletionWorker(completionRepo, rdb, cfg.WorkerBatchSize, log)

	workers.Add(2)
	go func() {
		defer workers.Done()
		answerWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		completionWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

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

	// 2. Stop every countdown. Unfinished answers stay in the Redis journal
	//    and are restored when students reconnect to the next process.
	coordinator.Shutdown()

	// 3. Hijacked websocket connections are not covered by srv.Shutdown.
	hub.CloseAll()

	// 4. Stop background workers and wait for them to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}
