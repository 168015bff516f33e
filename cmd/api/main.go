package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agent-payment-ledger/config"
	httpHandler "agent-payment-ledger/internal/adapter/http/handler"
	pgStorage "agent-payment-ledger/internal/adapter/storage/postgres"
	redisStorage "agent-payment-ledger/internal/adapter/storage/redis"
	"agent-payment-ledger/internal/core/ports"
	"agent-payment-ledger/internal/service"
	"agent-payment-ledger/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Agent Payment Ledger")

	// Parse the authorization policy up front so a bad money string fails
	// boot instead of a request.
	rules, err := service.RulesFromConfig(cfg.Ledger)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid ledger configuration")
	}

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	agentRepo := pgStorage.NewAgentRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	hasher := service.NewCredentialService()

	// Initialize business services
	ledgerSvc := service.NewLedgerService(
		txRepo,
		walletRepo,
		idempotencyRepo,
		idempotencyCache,
		transactor,
		rules,
		log,
	)
	registrySvc := service.NewRegistryService(agentRepo, walletRepo, transactor, hasher, rules, log)
	reportingSvc := service.NewReportingService(txRepo, agentRepo, walletRepo, rules)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthChecker(pool)
	redisHealth := redisStorage.NewHealthChecker(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		RegistrySvc:    registrySvc,
		ReportingSvc:   reportingSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
