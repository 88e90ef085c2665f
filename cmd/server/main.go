package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/storymint/mint-pipeline/internal/api"
	"github.com/storymint/mint-pipeline/internal/chain"
	"github.com/storymint/mint-pipeline/internal/config"
	"github.com/storymint/mint-pipeline/internal/domain"
	"github.com/storymint/mint-pipeline/internal/ledger"
	"github.com/storymint/mint-pipeline/internal/saga"
	"github.com/storymint/mint-pipeline/internal/store"
	"github.com/storymint/mint-pipeline/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL through the retrying connector
	connector := store.NewConnector(store.ConnectorConfig{
		URL:        cfg.DatabaseURL,
		MaxRetries: cfg.DBMaxRetries,
		RetryDelay: cfg.DBRetryDelay,
	}, logger)
	connector.RegisterShutdownHook()

	pgStore, err := store.NewPostgres(ctx, connector, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Circuit breaker state lives in Redis so it is shared across
	// dispatcher processes
	breaker, err := chain.DialBreaker(ctx, cfg.RedisURL, cfg.ChainRPCURL, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer breaker.Close()
	logger.Info("connected to Redis")

	// Chain client behind the circuit breaker
	evmClient, err := chain.DialEVM(ctx, cfg.ChainRPCURL, cfg.ContractAddress, cfg.ChainPrivateKey)
	if err != nil {
		logger.Error("failed to initialize chain client", "error", err)
		os.Exit(1)
	}
	chainClient := chain.NewGuardedClient(evmClient, breaker)

	// Services
	ledgerSvc := ledger.NewService(pgStore, logger)
	mintSaga := saga.NewMintSaga(pgStore, chainClient, logger)

	// Dispatcher: the pipeline's single sequential worker
	dispatcher := worker.NewDispatcher(pgStore, cfg.PollInterval, cfg.OutboxMaxRetries, logger)
	dispatcher.Register(domain.EventMintRequested, mintSaga.Handle)
	go dispatcher.Start(ctx)

	// Reconciliation sweep for royalty transactions stuck in pending
	reconciler := ledger.NewReconciler(pgStore, logger)
	go reconciler.Start(ctx)

	// Setup router
	router := api.NewRouter(pgStore, ledgerSvc, cfg.InternalAPIKey)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
