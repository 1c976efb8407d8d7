/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the installment ledger server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config from the environment, apply flag overrides
  2. Initialize SQLite store
  3. Connect the Redis account cache (optional)
  4. Build the ledger service and API handler
  5. Optionally seed a demo scenario
  6. Start the arrears sweep and the HTTP server

COMMAND-LINE FLAGS:
  -addr      HTTP listen address (overrides APP_ADDR)
  -db        SQLite database path (overrides DB_PATH)
             Use ":memory:" for in-memory database
  -scenario  Seed a demo scenario on startup (e.g. "demo")

ENVIRONMENT:
  See config/config.go. REDIS_ADDR empty disables the cache.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the arrears sweep
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database and cache connections

EXAMPLES:
  ./server -db="./data/ledger.db"
  ./server -db=":memory:" -scenario=demo
  REDIS_ADDR=127.0.0.1:6379 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - ledger/service.go: Operations
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vallemart2000/desarrolladora-sql/api"
	"github.com/vallemart2000/desarrolladora-sql/cache"
	"github.com/vallemart2000/desarrolladora-sql/config"
	"github.com/vallemart2000/desarrolladora-sql/ledger"
	"github.com/vallemart2000/desarrolladora-sql/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Flags
	addr := flag.String("addr", cfg.AppAddr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	scenario := flag.String("scenario", "", "Seed a demo scenario on startup")
	flag.Parse()

	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *addr, *dbPath, *scenario); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, addr, dbPath, scenario string) error {
	ctx := context.Background()

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := ledger.NewService(store, policy, logger)
	svc.TokenTTL = cfg.CancelTokenTTL

	if cfg.CacheEnabled() {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		svc.Cache = cache.NewAccountCache(client, cfg.CacheTTL)
		logger.Info("account cache enabled", slog.String("redis_addr", cfg.RedisAddr))
	}

	handler := api.NewHandler(svc, logger)
	if !cfg.IsProduction() {
		handler.Seeder = store
	}

	if scenario != "" {
		if err := api.LoadScenario(ctx, store, svc, scenario); err != nil {
			return err
		}
		logger.Info("scenario loaded", slog.String("scenario", scenario))
	}

	sweep := api.NewArrearsSweep(svc, logger)
	sweep.CheckInterval = cfg.SweepInterval
	sweep.Start()
	defer sweep.Stop()

	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		WriteRateLimit: cfg.RateLimitPerMinute,
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		IdleTimeout:  cfg.AppIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("db", dbPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
