package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifesim/internal/advisory"
	"lifesim/internal/api"
	"lifesim/internal/auth"
	"lifesim/internal/config"
	"lifesim/internal/db"
	"lifesim/internal/depreciation"
	"lifesim/internal/metrics"
	"lifesim/internal/notify"
	"lifesim/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Error("migrate failed", "err", err)
			os.Exit(1)
		}
	}

	st := store.New(pool, logger)
	if cfg.SeedDefaults {
		if err := st.SeedDefaults(ctx); err != nil {
			logger.Error("seed defaults failed", "err", err)
			os.Exit(1)
		}
	}

	dispatcher := notify.NewDispatcher(st, notify.NewExpoClient(cfg.ExpoPushURL), logger)
	supabase := auth.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)

	server := api.New(cfg, logger, api.Deps{
		Auth:        supabase,
		Verifier:    auth.NewCachedVerifier(supabase, cfg.TokenCacheSize, cfg.TokenCacheTTL),
		Players:     st,
		Liabilities: depreciation.NewEngine(st, dispatcher, logger),
		Advisor:     advisory.NewEngine(st, dispatcher, advisory.Config{}, logger),
		Metrics:     metrics.NewCollector(logger),
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("lifesim api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
