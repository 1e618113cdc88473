package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifesim/internal/advisory"
	"lifesim/internal/config"
	"lifesim/internal/db"
	"lifesim/internal/depreciation"
	"lifesim/internal/jobs"
	"lifesim/internal/metrics"
	"lifesim/internal/notify"
	"lifesim/internal/scheduler"
	"lifesim/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
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

	st := store.New(pool, logger)
	dispatcher := notify.NewDispatcher(st, notify.NewExpoClient(cfg.ExpoPushURL), logger)
	depreciationEngine := depreciation.NewEngine(st, dispatcher, logger)
	advisoryEngine := advisory.NewEngine(st, dispatcher, advisory.Config{
		DailyLimit:   cfg.DailyMessageLimit,
		ActiveWindow: cfg.ActiveWindow,
	}, logger)

	collector := metrics.NewCollector(logger)
	sched := scheduler.New(collector, logger)

	depreciationJob := jobs.NewDepreciationJob(depreciationEngine, collector, logger)
	backfillJob := jobs.NewBackfillJob(depreciationEngine, logger)
	advisoryJob := jobs.NewAdvisoryJob(advisoryEngine, collector)

	if cfg.RunOnce != "" {
		var job scheduler.Job
		switch cfg.RunOnce {
		case "depreciation":
			job = depreciationJob
		case "backfill":
			job = backfillJob
		case "advisory":
			job = advisoryJob
		}
		if err := sched.RunNow(ctx, job); err != nil {
			logger.Error("run-once failed", "job", job.Name(), "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "job", job.Name())
		return
	}

	if err := sched.AddJob(cfg.DepreciationSchedule, depreciationJob); err != nil {
		logger.Error("schedule depreciation", "err", err)
		os.Exit(1)
	}
	if err := sched.AddJob(cfg.AdvisorySchedule, advisoryJob); err != nil {
		logger.Error("schedule advisory", "err", err)
		os.Exit(1)
	}

	metricsServer := collector.StartServer(cfg.MetricsAddr)
	sched.Start()
	logger.Info("worker started",
		"depreciation_schedule", cfg.DepreciationSchedule,
		"advisory_schedule", cfg.AdvisorySchedule,
		"daily_limit", cfg.DailyMessageLimit,
	)

	<-ctx.Done()
	logger.Info("worker shutdown")
	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
