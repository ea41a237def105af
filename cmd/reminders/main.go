package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/accountkit/internal/accounts"
	"github.com/odyssey-erp/accountkit/internal/app"
	jobmetrics "github.com/odyssey-erp/accountkit/internal/jobs"
	"github.com/odyssey-erp/accountkit/internal/mail"
	"github.com/odyssey-erp/accountkit/internal/observability"
	"github.com/odyssey-erp/accountkit/internal/platform/db"
	"github.com/odyssey-erp/accountkit/internal/reminders"
	"github.com/odyssey-erp/accountkit/jobs"
)

func main() {
	once := flag.Bool("once", false, "send one reminder batch and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	registry := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(registry.Registerer())
	batch := reminders.NewBatch(accounts.NewRepository(pool), mail.NewActivationMailer(client), reminders.BatchConfig{
		MinAge:      cfg.RemindersMinAge,
		ResendAfter: cfg.RemindersResendAfter,
		BatchSize:   cfg.RemindersBatchSize,
		Concurrency: cfg.RemindersConcurrency,
		Domain:      cfg.DefaultEmailSendingDomain,
		Logger:      logger,
		Metrics:     metrics,
	})

	mode := runMode(*once, cfg.RemindersRunOnce, app.InTestMode())
	runner := reminders.NewRunner(batch.Run, reminders.RunnerConfig{
		Mode:     mode,
		Interval: cfg.RemindersInterval,
		Logger:   logger,
		Metrics:  metrics,
	})

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	g.Go(func() error {
		defer cancel()
		return runner.Run(runCtx)
	})
	if mode == reminders.ModeLoop && cfg.MetricsAddr != "" {
		g.Go(func() error {
			return registry.Serve(runCtx, cfg.MetricsAddr)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("reminders", slog.Any("error", err))
		os.Exit(1)
	}
}

// runMode never loops under test so a stray invocation cannot hang a suite.
func runMode(flagOnce, envOnce, testMode bool) reminders.Mode {
	if flagOnce || envOnce || testMode {
		return reminders.ModeOnce
	}
	return reminders.ModeLoop
}
