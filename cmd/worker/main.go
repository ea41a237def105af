package main

import (
	"context"
	"errors"
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
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
	}, logger)
	if err != nil {
		logger.Error("init smtp sender", slog.Any("error", err))
		os.Exit(1)
	}

	registry := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(registry.Registerer())
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	mailJob := &jobs.MailJob{Sender: sender, Logger: logger, Metrics: metrics}
	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
	}
	var cron []jobs.CronRegistration

	// Reminders run inside the worker only when a schedule is configured;
	// otherwise cmd/reminders owns them.
	if cfg.RemindersCron != "" {
		pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()

		client := jobs.NewClient(redisOpts)
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()

		batch := reminders.NewBatch(accounts.NewRepository(pool), mail.NewActivationMailer(client), reminders.BatchConfig{
			MinAge:      cfg.RemindersMinAge,
			ResendAfter: cfg.RemindersResendAfter,
			BatchSize:   cfg.RemindersBatchSize,
			Concurrency: cfg.RemindersConcurrency,
			Domain:      cfg.DefaultEmailSendingDomain,
			Logger:      logger,
			Metrics:     metrics,
		})
		remindersJob := &jobs.RemindersJob{Batch: batch, Logger: logger, Metrics: metrics}
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskActivationReminders, Handler: remindersJob.Handle})
		cron = append(cron, jobs.CronRegistration{Spec: cfg.RemindersCron, Task: jobs.NewActivationRemindersTask()})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return registry.Serve(gctx, cfg.MetricsAddr)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
