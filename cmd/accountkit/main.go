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

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/accountkit/internal/accounts"
	"github.com/odyssey-erp/accountkit/internal/app"
	"github.com/odyssey-erp/accountkit/internal/auth"
	"github.com/odyssey-erp/accountkit/internal/forms"
	"github.com/odyssey-erp/accountkit/internal/mail"
	"github.com/odyssey-erp/accountkit/internal/middleware"
	"github.com/odyssey-erp/accountkit/internal/observability"
	"github.com/odyssey-erp/accountkit/internal/platform/cache"
	"github.com/odyssey-erp/accountkit/internal/platform/db"
	"github.com/odyssey-erp/accountkit/internal/shared"
	"github.com/odyssey-erp/accountkit/internal/view"
	"github.com/odyssey-erp/accountkit/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("accountkit exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer dbpool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, dbpool); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(asynqOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	accountService := accounts.NewService(
		accounts.NewRepository(dbpool),
		mail.NewActivationMailer(jobClient),
		accounts.ServiceConfig{DefaultEmailSendingDomain: cfg.DefaultEmailSendingDomain, Logger: logger},
	)
	authService := auth.NewService(accountService, metrics, logger)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, forms.Styler{DefaultInputClass: cfg.DefaultFormInputClass})

	hosts, err := middleware.NewAllowedHosts(middleware.AllowedHostsConfig{
		Patterns:       cfg.HostPatterns(),
		DefaultDomain:  cfg.DefaultDomain,
		Disabled:       cfg.AllowedHostsDisabled,
		ProxySSLHeader: cfg.SecureProxyHeader,
		ProxySSLValue:  cfg.SecureProxyValue,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	inspector := asynq.NewInspector(asynqOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Templates:       templates,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AllowedHosts:    hosts,
		Timezones:       accountService,
		Accounts:        accountService,
		AuthHandler:     authHandler,
		AccountsHandler: accounts.NewHandler(logger, accountService),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
