package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tragel/adminconsole/cmd/adminconsole/cli"
	"github.com/tragel/adminconsole/internal/app"
	"github.com/tragel/adminconsole/internal/console"
	"github.com/tragel/adminconsole/internal/directory"
	"github.com/tragel/adminconsole/internal/observability"
	"github.com/tragel/adminconsole/internal/panel"
	"github.com/tragel/adminconsole/internal/platform/cache"
	"github.com/tragel/adminconsole/internal/platform/db"
	"github.com/tragel/adminconsole/internal/shared"
	"github.com/tragel/adminconsole/internal/subscription"
	"github.com/tragel/adminconsole/internal/upstream"
	"github.com/tragel/adminconsole/internal/view"
)

const sessionCookie = "console_session"

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

	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	case "table":
		os.Exit(runTable(ctx, cfg, logger, args))
	default:
		fmt.Fprintf(os.Stderr, "usage: adminconsole [serve | table [-format text|csv|json] <products|staff> <url>]\n")
		os.Exit(cli.ExitUsage)
	}
}

func newUpstream(cfg *app.Config, logger *slog.Logger, recorder upstream.Recorder) (*upstream.Client, error) {
	return upstream.NewClient(upstream.Options{
		BaseURL:  cfg.UpstreamBaseURL,
		Timeout:  cfg.UpstreamTimeout,
		Recorder: recorder,
		Logger:   logger,
	})
}

func newMoney(cfg *app.Config, logger *slog.Logger) panel.MoneyFormatter {
	money, err := panel.NewCurrencyFormatter(cfg.Currency, cfg.CurrencyLocale)
	if err != nil {
		logger.Warn("currency formatter, falling back to plain amounts", slog.Any("error", err))
		return panel.PlainMoney{}
	}
	return money
}

func runTable(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("table", flag.ContinueOnError)
	format := fs.String("format", "text", "output format: text, csv or json")
	if err := fs.Parse(args); err != nil {
		return cli.ExitUsage
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: adminconsole table [-format text|csv|json] <products|staff> <url>")
		return cli.ExitUsage
	}

	client, err := newUpstream(cfg, logger, nil)
	if err != nil {
		logger.Error("upstream client", slog.Any("error", err))
		return cli.ExitUsage
	}
	tables, err := cli.NewTableCLI(panel.NewBoard(client, newMoney(cfg, logger), logger))
	if err != nil {
		logger.Error("table cli", slog.Any("error", err))
		return cli.ExitUsage
	}
	return tables.TableCommand(ctx, cli.TableOptions{
		Kind:   fs.Arg(0),
		URL:    fs.Arg(1),
		Format: *format,
	})
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var issuances subscription.IssuanceRecorder
	if cfg.ActivityLogEnabled() {
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 4})
		if err != nil {
			return err
		}
		defer pool.Close()
		activity, err := newActivityLog(ctx, pool)
		if err != nil {
			return err
		}
		issuances = activity
	} else {
		logger.Info("PG_DSN not set, key issuance log disabled")
	}

	metrics := observability.NewMetrics()
	client, err := newUpstream(cfg, logger, metrics)
	if err != nil {
		return err
	}
	money := newMoney(cfg, logger)

	templates, err := view.NewEngine()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	sessionManager := shared.NewSessionManager(redisClient, sessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	workspaces := console.NewWorkspaces(cfg.WorkspaceMax, cfg.WorkspaceTTL, func(sessionID string) *console.Workspace {
		wsLogger := logger.With(slog.String("session", sessionID))
		return &console.Workspace{
			Board: panel.NewBoard(client, money, wsLogger),
			Subscription: subscription.NewController(subscription.Options{
				Fetcher: client,
				Endpoints: subscription.Endpoints{
					LastSubscription: cfg.UpstreamSubscriptionsURL,
					Key:              cfg.UpstreamKeyURL,
				},
				Issuances: issuances,
				SessionID: sessionID,
				Logger:    wsLogger,
			}),
		}
	}, metrics)

	companies := directory.New(client, cfg.UpstreamCompaniesURL, redisClient, cfg.DirectoryTTL, logger)
	consoleHandler := console.NewHandler(logger, templates, sessionManager, csrfManager, workspaces, companies, console.Links{
		ProductsURL:   cfg.UpstreamProductsURL,
		ProductsParam: cfg.UpstreamProductsParam,
		StaffURL:      cfg.UpstreamStaffURL,
		StaffParam:    cfg.UpstreamStaffParam,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		ConsoleHandler: consoleHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}

func newActivityLog(ctx context.Context, pool *pgxpool.Pool) (*shared.ActivityLog, error) {
	activity := shared.NewActivityLog(pool)
	if err := activity.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("activity log schema: %w", err)
	}
	return activity, nil
}
