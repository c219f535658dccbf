package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/core-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/core-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/core-ledger/internal/app"
	"github.com/odyssey-erp/core-ledger/internal/observability"
	"github.com/odyssey-erp/core-ledger/internal/platform/cache"
	"github.com/odyssey-erp/core-ledger/internal/platform/db"
	"github.com/odyssey-erp/core-ledger/internal/shared"
	"github.com/odyssey-erp/core-ledger/jobs"
)

const usage = `usage: odyssey [command]

commands:
  serve                        run the HTTP API (default)
  migrate [up|down|status|version|reset]
  integrity [-tenant ID] [-json]
  jobs trigger [-tenant ID] <task>
  jobs stats`

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

	var code int
	switch command {
	case "serve":
		code = serve(ctx, stop, cfg, logger)
	case "migrate":
		code = migrate(ctx, cfg, logger, args)
	case "integrity":
		code = integrity(ctx, cfg, logger, args)
	case "jobs":
		code = jobsCommand(ctx, cfg, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		code = 2
	}
	stop()
	os.Exit(code)
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) int {
	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer dbpool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.CacheOptions()); err != nil {
		logger.Warn("redis unavailable, hierarchy cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	repo := accounts.NewRepository(dbpool)
	factory := &accounts.Factory{
		Repo:     repo,
		Policies: accounts.NewPolicies(),
		Logger:   logger,
		Cache:    accounts.NewHierarchyCache(redisClient, cfg.HierarchyCacheTTL, logger),
		Audit:    shared.NewAuditLogger(dbpool),
		Observer: metrics,
	}

	var (
		scans      accounts.IntegrityScanEnqueuer
		jobHandler *jobs.Handler
	)
	if redisClient != nil {
		redisOpts := cfg.QueueOptions()
		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init jobs client", slog.Any("error", err))
			return 1
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		scans = client

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(logger, factory, scans),
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}
	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, direction); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	logger.Info("migrate complete", slog.String("command", direction))
	return 0
}

func integrity(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("integrity", flag.ContinueOnError)
	tenant := fs.String("tenant", "", "scan a single tenant")
	asJSON := fs.Bool("json", false, "print a JSON summary")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	helper, err := cli.NewIntegrityCLI(accounts.NewRepository(pool), logger)
	if err != nil {
		logger.Error("init integrity cli", slog.Any("error", err))
		return 1
	}
	return helper.Command(ctx, cli.IntegrityOptions{TenantID: *tenant, JSONOutput: *asJSON})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	helper, err := cli.NewJobsCLI(cfg.QueueOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() {
		_ = helper.Close()
	}()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		tenant := fs.String("tenant", "", "tenant to scope the job to")
		if err := fs.Parse(args[1:]); err != nil || fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, usage)
			return 2
		}
		info, err := helper.Trigger(ctx, fs.Arg(0), *tenant)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := helper.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		scheduled, err := helper.ListScheduled(ctx, 10)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		for _, task := range scheduled {
			fmt.Printf("  scheduled %s id=%s next=%s\n", task.Type, task.ID, task.NextProcessAt.Format(time.RFC3339))
		}
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	return 0
}
