package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prism-infra/prism-sync/config"
	"github.com/prism-infra/prism-sync/internal/bootstrap"
	"github.com/prism-infra/prism-sync/internal/changefeed"
	"github.com/prism-infra/prism-sync/internal/history"
	"github.com/prism-infra/prism-sync/internal/remote"
	cronjob "github.com/prism-infra/prism-sync/internal/risksync/cron"
	"github.com/prism-infra/prism-sync/internal/session"
	"github.com/prism-infra/prism-sync/internal/storage/postgres"
)

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Batch risk refresh for the PRISM project store",
	Long: `Runs predict-and-save over every project visible to the worker session.

Available subcommands:
  refresh  - run one pass now and exit
  schedule - run passes on REFRESH_CRON until interrupted`,
	SilenceUsage: true,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one batch risk refresh",
	RunE:  runRefresh,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run batch risk refreshes on a cron schedule",
	RunE:  runSchedule,
}

var cronExpr string

func init() {
	scheduleCmd.Flags().StringVar(&cronExpr, "cron", "", "six-field cron expression (defaults to REFRESH_CRON)")
	rootCmd.AddCommand(refreshCmd, scheduleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// env holds what both subcommands share. closeFn releases its connections.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	job     *cronjob.RefreshJob
	closeFn func()
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Worker.SessionToken == "" {
		return nil, fmt.Errorf("WORKER_SESSION_TOKEN is required")
	}

	logger, err := bootstrap.NewLogger(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		return nil, err
	}

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout,
		remote.WithPredictRate(rate.Limit(cfg.Remote.PredictRate), cfg.Remote.PredictBurst),
		remote.WithLogger(logger),
	)
	job := &cronjob.RefreshJob{
		Session:   session.Session{Token: cfg.Worker.SessionToken, UserID: cfg.Worker.UserID},
		Store:     client,
		Predictor: client,
		Logger:    logger,
	}
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis); err != nil {
		logger.Warn("change feed disabled", zap.Error(err))
	} else {
		job.Notifier = changefeed.NewPublisher(rdb, cfg.ChangeFeed.Channel)
		closers = append(closers, func() { rdb.Close() })
	}

	if cfg.HistoryEnabled() {
		db, err := postgres.NewConnection(ctx, &cfg.Database)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, func() { db.Close() })

		runs := history.NewRepository(db)
		if err := runs.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, err
		}
		job.Recorder = runs
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		job:    job,
		closeFn: func() {
			closeAll()
			_ = logger.Sync()
		},
	}, nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.closeFn()

	res, err := e.job.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d of %d projects\n", len(res.Results), res.Attempted())
	if len(res.Failures) > 0 {
		return fmt.Errorf("%d projects failed to refresh", len(res.Failures))
	}
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.closeFn()

	expr := cronExpr
	if expr == "" {
		expr = e.cfg.Worker.RefreshCron
	}
	sched, err := cronjob.NewScheduler(expr, e.job, e.logger)
	if err != nil {
		return err
	}
	sched.Start()
	e.logger.Info("waiting for schedule", zap.String("cron", expr))

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Remote.Timeout)
	defer cancel()
	return sched.Stop(stopCtx)
}
