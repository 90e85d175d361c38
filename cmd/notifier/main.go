// Command huisjacht-notifier runs the delivery side of the pipeline: the
// delivery worker drains the notification queue through the Telegram
// transport, and a cron schedule performs the queue retention GC. It
// also exposes the one-shot user admin commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/huisjacht/huisjacht/internal/chattransport"
	"github.com/huisjacht/huisjacht/internal/config"
	"github.com/huisjacht/huisjacht/internal/delivery"
	"github.com/huisjacht/huisjacht/internal/obs"
	"github.com/huisjacht/huisjacht/internal/store"
)

const gcRetentionDays = 30

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "huisjacht-notifier:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, cli, err := config.ParseNotifierArgs(os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.Validate(true); err != nil {
		return err
	}

	log, err := obs.NewLogger(os.Getenv("ENV") == "dev")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(ctx, cfg.DatabaseDSN, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(cfg.DatabaseDSN); err != nil {
		return err
	}

	if handled, err := runCLICommands(ctx, db, cli); handled {
		return err
	}

	bot, err := chattransport.New(cfg.BotToken)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	worker := delivery.New(db, bot, delivery.Config{
		BatchSize:        cfg.BatchSize,
		MaxPerUserPerDay: cfg.MaxPerUserPerDay,
		RetryAttempts:    cfg.RetryAttempts,
		InterMessageGap:  100 * time.Millisecond,
		GCRetention:      gcRetentionDays * 24 * time.Hour,
		Metrics:          metrics,
	}, log)

	sched := cron.New()
	if _, err := sched.AddFunc("0 3 * * *", func() { worker.GC(ctx) }); err != nil {
		return fmt.Errorf("notifier: schedule gc: %w", err)
	}
	if _, err := sched.AddFunc("* * * * *", func() { reportQueueDepth(ctx, db, metrics) }); err != nil {
		return fmt.Errorf("notifier: schedule queue depth gauge: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	srv := obs.NewServer(reg, log)
	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- obs.Serve(ctx, srv, fmt.Sprintf(":%d", cfg.HealthPort), log)
	}()

	stopCh := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stopCh)
	}()
	if err := worker.Run(ctx, cfg.NotificationInterval, stopCh); err != nil && ctx.Err() == nil {
		return err
	}
	return <-srvErrCh
}

// runCLICommands executes at most one of the docopt-parsed one-shot user
// admin commands and reports whether it handled the invocation.
func runCLICommands(ctx context.Context, db *store.Store, cli *config.NotifierCLI) (bool, error) {
	switch {
	case cli.ListUsers:
		users, err := db.ListUsers(ctx)
		if err != nil {
			return true, err
		}
		for _, u := range users {
			fmt.Printf("%d\t%s\tadmin=%v\tactive=%v\n", u.UserID, u.Username, u.IsAdmin, u.IsActive)
		}
		return true, nil
	case cli.HasSetAdmin:
		if err := db.SetAdmin(ctx, cli.SetAdminID, cli.SetAdminValue); err != nil {
			return true, err
		}
		return true, nil
	case cli.HasDeactivate:
		if err := db.DeactivateUser(ctx, cli.DeactivateUser); err != nil {
			return true, err
		}
		return true, nil
	}
	return false, nil
}

func reportQueueDepth(ctx context.Context, db *store.Store, metrics *obs.Metrics) {
	depth, err := db.QueueDepth(ctx)
	if err != nil {
		return
	}
	metrics.QueueDepth.Set(float64(depth))
}
