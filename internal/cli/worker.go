package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/example/certs/internal/app"
	"github.com/example/certs/internal/wire"
)

// WorkerCmd returns the worker command
func WorkerCmd() *cobra.Command {
	var (
		concurrency int
		sweep       string
		staleAfter  time.Duration
		drain       bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run queued certificate and credentials tasks",
		Long: `Run the task dispatcher until interrupted.

Tasks sharing an ordering key (one learner in one course) run one at a time.
With --sweep, tasks stuck in the running state longer than --stale-after are
re-queued on the given cron schedule. With --drain, runnable tasks are
executed once and the worker exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dispatcher := wire.Dispatcher()
			logger := wire.Logger()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if drain {
				n, err := dispatcher.Drain(ctx)
				if err != nil {
					return fmt.Errorf("drain failed: %w", err)
				}
				fmt.Printf("✓ Ran %d task(s)\n", n)
				printMetrics(wire.Metrics())
				return nil
			}

			if sweep != "" {
				c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
				if _, err := c.AddFunc(sweep, func() {
					if _, err := dispatcher.RecoverStale(ctx, staleAfter); err != nil {
						logger.Error("stale task sweep failed", "error", err)
					}
				}); err != nil {
					return fmt.Errorf("invalid --sweep schedule %q: %w", sweep, err)
				}
				c.Start()
				defer c.Stop()
			}

			if concurrency <= 0 {
				concurrency = wire.Config().Concurrency
			}
			logger.Info("worker started", "concurrency", concurrency, "sweep", sweep)
			if err := dispatcher.RunWorkers(ctx, concurrency); err != nil {
				return fmt.Errorf("worker stopped: %w", err)
			}
			logger.Info("worker stopped")
			printMetrics(wire.Metrics())
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Number of workers (default from config)")
	cmd.Flags().StringVar(&sweep, "sweep", "", "Cron schedule for re-queueing stale tasks, e.g. \"@every 5m\"")
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 15*time.Minute, "Age after which a running task is considered stale")
	cmd.Flags().BoolVar(&drain, "drain", false, "Run until the queue is empty, then exit")
	return cmd
}

func printMetrics(m *app.Metrics) {
	snapshot := m.Snapshot()
	if len(snapshot) == 0 {
		return
	}
	fmt.Println("Counters:")
	for _, key := range app.SortedKeys(snapshot) {
		fmt.Printf("  %-40s %d\n", key, snapshot[key])
	}
}
