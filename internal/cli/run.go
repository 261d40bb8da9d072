package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Swind/go-affinity-scheduler/core"
	"github.com/Swind/go-affinity-scheduler/internal/config"
	"github.com/Swind/go-affinity-scheduler/internal/httpapi"
	"github.com/Swind/go-affinity-scheduler/internal/journal"
	"github.com/Swind/go-affinity-scheduler/internal/logging"
	affprom "github.com/Swind/go-affinity-scheduler/observability/prometheus"
)

func newRunCmd() *cobra.Command {
	var (
		demo     bool
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return runDaemon(ctx, cfg, newLogger(cfg), demo, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&demo, "demo", false, "Submit repeating demo tasks to every pool")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

// runDaemon wires the scheduler, its windows, metrics, journal and HTTP API,
// blocks until ctx is done and then tears everything down in reverse order.
func runDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger, demo bool, out io.Writer) error {
	started := time.Now()
	instanceID := uuid.NewString()

	reg := prom.NewRegistry()
	exporter, err := affprom.NewMetricsExporter(cfg.Metrics.Namespace, reg, affprom.ExporterOptions{})
	if err != nil {
		return fmt.Errorf("metrics exporter: %w", err)
	}

	opts := cfg.SchedulerOptions()
	opts.InstanceID = instanceID
	opts.Logger = logging.ForScheduler(logger)
	opts.Metrics = exporter

	var (
		store  *journal.Store
		writer *journal.Writer
	)
	if cfg.Journal.Path != "" {
		store, err = journal.Open(ctx, cfg.Journal.Path, logging.Component(logger, "journal"))
		if err != nil {
			return err
		}
		defer store.Close()
		writer = journal.NewWriter(store, instanceID, cfg.Journal.BufferSize, logging.Component(logger, "journal"))
		opts.ExecutionObserver = writer
		logger.Info("journal ready", "path", cfg.Journal.Path)
	}

	sched := core.New(opts)
	if writer != nil {
		detach := writer.Attach(sched)
		defer func() {
			detach()
			writer.Close()
		}()
	}
	// Runs before the journal is closed so the final completions are written.
	defer sched.Shutdown()

	if err := sched.Start(ctx); err != nil {
		return err
	}

	api := httpapi.New(sched, logging.Component(logger, "http"),
		httpapi.WithJournal(store),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	)

	for _, name := range cfg.Windows {
		w := core.NewHeadlessWindow(name)
		n, err := sched.CreateContextWorkers(w)
		if err != nil {
			logger.Error("window has no context workers", "window", name, "error", err)
			continue
		}
		api.AddWindow(w)
		logger.Info("window opened", "window", name, "workers", n)
		if demo {
			submitDemo(sched, logger, w)
		}
	}
	if demo {
		submitDemo(sched, logger, nil)
	}

	poller, err := affprom.NewSnapshotPoller(cfg.Metrics.Namespace, reg, time.Duration(cfg.Metrics.PollInterval))
	if err != nil {
		return fmt.Errorf("snapshot poller: %w", err)
	}
	poller.AddScheduler("affinityd", sched)
	poller.Start(ctx)
	defer poller.Stop()

	var httpServer *http.Server
	if cfg.Metrics.Listen != "" {
		httpServer = &http.Server{Addr: cfg.Metrics.Listen, Handler: api}
		go func() {
			logger.Info("http server starting", "addr", cfg.Metrics.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
	}
	sched.Shutdown()

	fmt.Fprintf(out, "instance %s ran %s, completed %s tasks, rejected %s\n",
		instanceID,
		time.Since(started).Round(time.Millisecond),
		humanize.Comma(sched.CompletedCount()),
		humanize.Comma(sched.RejectedCount()),
	)
	if writer != nil && writer.Dropped() > 0 {
		fmt.Fprintf(out, "journal dropped %s events\n", humanize.Comma(writer.Dropped()))
	}
	return nil
}

// submitDemo queues a repeating task that simulates a frame on w, or a
// background job when w is nil.
func submitDemo(sched *core.Scheduler, logger *slog.Logger, w core.Window) {
	name, opts := "background", []core.TaskOption{core.WithRepeating(), core.WithPriority(core.PriorityLowest)}
	if w != nil {
		name = "frame:" + w.Name()
		opts = []core.TaskOption{core.WithRepeating(), core.WithWindow(w), core.WithPriority(core.PriorityHighest)}
	}
	opts = append(opts, core.WithName(name))

	id, err := sched.Submit(core.NewFuncTask(func(ctx context.Context) {
		timer := time.NewTimer(16 * time.Millisecond)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}, opts...))
	if err != nil {
		logger.Error("demo task rejected", "name", name, "error", err)
		return
	}
	logger.Debug("demo task submitted", "name", name, "id", id)
}
