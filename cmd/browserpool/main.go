package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/newswatch/browserpool/internal/config"
	"github.com/newswatch/browserpool/internal/engine"
	"github.com/newswatch/browserpool/internal/events"
	"github.com/newswatch/browserpool/internal/health"
	"github.com/newswatch/browserpool/internal/janitor"
	"github.com/newswatch/browserpool/internal/logging"
	"github.com/newswatch/browserpool/internal/pool"
	"github.com/newswatch/browserpool/internal/router"
	"github.com/newswatch/browserpool/internal/scheduler"
	"github.com/newswatch/browserpool/internal/tasks"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "browserpool",
		Short: "Managed browser pool daemon",
		Long:  `browserpool runs per-worker pools of headless browsers with bounded reuse, periodic retirement, and OS-level process accounting`,
	}

	// Environment variable support
	viper.SetEnvPrefix("BROWSERPOOL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pool daemon",
		Long:  `Run the browser pool daemon with its HTTP API, janitor, and process watchdog`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Trigger a manual janitor sweep",
		Long:  `Enqueue a janitor sweep on the shared task queue (requires Redis)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep()
		},
	}
}

func checkCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Launch one browser and load a page",
		Long:  `Acquire a browser from a throwaway pool, load a page, and print the title; verifies the engine end to end`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(url)
		},
	}
	cmd.Flags().StringVar(&url, "url", "https://example.com", "URL to load")
	return cmd
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.Development})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	launcher, cleanup, err := newLauncher(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := pool.NewRegistry(pool.Limits{
		MaxPerWorker:   cfg.MaxBrowsersPerWorker,
		MaxAge:         cfg.MaxBrowserAge,
		MaxUsage:       cfg.MaxBrowserUsage,
		AcquireTimeout: cfg.AcquireTimeout,
	}, launcher, log)

	store, err := events.Open(cfg.EventsDSN)
	if err != nil {
		// The pool works without the event log; sweeps just go unrecorded.
		log.Warn("event log unavailable", zap.String("dsn", cfg.EventsDSN), zap.Error(err))
		store = nil
	}

	metrics := health.NewMetrics(nil)
	reporter := health.NewReporter(registry, metrics, log, health.Options{
		WarnThreshold: cfg.ProcessWarnThreshold,
		LeakTolerance: cfg.ProcessLeakTolerance,
	})
	jan := janitor.New(registry, store, metrics, cfg.SweepInterval, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RedisAddr != "" {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		svc := scheduler.New(redisOpt, jan, reporter, store, scheduler.Options{
			SweepInterval:        cfg.SweepInterval,
			ProcessCheckInterval: cfg.ProcessCheckInterval,
		}, log)
		go func() {
			if err := svc.Start(); err != nil {
				log.Error("scheduler service exited", zap.Error(err))
			}
		}()
		defer svc.Stop()
	} else {
		go jan.Start(ctx)
		go watchProcesses(ctx, reporter, store, cfg.ProcessCheckInterval, log)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router.New(reporter, store, nil, cfg.APIKey),
	}
	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server exited", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	registry.ShutdownAll()
	return nil
}

// watchProcesses runs the standalone watchdog loop when no task queue is
// configured.
func watchProcesses(ctx context.Context, reporter *health.Reporter, store *events.Store, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := reporter.CheckProcesses(ctx)
			if err != nil {
				log.Warn("process check failed", zap.Error(err))
				continue
			}
			if store != nil {
				ev := &events.ProcessCheckEvent{
					Observed:  report.Observed,
					Accounted: report.Accounted,
					Leaked:    report.Leaked,
					Degraded:  report.Degraded,
				}
				if err := store.RecordProcessCheck(ctx, ev); err != nil {
					log.Warn("failed to record process check", zap.Error(err))
				}
			}
		}
	}
}

func runSweep() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.RedisAddr == "" {
		return fmt.Errorf("manual sweep needs BROWSERPOOL_REDIS_ADDR; without Redis, sweep via the daemon's HTTP API")
	}

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()

	task, err := tasks.NewPoolSweepTask(tasks.PoolSweepPayload{TriggeredBy: "manual"})
	if err != nil {
		return err
	}

	info, err := client.Enqueue(task,
		asynq.Queue(tasks.GetQueueForTask(tasks.TypePoolSweep)),
		asynq.MaxRetry(1),
	)
	if err != nil {
		return fmt.Errorf("enqueue sweep: %w", err)
	}

	fmt.Printf("✓ Sweep enqueued (task %s on queue %s)\n", info.ID, info.Queue)
	return nil
}

func runCheck(url string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.Development})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	launcher, cleanup, err := newLauncher(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := pool.NewRegistry(pool.Limits{
		MaxPerWorker:   1,
		AcquireTimeout: 30 * time.Second,
	}, launcher, log)
	defer registry.ShutdownAll()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = pool.NewWorkerContext(ctx, "check")

	err = registry.WithPage(ctx, func(page engine.Page) error {
		if err := page.Goto(url); err != nil {
			return fmt.Errorf("load %s: %w", url, err)
		}
		title, err := page.Title()
		if err != nil {
			return err
		}
		fmt.Printf("✓ Loaded %s\n", url)
		fmt.Printf("  Title: %s\n", title)
		return nil
	})
	if err != nil {
		return err
	}

	for _, w := range registry.Snapshot() {
		fmt.Printf("  Pool %s: active=%d idle=%d max=%d\n",
			w.Worker, w.Active, w.Idle, w.MaxBrowsers)
	}
	return nil
}

// newLauncher builds the configured engine launcher and a cleanup for its
// shared resources.
func newLauncher(cfg config.Config) (engine.Launcher, func(), error) {
	switch cfg.Engine {
	case "playwright":
		l := engine.NewPlaywrightLauncher(cfg.Headless)
		return l, func() { l.Stop() }, nil
	case "docker":
		l, err := engine.NewDockerLauncher()
		if err != nil {
			return nil, nil, fmt.Errorf("init docker launcher: %w", err)
		}
		return l, func() { l.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine %q (want playwright or docker)", cfg.Engine)
	}
}
