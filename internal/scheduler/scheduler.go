package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/newswatch/browserpool/internal/events"
	"github.com/newswatch/browserpool/internal/health"
	"github.com/newswatch/browserpool/internal/janitor"
	"github.com/newswatch/browserpool/internal/tasks"
)

// Options sets the periodic cadences. Zero values take the defaults below.
type Options struct {
	SweepInterval        time.Duration
	ProcessCheckInterval time.Duration
	EventsMaxAge         time.Duration
}

func (o Options) withDefaults() Options {
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Minute
	}
	if o.ProcessCheckInterval <= 0 {
		o.ProcessCheckInterval = 5 * time.Minute
	}
	if o.EventsMaxAge <= 0 {
		o.EventsMaxAge = 7 * 24 * time.Hour
	}
	return o
}

// Service runs pool maintenance through a Redis-backed task queue, so a fleet
// of processes shares one periodic schedule instead of each running its own
// ticker.
type Service struct {
	janitor   *janitor.Janitor
	reporter  *health.Reporter
	store     *events.Store
	log       *zap.Logger
	opts      Options
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
}

func New(redisOpt asynq.RedisClientOpt, jan *janitor.Janitor, reporter *health.Reporter, store *events.Store, opts Options, log *zap.Logger) *Service {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				"default": 10,
				"low":     1,
			},
		},
	)

	sched := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	mux := asynq.NewServeMux()

	s := &Service{
		janitor:   jan,
		reporter:  reporter,
		store:     store,
		log:       log,
		opts:      opts.withDefaults(),
		server:    srv,
		scheduler: sched,
		mux:       mux,
	}

	mux.HandleFunc(tasks.TypePoolSweep, s.handlePoolSweep)
	mux.HandleFunc(tasks.TypeProcessCheck, s.handleProcessCheck)
	mux.HandleFunc(tasks.TypeEventsPrune, s.handleEventsPrune)

	return s
}

// Start registers the periodic entries and runs the task server until Stop.
func (s *Service) Start() error {
	if err := s.registerPeriodic(); err != nil {
		return err
	}

	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	s.log.Info("scheduler service started",
		zap.Duration("sweep_interval", s.opts.SweepInterval),
		zap.Duration("process_check_interval", s.opts.ProcessCheckInterval))
	return s.server.Run(s.mux)
}

func (s *Service) Stop() {
	s.log.Info("stopping scheduler service")
	s.scheduler.Shutdown()
	s.server.Shutdown()
}

func (s *Service) registerPeriodic() error {
	sweepTask, err := tasks.NewPoolSweepTask(tasks.PoolSweepPayload{TriggeredBy: "scheduler"})
	if err != nil {
		return err
	}
	if _, err := s.scheduler.Register(
		every(s.opts.SweepInterval), sweepTask,
		asynq.Queue(tasks.GetQueueForTask(tasks.TypePoolSweep)),
	); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}

	checkTask, err := tasks.NewProcessCheckTask(tasks.ProcessCheckPayload{})
	if err != nil {
		return err
	}
	if _, err := s.scheduler.Register(
		every(s.opts.ProcessCheckInterval), checkTask,
		asynq.Queue(tasks.GetQueueForTask(tasks.TypeProcessCheck)),
	); err != nil {
		return fmt.Errorf("register process check: %w", err)
	}

	pruneTask, err := tasks.NewEventsPruneTask(tasks.EventsPrunePayload{
		MaxAgeHours: int(s.opts.EventsMaxAge.Hours()),
	})
	if err != nil {
		return err
	}
	if _, err := s.scheduler.Register(
		"@every 24h", pruneTask,
		asynq.Queue(tasks.GetQueueForTask(tasks.TypeEventsPrune)),
	); err != nil {
		return fmt.Errorf("register events prune: %w", err)
	}

	return nil
}

func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

func (s *Service) handlePoolSweep(ctx context.Context, t *asynq.Task) error {
	var payload tasks.PoolSweepPayload
	if err := payload.Unmarshal(t.Payload()); err != nil {
		return err
	}

	result := s.janitor.Sweep(ctx, payload.TriggeredBy)
	s.log.Info("scheduled sweep finished",
		zap.Int("workers", result.WorkersSwept),
		zap.Int("retired", result.Retired))
	return nil
}

func (s *Service) handleProcessCheck(ctx context.Context, t *asynq.Task) error {
	var payload tasks.ProcessCheckPayload
	if err := payload.Unmarshal(t.Payload()); err != nil {
		return err
	}

	report, err := s.reporter.CheckProcesses(ctx)
	if err != nil {
		return err
	}

	if s.store != nil {
		ev := &events.ProcessCheckEvent{
			Observed:  report.Observed,
			Accounted: report.Accounted,
			Leaked:    report.Leaked,
			Degraded:  report.Degraded,
		}
		if err := s.store.RecordProcessCheck(ctx, ev); err != nil {
			s.log.Warn("failed to record process check", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) handleEventsPrune(ctx context.Context, t *asynq.Task) error {
	var payload tasks.EventsPrunePayload
	if err := payload.Unmarshal(t.Payload()); err != nil {
		return err
	}
	if s.store == nil {
		return nil
	}

	maxAge := time.Duration(payload.MaxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = s.opts.EventsMaxAge
	}

	deleted, err := s.store.Prune(ctx, maxAge)
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.log.Info("pruned old events", zap.Int64("deleted", deleted))
	}
	return nil
}
