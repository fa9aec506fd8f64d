package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/edgard/moderabot/internal/bot/tasks"
	"github.com/edgard/moderabot/internal/config"
	"github.com/edgard/moderabot/internal/logger"
)

// Scheduler manages scheduled tasks using the gocron library.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	cfg       *config.SchedulerConfig
	taskMap   map[string]tasks.ScheduledTaskFunc
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a new scheduler instance using gocron.
func NewScheduler(baseLogger *slog.Logger, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc) (*Scheduler, error) {
	if baseLogger == nil {
		baseLogger = slog.Default()
	}
	log := baseLogger.With("component", "scheduler")

	s, err := gocron.NewScheduler(gocron.WithLogger(logger.NewGocronLogger(baseLogger)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    log,
		cfg:       cfg,
		taskMap:   taskMap,
	}, nil
}

// Start schedules all enabled tasks and starts the scheduler. Every task run
// receives ctx, so cancelling it stops work in flight. Interval tasks start
// immediately and never overlap themselves: a run that outlasts its interval
// delays the next one instead of running alongside it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.logger.Debug("Configuring scheduler jobs...")

	if s.cfg == nil || len(s.cfg.Tasks) == 0 {
		s.logger.Warn("No scheduler tasks configured.")
		s.scheduler.Start()
		s.running = true
		return nil
	}

	names := make([]string, 0, len(s.cfg.Tasks))
	for name := range s.cfg.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	scheduledCount := 0
	for _, taskName := range names {
		taskConfig := s.cfg.Tasks[taskName]
		if !taskConfig.Enabled {
			s.logger.Info("Skipping disabled task", "task_name", taskName)
			continue
		}

		taskFunc, exists := s.taskMap[taskName]
		if !exists {
			s.logger.Warn("Scheduled task configured but not found in registry, skipping", "task_name", taskName)
			continue
		}

		definition, options, err := jobDefinition(taskConfig)
		if err != nil {
			s.logger.Warn("Skipping task", "task_name", taskName, "error", err)
			continue
		}

		_, err = s.scheduler.NewJob(
			definition,
			gocron.NewTask(s.wrap(taskName, taskFunc), ctx),
			append(options, gocron.WithName(taskName))...,
		)
		if err != nil {
			s.logger.Error("Failed to schedule task", "task_name", taskName, "error", err)
			continue
		}

		s.logger.Info("Scheduled task", "task_name", taskName, "interval", taskConfig.Interval, "schedule", taskConfig.Schedule)
		scheduledCount++
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler initialized and started", "tasks_scheduled", scheduledCount)

	return nil
}

func jobDefinition(tc config.TaskConfig) (gocron.JobDefinition, []gocron.JobOption, error) {
	switch {
	case tc.Interval > 0:
		return gocron.DurationJob(tc.Interval), []gocron.JobOption{
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		}, nil
	case tc.Schedule != "":
		return gocron.CronJob(tc.Schedule, true), []gocron.JobOption{
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		}, nil
	default:
		return nil, nil, fmt.Errorf("task has neither interval nor schedule")
	}
}

func (s *Scheduler) wrap(name string, taskFunc tasks.ScheduledTaskFunc) func(ctx context.Context) {
	return func(ctx context.Context) {
		if ctx.Err() != nil {
			return
		}
		s.logger.Debug("Running scheduled task", "task_name", name)
		startTime := time.Now()
		if taskErr := taskFunc(ctx); taskErr != nil {
			s.logger.Error("Scheduled task failed", "task_name", name, "error", taskErr)
		}
		s.logger.Debug("Finished scheduled task", "task_name", name, "duration", time.Since(startTime))
	}
}

// Stop gracefully stops the scheduler, waiting for running jobs to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Info("Scheduler is not running, nothing to stop.")
		return nil
	}

	s.logger.Debug("Stopping scheduler gracefully (waiting for jobs)...")
	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped gracefully.")
	}

	s.running = false
	return err
}
