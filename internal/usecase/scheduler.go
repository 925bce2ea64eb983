package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/tw20th/kangaroo-post-sub000/internal/ports"
)

// Scheduler wires the cron driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring cycles.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.pipeline.RunCycle(ctx, trigger)
		if s.logger == nil {
			return
		}
		if err != nil {
			s.logger.Error("scheduled cycle finished with errors",
				"trigger", trigger, "failed", report.Count(ScopeFailed), "error", err)
			return
		}
		s.logger.Info("scheduled cycle done", "trigger", trigger, "generated", report.Count(ScopeGenerated))
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
