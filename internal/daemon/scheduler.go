package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/logfields"
)

// Scheduler wraps a gocron scheduler for periodic maintenance jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.DaemonError("failed to create scheduler").WithCause(err).Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start(_ context.Context) {
	s.logger.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop(_ context.Context) error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleEvery runs task every interval, starting immediately. Runs of the
// same job never overlap: a run that is due while the previous one is still
// going is rescheduled.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, task func()) (gocron.Job, error) {
	if interval <= 0 {
		return nil, errors.ValidationError("schedule interval must be positive").
			WithContext("job", name).
			Build()
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()
			s.logger.Debug("Running scheduled job", logfields.Job(name))
			task()
			s.logger.Debug("Scheduled job finished",
				logfields.Job(name),
				logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, errors.DaemonError("failed to schedule job").
			WithCause(err).
			WithContext("job", name).
			Build()
	}
	return job, nil
}
