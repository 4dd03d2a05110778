package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/sunsavvy/internal/observability"
)

// Sweeper removes expired estimation sessions.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Scheduler periodically sweeps abandoned estimation sessions.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sweeper   Sweeper
	interval  time.Duration
	log       logrus.FieldLogger
	metrics   *observability.Metrics
}

// New creates a new Scheduler.
func New(sweeper Sweeper, interval time.Duration, log logrus.FieldLogger, metrics *observability.Metrics) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		sweeper:   sweeper,
		interval:  interval,
		log:       log.WithField("component", "scheduler"),
		metrics:   metrics,
	}
}

// Start schedules the sweep job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.sweeper == nil {
		s.log.Info("session store expires entries itself; nothing to schedule")
		return nil
	}

	interval := s.interval
	if interval < time.Second {
		interval = 15 * time.Minute
	}

	_, err := s.scheduler.Every(interval).SingletonMode().Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.log.WithError(err).Error("session sweep failed")
		return
	}
	s.metrics.Swept(removed)
	if removed > 0 {
		s.log.WithField("removed", removed).Info("swept expired sessions")
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
