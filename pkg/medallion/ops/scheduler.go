package ops

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Scheduler triggers a job on a cron expression. Overlapping invocations
// are skipped.
type Scheduler struct {
	log  *zap.Logger
	cron *gocron.Scheduler
}

// NewScheduler registers job under the cron expression spec, evaluated in
// UTC. The job receives ctx.
func NewScheduler(ctx context.Context, log *zap.Logger, spec string, job func(context.Context)) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{log: log.Named("scheduler"), cron: gocron.NewScheduler(time.UTC)}
	s.cron.SingletonModeAll()
	if _, err := s.cron.Cron(spec).Do(func() {
		s.log.Info("scheduled run starting")
		job(ctx)
	}); err != nil {
		return nil, Error.New("schedule %q: %v", spec, err)
	}
	return s, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() { s.cron.StartAsync() }

// Stop halts the scheduler.
func (s *Scheduler) Stop() { s.cron.Stop() }

// NextRun returns when the job fires next.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.cron.NextRun()
	return next
}
