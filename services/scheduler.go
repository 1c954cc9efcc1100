package services

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"immo-scraper/utils"
)

// Scheduler triggers a job on a cron expression until its context ends.
// A tick that fires while the previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *utils.Logger
}

func NewScheduler(logger *utils.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger)))),
		logger: logger,
	}
}

// Run registers job on spec and blocks until ctx is cancelled. It then
// waits for an in-flight run to return.
func (s *Scheduler) Run(ctx context.Context, spec string, job func(context.Context)) error {
	if err := ctx.Err(); err != nil {
		return nil
	}
	id, err := s.cron.AddFunc(spec, func() { job(ctx) })
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("[scheduler] Job %d scheduled on %q", id, spec)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("[scheduler] Stopped")
	return nil
}
