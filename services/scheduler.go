package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/phillip/labapp-server-go/logger"
)

// Resetter is the job run by ResetScheduler.
type Resetter interface {
	ResetAll(ctx context.Context) (ResetReport, error)
}

// ResetScheduler runs a Resetter once a day at a fixed local time, in its
// own goroutine and independent of any request.
type ResetScheduler struct {
	job      Resetter
	spec     string
	schedule cron.Schedule
	loc      *time.Location
	cron     *cron.Cron

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// NewResetScheduler creates a scheduler for hour:minute in loc but does
// not start it.
func NewResetScheduler(job Resetter, hour, minute int, loc *time.Location) (*ResetScheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("reset schedule %q: %w", spec, err)
	}
	return &ResetScheduler{
		job:      job,
		spec:     spec,
		schedule: schedule,
		loc:      loc,
		cron:     cron.New(cron.WithLocation(loc)),
	}, nil
}

// Start registers the daily job and starts the cron runner. Jobs receive
// a context derived from ctx. Calling Start twice is a no-op.
func (s *ResetScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.run(ctx) }))
	s.cron.Start()
	logger.Info.Printf("[ResetScheduler] started, daily reset %q %s (next %s)",
		s.spec, s.loc, s.NextRun(time.Now()).Format(time.RFC3339))
}

// Stop halts the runner and waits for a running reset to finish. Safe to
// call more than once, and before Start.
func (s *ResetScheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

// NextRun is the first scheduled reset strictly after now.
func (s *ResetScheduler) NextRun(now time.Time) time.Time {
	return s.schedule.Next(now.In(s.loc))
}

func (s *ResetScheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.job.ResetAll(ctx)
	if err != nil {
		logger.Error.Printf("[ResetScheduler] error resetting data: %v", err)
		return
	}
	logger.Info.Printf("[ResetScheduler] reset data (%d users)", report.Users)
}
