package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler wraps gocron for the recurring reset tick. Each tick hands the
// elapsed window to the Resetter so a slow or missed tick cannot skip a
// user's reset instant.
type Scheduler struct {
	scheduler gocron.Scheduler
	resetter  *Resetter
	interval  time.Duration

	mu       sync.Mutex
	lastTick time.Time
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(resetter *Resetter, interval time.Duration) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: s,
		resetter:  resetter,
		interval:  interval,
	}, nil
}

// Start begins the recurring tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.lastTick = s.resetter.now()
	s.mu.Unlock()

	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.tick, ctx),
		gocron.WithName("daily-reset"),
	)
	if err != nil {
		return fmt.Errorf("failed to create reset job: %w", err)
	}

	slog.Info("Starting scheduler", slog.Duration("tick_interval", s.interval))
	s.scheduler.Start()
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// tick is called by gocron. It advances the window under the mutex so ticks
// never overlap windows, then runs the reset pass.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.resetter.now()

	s.mu.Lock()
	from := s.lastTick
	s.lastTick = now
	s.mu.Unlock()

	s.resetter.Run(ctx, from, now)
}
