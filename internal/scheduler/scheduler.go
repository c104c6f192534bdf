package scheduler

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule sweeps every ten minutes
const DefaultSchedule = "*/10 * * * *"

// ErrNoSweeper is returned by New when there is nothing to sweep
var ErrNoSweeper = errors.New("scheduler requires a sweeper")

// Sweeper removes completed interviews older than retention
type Sweeper interface {
	Sweep(now time.Time, retention time.Duration) int
}

// Scheduler runs the retention sweep on a cron schedule
type Scheduler struct {
	cron      *cron.Cron
	sweeper   Sweeper
	schedule  string
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

// New creates a scheduler; an empty schedule selects DefaultSchedule
func New(sweeper Sweeper, schedule string, retention time.Duration) (*Scheduler, error) {
	if sweeper == nil {
		return nil, ErrNoSweeper
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, err
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		sweeper:   sweeper,
		schedule:  schedule,
		retention: retention,
		now:       time.Now,
	}, nil
}

// Start registers the sweep and starts the cron runner
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce() }); err != nil {
		return err
	}
	s.cron.Start()
	s.running = true
	log.Printf("Scheduler started: sweep=%q retention=%v", s.schedule, s.retention)
	return nil
}

// RunOnce performs one sweep immediately and returns the number of removed sessions
func (s *Scheduler) RunOnce() int {
	removed := s.sweeper.Sweep(s.now(), s.retention)
	if removed > 0 {
		log.Printf("Retention sweep removed %d interviews", removed)
	}
	return removed
}

// Stop waits for a running sweep to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	log.Println("Scheduler stopped")
}

// IsRunning reports whether the cron runner is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
