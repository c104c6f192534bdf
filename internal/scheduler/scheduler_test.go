package scheduler

import (
	"sync"
	"testing"
	"time"
)

type recordingSweeper struct {
	mu        sync.Mutex
	calls     int
	retention time.Duration
	removed   int
}

func (r *recordingSweeper) Sweep(now time.Time, retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.retention = retention
	return r.removed
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, "", time.Hour); err != ErrNoSweeper {
		t.Errorf("Expected ErrNoSweeper, got %v", err)
	}
	if _, err := New(&recordingSweeper{}, "every tuesday", time.Hour); err == nil {
		t.Error("Expected invalid cron expression to be rejected")
	}

	s, err := New(&recordingSweeper{}, "", time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.schedule != DefaultSchedule {
		t.Errorf("Expected default schedule, got %q", s.schedule)
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	sweeper := &recordingSweeper{removed: 3}
	s, err := New(sweeper, "@every 1h", 24*time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if n := s.RunOnce(); n != 3 {
		t.Errorf("Expected 3 removed, got %d", n)
	}
	if sweeper.calls != 1 || sweeper.retention != 24*time.Hour {
		t.Errorf("Unexpected sweep call: calls=%d retention=%v", sweeper.calls, sweeper.retention)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	sweeper := &recordingSweeper{}
	s, err := New(sweeper, "@every 1h", time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Errorf("Second Start should be a no-op, got %v", err)
	}
	if !s.IsRunning() {
		t.Error("Expected scheduler to be running")
	}
	if n := len(s.cron.Entries()); n != 1 {
		t.Errorf("Expected exactly one cron entry, got %d", n)
	}

	s.Stop()
	s.Stop()
	if s.IsRunning() {
		t.Error("Expected scheduler to be stopped")
	}
}
