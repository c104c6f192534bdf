package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"interviewroom/pkg/interfaces"
	"interviewroom/pkg/types"
)

// TestManager_RequiresCollaborators tests validation - every collaborator is mandatory
func TestManager_RequiresCollaborators(t *testing.T) {
	collab := newFakes().collaborators()
	collab.Reports = nil
	if _, err := NewManager(collab, Options{}); err != ErrMissingCollaborator {
		t.Errorf("Expected ErrMissingCollaborator, got %v", err)
	}
	if _, err := NewManager(interfaces.Collaborators{}, Options{}); err != ErrMissingCollaborator {
		t.Errorf("Expected ErrMissingCollaborator, got %v", err)
	}
}

// TestManager_GetOrCreate tests functional validation - ID validation and lookup
func TestManager_GetOrCreate(t *testing.T) {
	m := newTestManager(t, newFakes(), Options{})

	if _, _, err := m.GetOrCreate("bad id!"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
	if _, err := m.Get("missing"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	s, created, err := m.GetOrCreate("int-1")
	if err != nil || !created {
		t.Fatalf("Expected new session, got created=%v err=%v", created, err)
	}
	got, err := m.Get("int-1")
	if err != nil || got != s {
		t.Errorf("Expected Get to return the same session, got %v", err)
	}
	if s.ID() != "int-1" {
		t.Errorf("Expected ID int-1, got %s", s.ID())
	}
}

// TestManager_GetOrCreateRace tests concurrency validation - one instance per interview ID
func TestManager_GetOrCreateRace(t *testing.T) {
	m := newTestManager(t, newFakes(), Options{})

	const callers = 50
	var created atomic.Int32
	sessions := make([]*Session, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, isNew, err := m.GetOrCreate("int-race")
			if err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
				return
			}
			if isNew {
				created.Add(1)
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	if n := created.Load(); n != 1 {
		t.Errorf("Expected exactly 1 creation, got %d", n)
	}
	for i := 1; i < callers; i++ {
		if sessions[i] != sessions[0] {
			t.Fatal("Callers observed different session instances")
		}
	}
	if stats := m.GetStats(); stats["sessions"] != 1 {
		t.Errorf("Expected 1 session in stats, got %v", stats["sessions"])
	}
}

// TestManager_SweepKeepsLiveSessions tests functional validation - retention removes only finalized sessions
func TestManager_SweepKeepsLiveSessions(t *testing.T) {
	f := newFakes()
	m := newTestManager(t, f, Options{})

	done, doneConn := joinAndGreet(t, m, "int-done")
	live, _ := joinAndGreet(t, m, "int-live")
	if err := done.EndByCandidate(context.Background(), doneConn); err != nil {
		t.Fatalf("Failed to end interview: %v", err)
	}
	eventually(t, "finalized", done.Finalized)

	if ids := m.Sweep(time.Now(), time.Hour); len(ids) != 0 {
		t.Errorf("Expected nothing swept inside retention, got %v", ids)
	}
	if ids := m.Sweep(time.Now().Add(2*time.Hour), time.Hour); len(ids) != 1 || ids[0] != "int-done" {
		t.Errorf("Expected int-done swept, got %v", ids)
	}

	if _, err := m.Get("int-done"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected swept session to be gone, got %v", err)
	}
	select {
	case <-done.Done():
	default:
		t.Error("Expected swept session actor to be stopped")
	}
	if got, err := m.Get("int-live"); err != nil || got != live {
		t.Errorf("Expected live session to remain, got %v", err)
	}
}

// TestManager_Shutdown tests functional validation - shutdown stops every actor
func TestManager_Shutdown(t *testing.T) {
	m := newTestManager(t, newFakes(), Options{})
	s, _, err := m.GetOrCreate("int-stop")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Failed to shut down: %v", err)
	}
	if _, err := s.Snapshot(context.Background()); err != types.ErrSessionShuttingDown {
		t.Errorf("Expected ErrSessionShuttingDown, got %v", err)
	}
	if len(m.List()) != 0 {
		t.Error("Expected registry to be empty")
	}
}
