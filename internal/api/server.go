package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"time"

	"interviewroom/internal/session"
	"interviewroom/pkg/types"
)

// Sessions is the live session registry
type Sessions interface {
	List() []*session.Session
	Get(interviewID string) (*session.Session, error)
}

// Archive is the durable store of completed interviews
type Archive interface {
	HealthCheck(ctx context.Context) error
	Result(ctx context.Context, interviewID string) (*types.FinalResult, error)
}

// Stats reports gateway statistics
type Stats interface {
	GetStats() map[string]interface{}
}

// ARCHITECTURAL DISCOVERY: HTTP API layer is read-only; every interview
// mutation arrives over the realtime gateway, so nothing here can race an actor
type Server struct {
	sessions Sessions
	archive  Archive
	stats    Stats
	router   *http.ServeMux
	started  time.Time
	timeout  time.Duration
}

// NewServer wires the routes
func NewServer(sessions Sessions, archive Archive, stats Stats) *Server {
	s := &Server{
		sessions: sessions,
		archive:  archive,
		stats:    stats,
		router:   http.NewServeMux(),
		started:  time.Now(),
		timeout:  5 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/interviews", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleInterviews))))
	s.router.Handle("/api/interviews/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleInterviewByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type ListInterviewsResponse struct {
	Interviews []types.SessionSnapshot `json:"interviews"`
	Count      int                     `json:"count"`
}

type InterviewResponse struct {
	Interview *types.SessionSnapshot `json:"interview,omitempty"`
	Result    *types.FinalResult     `json:"result,omitempty"`
	Live      bool                   `json:"live"`
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Database  string                 `json:"database"`
	Gateway   map[string]interface{} `json:"gateway"`
	System    map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /api/interviews lists live sessions, oldest first
func (s *Server) handleInterviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	snapshots := make([]types.SessionSnapshot, 0)
	for _, sess := range s.sessions.List() {
		snap, err := sess.Snapshot(ctx)
		if err != nil {
			// Stopped between List and Snapshot
			continue
		}
		snapshots = append(snapshots, snap)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].StartedAt.Before(snapshots[j].StartedAt)
	})

	s.sendJSON(w, http.StatusOK, ListInterviewsResponse{Interviews: snapshots, Count: len(snapshots)})
}

// GET /api/interviews/{id} and /api/interviews/{id}/report
// FUNCTIONAL DISCOVERY: Live sessions answer from the actor; swept or
// pre-restart interviews fall back to the archived result
func (s *Server) handleInterviewByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/interviews/"), "/"), "/")
	interviewID := parts[0]
	if !types.IsValidID(interviewID) {
		s.sendError(w, "Invalid interview ID", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1:
		s.getInterview(w, r, interviewID)
	case len(parts) == 2 && parts[1] == "report":
		s.getReport(w, r, interviewID)
	default:
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) getInterview(w http.ResponseWriter, r *http.Request, interviewID string) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if sess, err := s.sessions.Get(interviewID); err == nil {
		snap, err := sess.Snapshot(ctx)
		if err == nil {
			s.sendJSON(w, http.StatusOK, InterviewResponse{Interview: &snap, Live: true})
			return
		}
		log.Printf("Snapshot failed for interview=%s: %v", interviewID, err)
	}

	result, err := s.archivedResult(ctx, interviewID)
	if err != nil {
		s.sendLookupError(w, interviewID, err)
		return
	}
	s.sendJSON(w, http.StatusOK, InterviewResponse{Result: result})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request, interviewID string) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if sess, err := s.sessions.Get(interviewID); err == nil {
		report, err := sess.Report(ctx)
		if err == nil {
			s.sendJSON(w, http.StatusOK, report)
			return
		}
		if errors.Is(err, types.ErrNotFound) {
			s.sendError(w, "Report not ready", http.StatusConflict)
			return
		}
	}

	result, err := s.archivedResult(ctx, interviewID)
	if err != nil {
		s.sendLookupError(w, interviewID, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result.Report)
}

func (s *Server) archivedResult(ctx context.Context, interviewID string) (*types.FinalResult, error) {
	if s.archive == nil {
		return nil, types.ErrNotFound
	}
	return s.archive.Result(ctx, interviewID)
}

func (s *Server) sendLookupError(w http.ResponseWriter, interviewID string, err error) {
	if errors.Is(err, types.ErrNotFound) {
		s.sendError(w, "Interview not found", http.StatusNotFound)
		return
	}
	log.Printf("Archive lookup failed for interview=%s: %v", interviewID, err)
	s.sendError(w, "Failed to load interview", http.StatusInternalServerError)
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if s.archive != nil {
		if err := s.archive.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			dbStatus = fmt.Sprintf("error: %v", err)
		}
	}

	gateway := map[string]interface{}{}
	if s.stats != nil {
		gateway = s.stats.GetStats()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Database:  dbStatus,
		Gateway:   gateway,
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
