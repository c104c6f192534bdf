package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	dbconfig "interviewroom/pkg/database"
	"interviewroom/pkg/interfaces"
	"interviewroom/pkg/types"
)

// Errors returned by the write path
var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
)

var (
	_ interfaces.Persistence     = (*Manager)(nil)
	_ interfaces.ContextProvider = (*Manager)(nil)
)

// Manager is the SQLite implementation of Persistence and ContextProvider
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex

	retryDelay time.Duration
}

type writeOperation struct {
	ctx       context.Context
	operation func(ctx context.Context, db *sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the writer goroutine
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	for _, pragma := range dbconfig.Pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	m := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
	}
	m.wg.Add(1)
	go m.writeLoop()
	return m, nil
}

// Migrate applies pending schema migrations
func (m *Manager) Migrate() error {
	return dbconfig.NewMigrationManager(m.db, m.config.MigrationsPath).ApplyMigrations()
}

// writeLoop processes all write operations in a single goroutine
// FUNCTIONAL DISCOVERY: A failed write is retried once; the caller still sees
// the error, and the session's persist queue logs it without failing the interview
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(op.ctx, m.db)
			if err != nil && op.ctx.Err() == nil {
				log.Printf("Database write failed, retrying in %v: %v", m.retryDelay, err)
				select {
				case <-time.After(m.retryDelay):
					err = op.operation(op.ctx, m.db)
				case <-m.shutdown:
				}
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, operation func(ctx context.Context, db *sql.DB) error) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}

	timer := time.NewTimer(m.config.WriteTimeout)
	defer timer.Stop()

	result := make(chan error, 1)
	select {
	case m.writeChannel <- writeOperation{ctx: ctx, operation: operation, result: result}:
	case <-timer.C:
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// AppendTurn upserts one transcript turn keyed by sequence number
func (m *Manager) AppendTurn(ctx context.Context, interviewID string, turn types.Turn) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO interview_turns (interview_id, sequence_number, speaker, speaker_id, text, phase, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (interview_id, sequence_number) DO UPDATE SET
				speaker = excluded.speaker,
				speaker_id = excluded.speaker_id,
				text = excluded.text,
				phase = excluded.phase,
				timestamp = excluded.timestamp
		`,
			interviewID,
			turn.SequenceNumber,
			turn.Speaker,
			turn.SpeakerID,
			turn.Text,
			int(turn.Phase),
			turn.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
		return nil
	})
}

// Finalize writes the completed interview record and the full transcript atomically
func (m *Manager) Finalize(ctx context.Context, interviewID string, result types.FinalResult) error {
	reportJSON, err := json.Marshal(result.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO interview_results
				(interview_id, candidate_id, reason, recommendation, report, result, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (interview_id) DO UPDATE SET
				reason = excluded.reason,
				recommendation = excluded.recommendation,
				report = excluded.report,
				result = excluded.result,
				completed_at = excluded.completed_at
		`,
			interviewID,
			result.CandidateID,
			result.Reason,
			result.Report.Recommendation,
			string(reportJSON),
			string(resultJSON),
			result.StartedAt,
			result.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}

		// TECHNICAL DISCOVERY: Turns persisted one by one may have failed after
		// their retry; the final transcript is authoritative, so it is rewritten here
		for _, turn := range result.Transcript {
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO interview_turns
					(interview_id, sequence_number, speaker, speaker_id, text, phase, timestamp)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, interviewID, turn.SequenceNumber, turn.Speaker, turn.SpeakerID, turn.Text, int(turn.Phase), turn.Timestamp)
			if err != nil {
				return fmt.Errorf("failed to write turn %d: %w", turn.SequenceNumber, err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit finalize: %w", err)
		}
		return nil
	})
}

// LogObserver appends a presence row
func (m *Manager) LogObserver(ctx context.Context, entry types.ObserverLogEntry) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO observer_events (id, interview_id, observer_id, name, action, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`, entry.ID, entry.InterviewID, entry.ObserverID, entry.Name, entry.Action, entry.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert observer event: %w", err)
		}
		return nil
	})
}

// SaveNote stores a private observer note
func (m *Manager) SaveNote(ctx context.Context, note types.Note) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO observer_notes (id, interview_id, observer_id, text, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`, note.ID, note.InterviewID, note.ObserverID, note.Text, note.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert note: %w", err)
		}
		return nil
	})
}

// SaveInterviewContext upserts the job and candidate material for an interview
func (m *Manager) SaveInterviewContext(ctx context.Context, ic types.InterviewContext) error {
	if !types.IsValidID(ic.InterviewID) {
		return fmt.Errorf("%w: interviewId: %v", types.ErrValidation, types.ErrInvalidID)
	}
	rubric := ic.Rubric
	if rubric == nil {
		rubric = []string{}
	}
	rubricJSON, err := json.Marshal(rubric)
	if err != nil {
		return fmt.Errorf("failed to marshal rubric: %w", err)
	}

	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT OR REPLACE INTO interview_context
				(interview_id, candidate_id, candidate_name, job_title, job_description, cv_text, rubric, language, voice_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			ic.InterviewID,
			ic.CandidateID,
			ic.CandidateName,
			ic.JobTitle,
			ic.JobDescription,
			ic.CVText,
			string(rubricJSON),
			ic.Language,
			ic.VoiceID,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert interview context: %w", err)
		}
		return nil
	})
}

// InterviewContext reads the context row; reads bypass the writer
func (m *Manager) InterviewContext(ctx context.Context, interviewID string) (types.InterviewContext, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT interview_id, candidate_id, candidate_name, job_title, job_description, cv_text, rubric, language, voice_id
		FROM interview_context
		WHERE interview_id = ?
	`, interviewID)

	var ic types.InterviewContext
	var rubricJSON string
	err := row.Scan(
		&ic.InterviewID,
		&ic.CandidateID,
		&ic.CandidateName,
		&ic.JobTitle,
		&ic.JobDescription,
		&ic.CVText,
		&rubricJSON,
		&ic.Language,
		&ic.VoiceID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.InterviewContext{}, interfaces.ErrContextNotFound
		}
		return types.InterviewContext{}, fmt.Errorf("failed to query interview context: %w", err)
	}
	if err := json.Unmarshal([]byte(rubricJSON), &ic.Rubric); err != nil {
		return types.InterviewContext{}, fmt.Errorf("failed to unmarshal rubric: %w", err)
	}
	return ic, nil
}

// Transcript returns the persisted turns in sequence order
func (m *Manager) Transcript(ctx context.Context, interviewID string) ([]types.Turn, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT sequence_number, speaker, speaker_id, text, phase, timestamp
		FROM interview_turns
		WHERE interview_id = ?
		ORDER BY sequence_number ASC
	`, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []types.Turn
	for rows.Next() {
		var turn types.Turn
		var phase int
		if err := rows.Scan(&turn.SequenceNumber, &turn.Speaker, &turn.SpeakerID, &turn.Text, &phase, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		turn.Phase = types.Phase(phase)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turn rows: %w", err)
	}
	return turns, nil
}

// Result returns the finalized record of a completed interview
func (m *Manager) Result(ctx context.Context, interviewID string) (*types.FinalResult, error) {
	var resultJSON string
	err := m.db.QueryRowContext(ctx,
		"SELECT result FROM interview_results WHERE interview_id = ?", interviewID,
	).Scan(&resultJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query result: %w", err)
	}

	var result types.FinalResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// ObserverLog returns presence rows in time order
func (m *Manager) ObserverLog(ctx context.Context, interviewID string) ([]types.ObserverLogEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, interview_id, observer_id, name, action, timestamp
		FROM observer_events
		WHERE interview_id = ?
		ORDER BY timestamp ASC
	`, interviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to query observer log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []types.ObserverLogEntry
	for rows.Next() {
		var e types.ObserverLogEntry
		if err := rows.Scan(&e.ID, &e.InterviewID, &e.ObserverID, &e.Name, &e.Action, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan observer row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Notes returns one observer's private notes in time order
func (m *Manager) Notes(ctx context.Context, interviewID, observerID string) ([]types.Note, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, interview_id, observer_id, text, timestamp
		FROM observer_notes
		WHERE interview_id = ? AND observer_id = ?
		ORDER BY timestamp ASC
	`, interviewID, observerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notes []types.Note
	for rows.Next() {
		var n types.Note
		if err := rows.Scan(&n.ID, &n.InterviewID, &n.ObserverID, &n.Text, &n.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close stops the writer and closes the database
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
