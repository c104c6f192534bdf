package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks a database against the structure the persistence layer expects
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// RequiredTables maps every table the server reads or writes to its purpose
var RequiredTables = map[string]string{
	"interview_turns":   "Transcript turns",
	"interview_results": "Completed interview records",
	"observer_events":   "Observer presence log",
	"observer_notes":    "Private observer notes",
	"interview_context": "Job and candidate context",
	"schema_migrations": "Migration tracking",
}

// RequiredIndexes maps every index to the query it serves
var RequiredIndexes = map[string]string{
	"idx_results_completed":         "Retention queries",
	"idx_observer_events_interview": "Presence log by interview",
	"idx_observer_notes_interview":  "Notes by interview",
}

// Validate runs every structural check
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	if err := v.ValidateIndexes(); err != nil {
		return err
	}
	return v.ValidateConstraints()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for table, description := range RequiredTables {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateTableStructure verifies column types of the write-path tables
func (v *SchemaValidator) ValidateTableStructure() error {
	turnColumns := map[string]string{
		"interview_id":    "TEXT",
		"sequence_number": "INTEGER",
		"speaker":         "TEXT",
		"speaker_id":      "TEXT",
		"text":            "TEXT",
		"phase":           "INTEGER",
		"timestamp":       "DATETIME",
	}
	if err := v.validateColumns("interview_turns", turnColumns); err != nil {
		return fmt.Errorf("interview_turns table structure invalid: %w", err)
	}

	resultColumns := map[string]string{
		"interview_id":   "TEXT",
		"candidate_id":   "TEXT",
		"reason":         "TEXT",
		"recommendation": "TEXT",
		"report":         "TEXT",
		"result":         "TEXT",
		"started_at":     "DATETIME",
		"completed_at":   "DATETIME",
	}
	if err := v.validateColumns("interview_results", resultColumns); err != nil {
		return fmt.Errorf("interview_results table structure invalid: %w", err)
	}

	contextColumns := map[string]string{
		"interview_id": "TEXT",
		"cv_text":      "TEXT",
		"rubric":       "TEXT",
	}
	if err := v.validateColumns("interview_context", contextColumns); err != nil {
		return fmt.Errorf("interview_context table structure invalid: %w", err)
	}
	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for index, purpose := range RequiredIndexes {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

// ValidateConstraints verifies the CHECK constraints inside a rolled back transaction
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO interview_turns (interview_id, sequence_number, speaker, text, phase, timestamp)
		VALUES ('schema-check', 0, 'narrator', 'x', 0, CURRENT_TIMESTAMP)
	`)
	if err == nil {
		return fmt.Errorf("check constraint not enforced: interview_turns.speaker")
	}

	_, err = tx.Exec(`
		INSERT INTO observer_events (id, interview_id, observer_id, action, timestamp)
		VALUES ('schema-check', 'schema-check', 'hr', 'vanished', CURRENT_TIMESTAMP)
	`)
	if err == nil {
		return fmt.Errorf("check constraint not enforced: observer_events.action")
	}
	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for col, expectedType := range expectedColumns {
		foundType, ok := found[col]
		if !ok {
			return fmt.Errorf("column %s not found", col)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", col, foundType, expectedType)
		}
	}
	return nil
}
