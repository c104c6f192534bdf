package interfaces

import (
	"context"

	"interviewroom/pkg/types"
)

// Persistence is the append/finalize contract of the durable interview store
// ARCHITECTURAL DISCOVERY: Turns are appended one at a time as they happen, the
// final record is written exactly once
type Persistence interface {
	// AppendTurn persists one transcript turn (at-least-once; keyed by sequence number)
	AppendTurn(ctx context.Context, interviewID string, turn types.Turn) error

	// Finalize persists the completed interview record
	Finalize(ctx context.Context, interviewID string, result types.FinalResult) error

	// LogObserver appends to the durable observer presence log
	LogObserver(ctx context.Context, entry types.ObserverLogEntry) error

	// SaveNote persists a private observer note
	SaveNote(ctx context.Context, note types.Note) error
}
