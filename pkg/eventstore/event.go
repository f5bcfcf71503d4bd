// Package eventstore implements the append-only, position-ordered event log
// every aggregate writes to and every projection reads from: per-aggregate
// optimistic concurrency, a global per-instance position cursor, a
// cross-aggregate uniqueness side table, and a best-effort in-process
// subscription fan-out, all inside one GORM transaction per append.
package eventstore

import (
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors identify the three conditions Push can fail with that
// callers branch on directly, independent of the apperrors.Kind wrapping.
var (
	ErrConcurrencyConflict = errors.New("eventstore: concurrency conflict")
	ErrUniqueViolation     = errors.New("eventstore: unique constraint violation")
	ErrInvalidEvent        = errors.New("eventstore: invalid event")
)

// Position is the total order cursor over an instance's event log: events
// committed in the same transaction share Pos and are ordered by InTxOrder.
type Position struct {
	Pos       int64
	InTxOrder int
}

// Less reports whether p sorts strictly before q.
func (p Position) Less(q Position) bool {
	if p.Pos != q.Pos {
		return p.Pos < q.Pos
	}
	return p.InTxOrder < q.InTxOrder
}

// NewEvent is the input shape for a single event being appended: the
// aggregate's version and position are assigned by the store, not the
// caller. Creator is the subject that issued the command, Owner the
// resource-owner scope (typically an org id) the event belongs to, and
// Revision the payload's schema version — the store defaults Revision to 1
// and Owner to the aggregate's own id when left unset.
type NewEvent struct {
	EventType string
	Revision  int
	Payload   json.RawMessage
	Creator   string
	Owner     string
	Metadata  map[string]string
}

// Event is a committed, position-stamped event as read back from the log.
type Event struct {
	ID            string
	InstanceID    string
	AggregateID   string
	AggregateType string
	EventType     string
	Version       int64 // aggregate_version: this event's sequence within its aggregate
	Revision      int   // payload schema version, >= 1
	Position      Position
	Payload       json.RawMessage
	Creator       string
	Owner         string
	Metadata      map[string]string
	CreatedAt     time.Time
}

// UniqueOp declares a row to insert into or remove from the cross-aggregate
// uniqueness side table, in the same transaction as the events that claim
// or release it.
type UniqueOp struct {
	Remove      bool
	UniqueType  string
	UniqueField string
	AggregateID string
}
