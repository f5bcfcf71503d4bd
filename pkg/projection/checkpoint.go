// Package projection runs the workers that turn the append-only event log
// into read models: each named projection owns a leased checkpoint row
// recording the last position it has applied, polls the eventstore for
// everything after that position, applies it, and advances the checkpoint
// — idempotently, so at-least-once delivery still produces an
// exactly-once effect on the read model.
package projection

import (
	"context"
	"time"

	"github.com/haloiam/core/pkg/eventstore"
)

// Checkpoint is a projection's durable progress marker.
type Checkpoint struct {
	InstanceID     string
	Name           string
	Position       eventstore.Position
	Owner          string
	LeaseExpiresAt time.Time
	RetryCount     int
	LastError      string
	// Failed is set once RetryCount has exceeded a Worker's retry budget on
	// the event(s) at Position. A failed checkpoint refuses new Acquire
	// calls — the poison event is not retried forever — until an operator
	// clears it by Advancing the checkpoint past the offending position.
	Failed bool
}

// CheckpointStore is the backend-agnostic lease/position API every
// checkpoint backend implements.
type CheckpointStore interface {
	// Acquire attempts a compare-and-swap lease on (instanceID, name) for
	// owner, succeeding if the row is unowned, already owned by owner (a
	// lease renewal), or its lease has expired. acquired is false if
	// another owner currently holds a live lease.
	Acquire(ctx context.Context, instanceID, name, owner string, lease time.Duration) (cp Checkpoint, acquired bool, err error)

	// Advance persists a new position for a checkpoint this owner holds
	// the lease on, and resets its retry counter.
	Advance(ctx context.Context, instanceID, name, owner string, pos eventstore.Position) error

	// RecordFailure increments the checkpoint's retry counter and records
	// the failure, without moving its position.
	RecordFailure(ctx context.Context, instanceID, name, owner string, failure error) error

	// MarkFailed sets the checkpoint's terminal failed state once a Worker
	// has exhausted its retry budget on the event(s) at the current
	// position, so the poison event stops being retried until an operator
	// intervenes. It does not move the position.
	MarkFailed(ctx context.Context, instanceID, name, owner string, failure error) error

	// Release gives up the lease early (e.g. on clean worker shutdown) so
	// another worker does not have to wait out the full lease duration.
	Release(ctx context.Context, instanceID, name, owner string) error

	// Get returns the current checkpoint without acquiring its lease, used
	// by Registry.CatchUp to poll progress.
	Get(ctx context.Context, instanceID, name string) (Checkpoint, error)
}
