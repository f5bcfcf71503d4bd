package eventstore

import "context"

// EventStore is the append-only log every write-model persists to and every
// projection reads from.
type EventStore interface {
	// Push appends events for one aggregate inside a single transaction.
	// expectedVersion is the aggregate's version the caller last observed;
	// -1 means "no prior events expected" (first command against a new
	// aggregate). A mismatch returns ErrConcurrencyConflict. uniqueOps are
	// applied in the same transaction, so a claimed username and the event
	// that claims it commit or fail together.
	Push(ctx context.Context, instanceID, aggregateID, aggregateType string, expectedVersion int64, events []NewEvent, uniqueOps ...UniqueOp) ([]Event, error)

	// LoadAggregate returns every event for aggregateID in version order.
	LoadAggregate(ctx context.Context, instanceID, aggregateID string) ([]Event, error)

	// LoadAggregateFromVersion returns events for aggregateID with
	// Version >= fromVersion, in version order.
	LoadAggregateFromVersion(ctx context.Context, instanceID, aggregateID string, fromVersion int64) ([]Event, error)

	// Query returns every event matching q in ascending position order.
	Query(ctx context.Context, q SearchQuery) ([]Event, error)

	// LatestEvent returns the highest-position event matching q.
	LatestEvent(ctx context.Context, q SearchQuery) (Event, error)

	// EventsAfterPosition returns up to limit events strictly after
	// `after`, ordered by position, across all aggregates in the instance.
	// This is the primitive projection workers poll.
	EventsAfterPosition(ctx context.Context, instanceID string, after Position, limit int) ([]Event, error)

	// LatestPosition returns the current tip position for the instance, or
	// the zero Position if the log is empty.
	LatestPosition(ctx context.Context, instanceID string) (Position, error)

	// Subscribe registers handler for best-effort, in-process delivery of
	// newly pushed events matching eventType (which may use the dotted
	// wildcard syntax "entity.*", "*.action", "*.*"). Subscription delivery
	// is not the source of truth for projections — EventsAfterPosition
	// polling is — so a missed delivery here is not a correctness bug.
	Subscribe(ctx context.Context, eventType string, handler func(context.Context, Event) error) error

	// Health reports whether the underlying storage is reachable.
	Health(ctx context.Context) error

	// Close releases the underlying connection and subscription resources.
	Close() error
}
