// Package aggregate provides the generic write-model every concrete
// aggregate (Organization, Human User, ...) embeds: uncommitted-event
// tracking, a reducer table keyed by event type, and replay from the
// eventstore in position order.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haloiam/core/pkg/eventstore"
)

// Reducer applies one event's payload to the aggregate that owns it.
// Reducers never return an error for a payload that was itself written by
// this aggregate's own Record calls — a reducer error during replay means
// the event log and the code have drifted, which LoadFromHistory surfaces
// rather than swallows.
type Reducer func(payload json.RawMessage) error

// ReducerTable maps event type strings to the function that applies them.
// Concrete aggregates build one of these once, in their constructor, and
// hand it to WriteModel.Init.
type ReducerTable map[string]Reducer

// WriteModel is embedded by every concrete aggregate. It tracks identity,
// version, and events recorded since the aggregate was loaded, without
// knowing anything about the aggregate's own fields — those live on the
// reducers closed over by the embedding type.
type WriteModel struct {
	id            string
	instanceID    string
	owner         string
	aggregateType string
	version       int64
	reducers      ReducerTable
	uncommitted   []eventstore.NewEvent
}

// Init wires the write-model's identity and reducer table. Concrete
// aggregate constructors call this before recording their first event.
func (w *WriteModel) Init(instanceID, id, aggregateType string, reducers ReducerTable) {
	w.instanceID = instanceID
	w.id = id
	w.aggregateType = aggregateType
	w.reducers = reducers
}

// ID returns the aggregate's identifier.
func (w *WriteModel) ID() string { return w.id }

// InstanceID returns the owning instance's identifier.
func (w *WriteModel) InstanceID() string { return w.instanceID }

// Owner returns the resource-owner scope events recorded by this model
// carry — the org an aggregate belongs to, or, when SetOwner was never
// called, the aggregate's own id (self-owned aggregates such as orgs and
// instance-level policies).
func (w *WriteModel) Owner() string {
	if w.owner == "" {
		return w.id
	}
	return w.owner
}

// SetOwner scopes the model to a resource owner. Command handlers call
// this before Record when the owning org is known (users, memberships).
func (w *WriteModel) SetOwner(owner string) { w.owner = owner }

// AggregateType returns the aggregate's type discriminator.
func (w *WriteModel) AggregateType() string { return w.aggregateType }

// Version returns the version as of the last applied event — the value a
// caller should pass back as expectedVersion on its next Push.
func (w *WriteModel) Version() int64 { return w.version }

// UncommittedEvents returns the events recorded since the aggregate was
// loaded (or created) and not yet pushed.
func (w *WriteModel) UncommittedEvents() []eventstore.NewEvent {
	return w.uncommitted
}

// ClearUncommitted drops the pending event buffer; callers invoke this
// after a successful Push.
func (w *WriteModel) ClearUncommitted() {
	w.uncommitted = nil
}

// Record applies an event to the aggregate's own state via its reducer and
// appends it to the pending buffer. Business methods call this instead of
// mutating fields directly, so every state change has a corresponding
// event.
func (w *WriteModel) Record(eventType string, payload interface{}, metadata map[string]string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("aggregate: marshaling payload for %s: %w", eventType, err)
	}
	if err := w.apply(eventType, raw); err != nil {
		return err
	}
	w.uncommitted = append(w.uncommitted, eventstore.NewEvent{
		EventType: eventType,
		Payload:   raw,
		Owner:     w.Owner(),
		Metadata:  metadata,
	})
	return nil
}

func (w *WriteModel) apply(eventType string, payload json.RawMessage) error {
	reduce, ok := w.reducers[eventType]
	if !ok {
		return fmt.Errorf("aggregate: no reducer registered for event type %q on %s", eventType, w.aggregateType)
	}
	if err := reduce(payload); err != nil {
		return fmt.Errorf("aggregate: applying %s: %w", eventType, err)
	}
	return nil
}

// LoadFromHistory replays committed events against the write-model in
// position order, advancing Version as it goes, without re-recording them
// as uncommitted. Concrete aggregates call this from their own Load
// functions after Init.
//
// Unlike Record, an event type with no registered reducer is not an error
// here: for forward compatibility, a write-model must tolerate
// event types newer code wrote and older code does not know about yet, so
// replay treats a missing reducer as a no-op and still advances Version.
func (w *WriteModel) LoadFromHistory(events []eventstore.Event) error {
	for _, ev := range events {
		if reduce, ok := w.reducers[ev.EventType]; ok {
			if err := reduce(ev.Payload); err != nil {
				return fmt.Errorf("aggregate: replaying %s: %w", ev.EventType, err)
			}
		}
		w.version = ev.Version
	}
	return nil
}

// Load fetches an aggregate's events from store and replays them into wm,
// which must already have been Init'd by the caller's constructor. It
// returns the number of events applied, so callers can detect "not found"
// (zero events) themselves — the write-model layer has no opinion on what
// that should mean to a command handler.
func Load(ctx context.Context, store eventstore.EventStore, wm *WriteModel) (int, error) {
	events, err := store.LoadAggregate(ctx, wm.InstanceID(), wm.ID())
	if err != nil {
		return 0, fmt.Errorf("aggregate: loading %s %s: %w", wm.AggregateType(), wm.ID(), err)
	}
	if err := wm.LoadFromHistory(events); err != nil {
		return 0, err
	}
	return len(events), nil
}
