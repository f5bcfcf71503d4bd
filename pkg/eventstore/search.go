package eventstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// SearchQuery is the filter shape Query and LatestEvent accept. InstanceID
// is required; every other field narrows the result when set. From/To
// bound the position range as (From, To] — To's zero value means "up to
// the current tip".
type SearchQuery struct {
	InstanceID     string
	AggregateTypes []string
	AggregateIDs   []string
	EventTypes     []string
	Owner          string
	From           Position
	To             Position
	Limit          int
}

func (q SearchQuery) validate() error {
	if q.InstanceID == "" {
		return fmt.Errorf("%w: search query requires an instance id", ErrInvalidEvent)
	}
	return nil
}

func (q SearchQuery) apply(db *gorm.DB) *gorm.DB {
	scope := db.Where("instance_id = ?", q.InstanceID)
	if len(q.AggregateTypes) > 0 {
		scope = scope.Where("aggregate_type IN ?", q.AggregateTypes)
	}
	if len(q.AggregateIDs) > 0 {
		scope = scope.Where("aggregate_id IN ?", q.AggregateIDs)
	}
	if len(q.EventTypes) > 0 {
		scope = scope.Where("event_type IN ?", q.EventTypes)
	}
	if q.Owner != "" {
		scope = scope.Where("owner = ?", q.Owner)
	}
	if q.From != (Position{}) {
		scope = scope.Where("pos > ? OR (pos = ? AND in_tx_order > ?)", q.From.Pos, q.From.Pos, q.From.InTxOrder)
	}
	if q.To != (Position{}) {
		scope = scope.Where("pos < ? OR (pos = ? AND in_tx_order <= ?)", q.To.Pos, q.To.Pos, q.To.InTxOrder)
	}
	return scope
}

// Query returns every event matching q in ascending position order.
func (s *Store) Query(ctx context.Context, q SearchQuery) ([]Event, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	scope := q.apply(s.db.WithContext(ctx).Model(&eventRecord{})).
		Order("pos ASC, in_tx_order ASC")
	if q.Limit > 0 {
		scope = scope.Limit(q.Limit)
	}
	var records []eventRecord
	if err := scope.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	return toEvents(records)
}

// LatestEvent returns the single highest-position event matching q, or
// gorm.ErrRecordNotFound wrapped when nothing matches.
func (s *Store) LatestEvent(ctx context.Context, q SearchQuery) (Event, error) {
	if err := q.validate(); err != nil {
		return Event{}, err
	}
	var rec eventRecord
	err := q.apply(s.db.WithContext(ctx).Model(&eventRecord{})).
		Order("pos DESC, in_tx_order DESC").
		First(&rec).Error
	if err != nil {
		return Event{}, fmt.Errorf("reading latest event: %w", err)
	}
	events, err := toEvents([]eventRecord{rec})
	if err != nil {
		return Event{}, err
	}
	return events[0], nil
}

// Health pings the underlying database connection.
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("eventstore: getting underlying connection: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("eventstore: ping: %w", err)
	}
	return nil
}
