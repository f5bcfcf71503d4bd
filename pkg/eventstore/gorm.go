package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haloiam/core/pkg/logging"
	"github.com/haloiam/core/pkg/metrics"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("github.com/haloiam/core/pkg/eventstore")

func metricAttr(key, value string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(key, value))
}

// eventRecord is the persisted row shape for one event. Version pins the
// event's place in its aggregate's history; Pos/InTxOrder pin it in the
// instance-wide total order. The two are independent axes, per the
// project's data model: aggregate_version vs. position.
type eventRecord struct {
	ID            string `gorm:"primaryKey"`
	InstanceID    string `gorm:"index:idx_events_position,priority:1;uniqueIndex:idx_events_aggregate_version,priority:1"`
	AggregateID   string `gorm:"index:idx_events_aggregate,priority:1;uniqueIndex:idx_events_aggregate_version,priority:2"`
	AggregateType string
	EventType     string
	Version       int64 `gorm:"index:idx_events_aggregate,priority:2;uniqueIndex:idx_events_aggregate_version,priority:3"`
	Revision      int
	Pos           int64 `gorm:"index:idx_events_position,priority:2"`
	InTxOrder     int
	Payload       string `gorm:"type:text"`
	Creator       string
	Owner         string `gorm:"index"`
	Metadata      string `gorm:"type:text"`
	CreatedAt     time.Time
}

func (eventRecord) TableName() string { return "events" }

// positionSeq holds the next position to hand out for an instance, so a
// transaction can reserve a contiguous block of positions for the events
// it is about to insert.
type positionSeq struct {
	InstanceID string `gorm:"primaryKey"`
	NextPos    int64
}

func (positionSeq) TableName() string { return "event_positions" }

// uniqueRecord backs the cross-aggregate uniqueness side table: the
// (instance, type, field) tuple is the primary key, so a second INSERT for
// an already-claimed value fails the transaction outright.
type uniqueRecord struct {
	InstanceID  string `gorm:"primaryKey"`
	UniqueType  string `gorm:"primaryKey"`
	UniqueField string `gorm:"primaryKey"`
	AggregateID string
}

func (uniqueRecord) TableName() string { return "unique_constraints" }

// Store is the GORM-backed EventStore. It works against both the sqlite and
// postgres dialectors configured by pkg/config.
type Store struct {
	db      *gorm.DB
	logger  logging.Logger
	sub     *subscriptions
	metrics *metrics.Metrics
}

// New builds a Store, auto-migrating its tables, and starts its in-process
// subscription router.
func New(db *gorm.DB, logger logging.Logger) (*Store, error) {
	if err := db.AutoMigrate(&eventRecord{}, &positionSeq{}, &uniqueRecord{}); err != nil {
		return nil, fmt.Errorf("eventstore: migrating schema: %w", err)
	}
	sub, err := newSubscriptions(logger)
	if err != nil {
		return nil, fmt.Errorf("eventstore: starting subscription router: %w", err)
	}
	return &Store{db: db, logger: logger, sub: sub}, nil
}

// WithMetrics attaches an OpenTelemetry Metrics instance Push records
// latency and throughput against. Optional — a Store built via New alone
// still works, it just emits no metrics.
func (s *Store) WithMetrics(m *metrics.Metrics) *Store {
	s.metrics = m
	return s
}

// Push implements EventStore.
func (s *Store) Push(ctx context.Context, instanceID, aggregateID, aggregateType string, expectedVersion int64, events []NewEvent, uniqueOps ...UniqueOp) ([]Event, error) {
	ctx, span := tracer.Start(ctx, "eventstore.Push", trace.WithAttributes(
		attribute.String("aggregate_type", aggregateType),
		attribute.String("aggregate_id", aggregateID),
	))
	defer span.End()
	start := time.Now()

	committed, err := s.push(ctx, instanceID, aggregateID, aggregateType, expectedVersion, events, uniqueOps...)

	if s.metrics != nil {
		s.metrics.PushLatency.Record(ctx, time.Since(start).Seconds(),
			metricAttr("aggregate_type", aggregateType))
		if err == nil {
			s.metrics.EventsAppended.Add(ctx, int64(len(committed)), metricAttr("aggregate_type", aggregateType))
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return committed, nil
}

func (s *Store) push(ctx context.Context, instanceID, aggregateID, aggregateType string, expectedVersion int64, events []NewEvent, uniqueOps ...UniqueOp) ([]Event, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: no events to push", ErrInvalidEvent)
	}
	for _, e := range events {
		if e.EventType == "" {
			return nil, fmt.Errorf("%w: empty event type", ErrInvalidEvent)
		}
	}

	var committed []Event

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The version check used to be a bare SELECT MAX(version), which
		// Postgres's READ COMMITTED isolation lets two concurrent Push calls
		// both read before either has inserted — both would then pass the
		// expectedVersion check and attempt the same next version. MAX(...)
		// can't be combined with FOR UPDATE in Postgres, so the read is
		// restructured as ORDER BY ... LIMIT 1, which can. Row locking only
		// works (and is only requested) on postgres — glebarez/sqlite, used
		// by this package's own unit tests, has no FOR UPDATE support. The
		// uniqueIndex on (instance_id, aggregate_id, version) is the actual
		// backstop: even without the lock, a losing transaction's insert
		// blocks on the winner's uncommitted row and then fails unique once
		// it commits, so the race is caught either way.
		var latest eventRecord
		latestQuery := tx.Model(&eventRecord{}).
			Where("instance_id = ? AND aggregate_id = ?", instanceID, aggregateID).
			Order("version DESC").
			Limit(1)
		if tx.Dialector.Name() == "postgres" {
			latestQuery = latestQuery.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := latestQuery.Find(&latest).Error; err != nil {
			return fmt.Errorf("reading current version: %w", err)
		}
		currentVersion := latest.Version
		if expectedVersion >= 0 && currentVersion != expectedVersion {
			return fmt.Errorf("%w: aggregate %s expected version %d, got %d", ErrConcurrencyConflict, aggregateID, expectedVersion, currentVersion)
		}

		pos, err := reservePositions(tx, instanceID, len(events))
		if err != nil {
			return fmt.Errorf("reserving positions: %w", err)
		}

		now := time.Now().UTC()
		records := make([]eventRecord, 0, len(events))
		committed = make([]Event, 0, len(events))

		for i, ne := range events {
			version := currentVersion + int64(i) + 1
			metaJSON, err := json.Marshal(ne.Metadata)
			if err != nil {
				return fmt.Errorf("serializing metadata: %w", err)
			}
			revision := ne.Revision
			if revision <= 0 {
				revision = 1
			}
			owner := ne.Owner
			if owner == "" {
				owner = aggregateID
			}
			id := ksuid.New().String()
			records = append(records, eventRecord{
				ID:            id,
				InstanceID:    instanceID,
				AggregateID:   aggregateID,
				AggregateType: aggregateType,
				EventType:     ne.EventType,
				Version:       version,
				Revision:      revision,
				Pos:           pos,
				InTxOrder:     i,
				Payload:       string(ne.Payload),
				Creator:       ne.Creator,
				Owner:         owner,
				Metadata:      string(metaJSON),
				CreatedAt:     now,
			})
			committed = append(committed, Event{
				ID:            id,
				InstanceID:    instanceID,
				AggregateID:   aggregateID,
				AggregateType: aggregateType,
				EventType:     ne.EventType,
				Version:       version,
				Revision:      revision,
				Position:      Position{Pos: pos, InTxOrder: i},
				Payload:       ne.Payload,
				Creator:       ne.Creator,
				Owner:         owner,
				Metadata:      ne.Metadata,
				CreatedAt:     now,
			})
		}

		if err := tx.Create(&records).Error; err != nil {
			// The only constraint the events table itself carries is
			// idx_events_aggregate_version, so a failure here means another
			// writer landed this version first, not a business-level unique
			// claim (those go through uniqueRecord below).
			return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		}

		for _, op := range uniqueOps {
			if op.Remove {
				if err := tx.Where("instance_id = ? AND unique_type = ? AND unique_field = ?",
					instanceID, op.UniqueType, op.UniqueField).Delete(&uniqueRecord{}).Error; err != nil {
					return fmt.Errorf("releasing unique constraint: %w", err)
				}
				continue
			}
			rec := uniqueRecord{InstanceID: instanceID, UniqueType: op.UniqueType, UniqueField: op.UniqueField, AggregateID: op.AggregateID}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("%w: %s/%s already claimed", ErrUniqueViolation, op.UniqueType, op.UniqueField)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	// Fan out off the caller's goroutine (and off its context, which may be
	// cancelled the moment Push returns): a slow subscriber must never block
	// a committed write. Delivery order across pushes is not guaranteed
	// here — subscribers that care about order poll EventsAfterPosition.
	go func(committed []Event) {
		for _, ev := range committed {
			s.sub.publish(context.Background(), ev)
		}
	}(committed)

	return committed, nil
}

// reservePositions increments instanceID's position counter by n and
// returns the first position reserved; all n events from this call share
// that Pos and are ordered by their index (InTxOrder). The increment is one
// atomic UPDATE ... RETURNING rather than a read-then-write, since the
// latter lets two concurrent pushes in the same instance both read the same
// NextPos and reserve the same Pos.
func reservePositions(tx *gorm.DB, instanceID string, n int) (int64, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&positionSeq{InstanceID: instanceID, NextPos: 1}).Error; err != nil {
		return 0, fmt.Errorf("seeding position sequence: %w", err)
	}

	var reserved int64
	row := tx.Raw(
		`UPDATE event_positions SET next_pos = next_pos + ? WHERE instance_id = ? RETURNING next_pos - ?`,
		n, instanceID, n,
	).Row()
	if err := row.Scan(&reserved); err != nil {
		return 0, fmt.Errorf("reserving positions: %w", err)
	}
	return reserved, nil
}

// LoadAggregate implements EventStore.
func (s *Store) LoadAggregate(ctx context.Context, instanceID, aggregateID string) ([]Event, error) {
	return s.LoadAggregateFromVersion(ctx, instanceID, aggregateID, 0)
}

// LoadAggregateFromVersion implements EventStore.
func (s *Store) LoadAggregateFromVersion(ctx context.Context, instanceID, aggregateID string, fromVersion int64) ([]Event, error) {
	var records []eventRecord
	err := s.db.WithContext(ctx).
		Where("instance_id = ? AND aggregate_id = ? AND version >= ?", instanceID, aggregateID, fromVersion).
		Order("version ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("loading aggregate %s: %w", aggregateID, err)
	}
	return toEvents(records)
}

// EventsAfterPosition implements EventStore.
func (s *Store) EventsAfterPosition(ctx context.Context, instanceID string, after Position, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 200
	}
	var records []eventRecord
	err := s.db.WithContext(ctx).
		Where("instance_id = ? AND (pos > ? OR (pos = ? AND in_tx_order > ?))", instanceID, after.Pos, after.Pos, after.InTxOrder).
		Order("pos ASC, in_tx_order ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("reading events after position: %w", err)
	}
	return toEvents(records)
}

// LatestPosition implements EventStore.
func (s *Store) LatestPosition(ctx context.Context, instanceID string) (Position, error) {
	var rec eventRecord
	err := s.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("pos DESC, in_tx_order DESC").
		First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return Position{}, nil
	}
	if err != nil {
		return Position{}, fmt.Errorf("reading latest position: %w", err)
	}
	return Position{Pos: rec.Pos, InTxOrder: rec.InTxOrder}, nil
}

// Subscribe implements EventStore.
func (s *Store) Subscribe(ctx context.Context, eventType string, handler func(context.Context, Event) error) error {
	return s.sub.subscribe(ctx, eventType, handler)
}

// Close implements EventStore.
func (s *Store) Close() error {
	return s.sub.close()
}

func toEvents(records []eventRecord) ([]Event, error) {
	out := make([]Event, len(records))
	for i, r := range records {
		var meta map[string]string
		if r.Metadata != "" {
			if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
				return nil, fmt.Errorf("deserializing metadata for event %s: %w", r.ID, err)
			}
		}
		out[i] = Event{
			ID:            r.ID,
			InstanceID:    r.InstanceID,
			AggregateID:   r.AggregateID,
			AggregateType: r.AggregateType,
			EventType:     r.EventType,
			Version:       r.Version,
			Revision:      r.Revision,
			Position:      Position{Pos: r.Pos, InTxOrder: r.InTxOrder},
			Payload:       json.RawMessage(r.Payload),
			Creator:       r.Creator,
			Owner:         r.Owner,
			Metadata:      meta,
			CreatedAt:     r.CreatedAt,
		}
	}
	return out, nil
}
