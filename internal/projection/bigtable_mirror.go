package projection

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/bigtable"
	"github.com/haloiam/core/pkg/eventstore"
	"gorm.io/gorm"
)

// BigtableEventMirror is an opt-in secondary events_after_position source:
// a Projector like any other, it mirrors every event it is handed into a
// wide-column table keyed so a row-range scan reproduces the position
// order EventsAfterPosition already gives relational deployments. Large
// instances that outgrow a single Postgres events table can point a
// projection worker at it instead, without eventstore.Store itself
// changing — the mirror is additive, never a replacement for the
// transactional append path.
type BigtableEventMirror struct {
	table  *bigtable.Table
	family string
}

// NewBigtableEventMirror wraps an already-opened table handle. family is
// the column family events are written under (callers typically configure
// a single "ev" family with no GC policy, since this table is an index,
// not a ledger of record).
func NewBigtableEventMirror(table *bigtable.Table, family string) *BigtableEventMirror {
	return &BigtableEventMirror{table: table, family: family}
}

func (m *BigtableEventMirror) Name() string { return "bigtable_event_mirror" }

// rowKey orders rows by instance then position, zero-padded so lexical and
// numeric row-range scans agree — the same "sortable string" concern
// pkg/snowflake documents for its own id formatting.
func rowKey(instanceID string, pos eventstore.Position) string {
	return fmt.Sprintf("%s#%020d#%010d", instanceID, pos.Pos, pos.InTxOrder)
}

// positionFromRowKey recovers the (pos, in_tx_order) tuple rowKey encoded,
// so events read back from the mirror carry the same position cursor the
// relational store would have returned.
func positionFromRowKey(key string) eventstore.Position {
	parts := strings.Split(key, "#")
	if len(parts) != 3 {
		return eventstore.Position{}
	}
	pos, _ := strconv.ParseInt(parts[1], 10, 64)
	inTx, _ := strconv.Atoi(parts[2])
	return eventstore.Position{Pos: pos, InTxOrder: inTx}
}

// Apply mirrors a batch of committed events into the table. tx is nil for
// this mirror — Bigtable has no notion of the GORM transaction the primary
// checkpoint store offers, so, like DynamoDBCheckpointStore, a crash
// between this write and the checkpoint advance can redeliver the same
// batch; row keys are deterministic so redelivery only rewrites identical
// cell values, never duplicates a row.
func (m *BigtableEventMirror) Apply(ctx context.Context, _ *gorm.DB, events []eventstore.Event) error {
	for _, ev := range events {
		mut := bigtable.NewMutation()
		mut.Set(m.family, "event_id", bigtable.Now(), []byte(ev.ID))
		mut.Set(m.family, "aggregate_id", bigtable.Now(), []byte(ev.AggregateID))
		mut.Set(m.family, "aggregate_type", bigtable.Now(), []byte(ev.AggregateType))
		mut.Set(m.family, "event_type", bigtable.Now(), []byte(ev.EventType))
		mut.Set(m.family, "version", bigtable.Now(), []byte(strconv.FormatInt(ev.Version, 10)))
		mut.Set(m.family, "revision", bigtable.Now(), []byte(strconv.Itoa(ev.Revision)))
		mut.Set(m.family, "creator", bigtable.Now(), []byte(ev.Creator))
		mut.Set(m.family, "owner", bigtable.Now(), []byte(ev.Owner))
		mut.Set(m.family, "payload", bigtable.Now(), ev.Payload)
		if err := m.table.Apply(ctx, rowKey(ev.InstanceID, ev.Position), mut); err != nil {
			return fmt.Errorf("bigtable event mirror: applying row for event %s: %w", ev.ID, err)
		}
	}
	return nil
}

// EventsAfterPosition reads the mirror back in position order, the same
// contract eventstore.EventStore.EventsAfterPosition offers, so a
// projection worker can be pointed at either source interchangeably.
func (m *BigtableEventMirror) EventsAfterPosition(ctx context.Context, instanceID string, after eventstore.Position, limit int) ([]eventstore.Event, error) {
	start := rowKey(instanceID, after) + "\x00"
	end := instanceID + "\xff"

	var events []eventstore.Event
	err := m.table.ReadRows(ctx, bigtable.NewRange(start, end), func(row bigtable.Row) bool {
		ev := eventstore.Event{InstanceID: instanceID, Position: positionFromRowKey(row.Key())}
		for _, col := range row[m.family] {
			name := strings.TrimPrefix(col.Column, m.family+":")
			switch name {
			case "event_id":
				ev.ID = string(col.Value)
			case "aggregate_id":
				ev.AggregateID = string(col.Value)
			case "aggregate_type":
				ev.AggregateType = string(col.Value)
			case "event_type":
				ev.EventType = string(col.Value)
			case "version":
				ev.Version, _ = strconv.ParseInt(string(col.Value), 10, 64)
			case "revision":
				ev.Revision, _ = strconv.Atoi(string(col.Value))
			case "creator":
				ev.Creator = string(col.Value)
			case "owner":
				ev.Owner = string(col.Value)
			case "payload":
				ev.Payload = col.Value
			}
		}
		events = append(events, ev)
		return len(events) < limit
	}, bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return nil, fmt.Errorf("bigtable event mirror: reading rows for %s: %w", instanceID, err)
	}
	return events, nil
}
