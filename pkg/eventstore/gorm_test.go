package eventstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/haloiam/core/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	store, err := New(db, logging.New("error", "text"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPushAssignsMonotonicVersionAndPosition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	events, err := store.Push(ctx, "inst-1", "org-1", "org", -1, []NewEvent{
		{EventType: "org.created", Payload: json.RawMessage(`{"name":"acme"}`)},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].Version)
	assert.Equal(t, int64(1), events[0].Position.Pos)

	more, err := store.Push(ctx, "inst-1", "org-1", "org", 1, []NewEvent{
		{EventType: "org.renamed", Payload: json.RawMessage(`{"name":"acme2"}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), more[0].Version)
	assert.Equal(t, int64(2), more[0].Position.Pos)
}

func TestPushRejectsWrongExpectedVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Push(ctx, "inst-1", "org-1", "org", -1, []NewEvent{
		{EventType: "org.created", Payload: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)

	_, err = store.Push(ctx, "inst-1", "org-1", "org", 0, []NewEvent{
		{EventType: "org.renamed", Payload: json.RawMessage(`{}`)},
	})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestUniqueConstraintPreventsDuplicateClaim(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Push(ctx, "inst-1", "user-1", "user", -1, []NewEvent{
		{EventType: "user.human.added", Payload: json.RawMessage(`{}`)},
	}, UniqueOp{UniqueType: "username", UniqueField: "alice", AggregateID: "user-1"})
	require.NoError(t, err)

	_, err = store.Push(ctx, "inst-1", "user-2", "user", -1, []NewEvent{
		{EventType: "user.human.added", Payload: json.RawMessage(`{}`)},
	}, UniqueOp{UniqueType: "username", UniqueField: "alice", AggregateID: "user-2"})
	assert.ErrorIs(t, err, ErrUniqueViolation)
}

func TestUniqueConstraintReleasedCanBeReclaimed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Push(ctx, "inst-1", "user-1", "user", -1, []NewEvent{
		{EventType: "user.human.added", Payload: json.RawMessage(`{}`)},
	}, UniqueOp{UniqueType: "username", UniqueField: "bob", AggregateID: "user-1"})
	require.NoError(t, err)

	_, err = store.Push(ctx, "inst-1", "user-1", "user", 1, []NewEvent{
		{EventType: "user.removed", Payload: json.RawMessage(`{}`)},
	}, UniqueOp{Remove: true, UniqueType: "username", UniqueField: "bob"})
	require.NoError(t, err)

	_, err = store.Push(ctx, "inst-1", "user-2", "user", -1, []NewEvent{
		{EventType: "user.human.added", Payload: json.RawMessage(`{}`)},
	}, UniqueOp{UniqueType: "username", UniqueField: "bob", AggregateID: "user-2"})
	assert.NoError(t, err)
}

func TestEventsAfterPositionOrdersAcrossAggregates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Push(ctx, "inst-1", "org-1", "org", -1, []NewEvent{{EventType: "org.created", Payload: json.RawMessage(`{}`)}})
	require.NoError(t, err)
	_, err = store.Push(ctx, "inst-1", "user-1", "user", -1, []NewEvent{{EventType: "user.human.added", Payload: json.RawMessage(`{}`)}})
	require.NoError(t, err)

	all, err := store.EventsAfterPosition(ctx, "inst-1", Position{}, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "org.created", all[0].EventType)
	assert.Equal(t, "user.human.added", all[1].EventType)

	rest, err := store.EventsAfterPosition(ctx, "inst-1", all[0].Position, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "user.human.added", rest[0].EventType)
}

func TestSubscribeReceivesBestEffortEvents(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan Event, 1)
	err := store.Subscribe(ctx, "org.*", func(_ context.Context, ev Event) error {
		received <- ev
		return nil
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond) // let the router handler register

	_, err = store.Push(ctx, "inst-1", "org-1", "org", -1, []NewEvent{{EventType: "org.created", Payload: json.RawMessage(`{}`)}})
	require.NoError(t, err)

	select {
	case ev := <-received:
		assert.Equal(t, "org.created", ev.EventType)
	case <-ctx.Done():
		t.Fatal("timed out waiting for subscription delivery")
	}
}
