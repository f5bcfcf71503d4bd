package eventstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSearchFixtures(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Push(ctx, "inst-1", "org-1", "org", -1, []NewEvent{
		{EventType: "org.added", Payload: json.RawMessage(`{"name":"acme"}`), Creator: "admin"},
	})
	require.NoError(t, err)
	_, err = store.Push(ctx, "inst-1", "user-1", "user", -1, []NewEvent{
		{EventType: "user.human.added", Payload: json.RawMessage(`{}`), Creator: "admin", Owner: "org-1"},
		{EventType: "user.human.email.changed", Payload: json.RawMessage(`{}`), Creator: "admin", Owner: "org-1"},
	})
	require.NoError(t, err)
	_, err = store.Push(ctx, "inst-2", "org-9", "org", -1, []NewEvent{
		{EventType: "org.added", Payload: json.RawMessage(`{"name":"other"}`)},
	})
	require.NoError(t, err)
}

func TestQueryRequiresInstanceID(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Query(context.Background(), SearchQuery{})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestQueryFiltersByAggregateAndEventType(t *testing.T) {
	store := newTestStore(t)
	seedSearchFixtures(t, store)
	ctx := context.Background()

	orgs, err := store.Query(ctx, SearchQuery{InstanceID: "inst-1", AggregateTypes: []string{"org"}})
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "org.added", orgs[0].EventType)

	emails, err := store.Query(ctx, SearchQuery{InstanceID: "inst-1", EventTypes: []string{"user.human.email.changed"}})
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "user-1", emails[0].AggregateID)
}

func TestQueryFiltersByOwner(t *testing.T) {
	store := newTestStore(t)
	seedSearchFixtures(t, store)

	owned, err := store.Query(context.Background(), SearchQuery{InstanceID: "inst-1", Owner: "org-1"})
	require.NoError(t, err)
	require.Len(t, owned, 3, "org events default to self-owned, user events carry the org as owner")
	for _, ev := range owned {
		assert.Equal(t, "org-1", ev.Owner)
	}
}

func TestQueryNeverCrossesInstances(t *testing.T) {
	store := newTestStore(t)
	seedSearchFixtures(t, store)

	all, err := store.Query(context.Background(), SearchQuery{InstanceID: "inst-2"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "org-9", all[0].AggregateID)
}

func TestQueryPositionRangeIsHalfOpen(t *testing.T) {
	store := newTestStore(t)
	seedSearchFixtures(t, store)
	ctx := context.Background()

	all, err := store.Query(ctx, SearchQuery{InstanceID: "inst-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)

	// (from, to] excludes the first event and includes the last.
	ranged, err := store.Query(ctx, SearchQuery{
		InstanceID: "inst-1",
		From:       all[0].Position,
		To:         all[2].Position,
	})
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, all[1].ID, ranged[0].ID)
	assert.Equal(t, all[2].ID, ranged[1].ID)
}

func TestLatestEventReturnsHighestPosition(t *testing.T) {
	store := newTestStore(t)
	seedSearchFixtures(t, store)

	latest, err := store.LatestEvent(context.Background(), SearchQuery{InstanceID: "inst-1"})
	require.NoError(t, err)
	assert.Equal(t, "user.human.email.changed", latest.EventType)
	assert.Equal(t, int64(2), latest.Version)
}

func TestPushStampsCreatorOwnerAndRevision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	events, err := store.Push(ctx, "inst-1", "org-1", "org", -1, []NewEvent{
		{EventType: "org.added", Payload: json.RawMessage(`{}`), Creator: "alice"},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].Creator)
	assert.Equal(t, "org-1", events[0].Owner, "owner defaults to the aggregate id")
	assert.Equal(t, 1, events[0].Revision, "revision defaults to 1")

	reloaded, err := store.LoadAggregate(ctx, "inst-1", "org-1")
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	assert.Equal(t, events[0].Creator, reloaded[0].Creator)
	assert.Equal(t, events[0].Owner, reloaded[0].Owner)
	assert.Equal(t, events[0].Revision, reloaded[0].Revision)
}

func TestHealthReportsReachableStore(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Health(context.Background()))
}
