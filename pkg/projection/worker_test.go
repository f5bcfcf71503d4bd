package projection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/haloiam/core/pkg/eventstore"
	"github.com/haloiam/core/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

// recordingProjector appends the event types it's asked to apply, so tests
// can assert on what and how many times it was called, and records each
// applied event ID in a set, so a redelivered event is counted only once.
type recordingProjector struct {
	name  string
	calls [][]string
	seen  map[string]bool
}

func newRecordingProjector(name string) *recordingProjector {
	return &recordingProjector{name: name, seen: map[string]bool{}}
}

func (p *recordingProjector) Name() string { return p.name }

func (p *recordingProjector) Apply(_ context.Context, _ *gorm.DB, events []eventstore.Event) error {
	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
		p.seen[e.ID] = true
	}
	p.calls = append(p.calls, types)
	return nil
}

func TestWorkerTickAppliesAndAdvancesCheckpoint(t *testing.T) {
	db := newTestDB(t)
	store, err := eventstore.New(db, logging.New("error", "text"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	_, err = store.Push(ctx, "inst-1", "org-1", "org", -1, []eventstore.NewEvent{
		{EventType: "org.created", Payload: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)

	checkpoints, err := NewGormCheckpointStore(db)
	require.NoError(t, err)
	proj := newRecordingProjector("org-read-model")
	w := &Worker{InstanceID: "inst-1", Store: store, Checkpoints: checkpoints, Projector: proj, Owner: "worker-1"}

	n, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, [][]string{{"org.created"}}, proj.calls)

	cp, err := checkpoints.Get(ctx, "inst-1", "org-read-model")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp.Position.Pos)

	n, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second tick with nothing new applies nothing")
}

func TestWorkerTickSkipsWhenLeaseHeldByAnotherOwner(t *testing.T) {
	db := newTestDB(t)
	store, err := eventstore.New(db, logging.New("error", "text"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	checkpoints, err := NewGormCheckpointStore(db)
	require.NoError(t, err)

	_, acquired, err := checkpoints.Acquire(ctx, "inst-1", "org-read-model", "other-owner", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	proj := newRecordingProjector("org-read-model")
	w := &Worker{InstanceID: "inst-1", Store: store, Checkpoints: checkpoints, Projector: proj, Owner: "worker-1"}

	n, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, proj.calls)
}

func TestWorkerTickResumesFromCheckpointWithoutReapplying(t *testing.T) {
	db := newTestDB(t)
	store, err := eventstore.New(db, logging.New("error", "text"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	_, err = store.Push(ctx, "inst-1", "org-1", "org", -1, []eventstore.NewEvent{
		{EventType: "org.created", Payload: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)
	_, err = store.Push(ctx, "inst-1", "org-1", "org", 1, []eventstore.NewEvent{
		{EventType: "org.renamed", Payload: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)

	checkpoints, err := NewGormCheckpointStore(db)
	require.NoError(t, err)
	proj := newRecordingProjector("org-read-model")
	w := &Worker{InstanceID: "inst-1", Store: store, Checkpoints: checkpoints, Projector: proj, Owner: "worker-1", BatchSize: 1}

	n, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, [][]string{{"org.created"}, {"org.renamed"}}, proj.calls)
}

// filteringProjector declares a TypeFilter so the worker only hands it
// matching events.
type filteringProjector struct {
	recordingProjector
	aggTypes []string
}

func (p *filteringProjector) AggregateTypes() []string { return p.aggTypes }
func (p *filteringProjector) EventTypes() []string     { return nil }

func TestWorkerFiltersEventsButAdvancesOverFullBatch(t *testing.T) {
	db := newTestDB(t)
	store, err := eventstore.New(db, logging.New("error", "text"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	_, err = store.Push(ctx, "inst-1", "org-1", "org", -1, []eventstore.NewEvent{
		{EventType: "org.created", Payload: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)
	events, err := store.Push(ctx, "inst-1", "user-1", "user", -1, []eventstore.NewEvent{
		{EventType: "user.human.added", Payload: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)

	checkpoints, err := NewGormCheckpointStore(db)
	require.NoError(t, err)
	proj := &filteringProjector{recordingProjector: *newRecordingProjector("user-read-model"), aggTypes: []string{"user"}}
	w := &Worker{InstanceID: "inst-1", Store: store, Checkpoints: checkpoints, Projector: proj, Owner: "worker-1"}

	n, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the user event is handed to the projector")
	assert.Equal(t, [][]string{{"user.human.added"}}, proj.calls)

	cp, err := checkpoints.Get(ctx, "inst-1", "user-read-model")
	require.NoError(t, err)
	assert.Equal(t, events[0].Position, cp.Position, "checkpoint advances past the org event it skipped")
}

func TestWorkerRunDrainsBacklogWithoutWaitingForNextInterval(t *testing.T) {
	db := newTestDB(t)
	store, err := eventstore.New(db, logging.New("error", "text"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	backlog := []eventstore.NewEvent{
		{EventType: "org.created", Payload: json.RawMessage(`{}`)},
		{EventType: "org.renamed", Payload: json.RawMessage(`{}`)},
		{EventType: "org.renamed", Payload: json.RawMessage(`{}`)},
		{EventType: "org.renamed", Payload: json.RawMessage(`{}`)},
		{EventType: "org.deactivated", Payload: json.RawMessage(`{}`)},
	}
	events, err := store.Push(ctx, "inst-1", "org-1", "org", -1, backlog)
	require.NoError(t, err)
	tip := events[len(events)-1].Position

	checkpoints, err := NewGormCheckpointStore(db)
	require.NoError(t, err)
	proj := newRecordingProjector("org-read-model")
	// BatchSize 2 against a 5-event backlog needs three back-to-back polls;
	// the hour-long interval and single Wake mean only the drain loop can
	// deliver them.
	w := &Worker{InstanceID: "inst-1", Store: store, Checkpoints: checkpoints, Projector: proj, Owner: "worker-1", BatchSize: 2}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = w.Run(runCtx, time.Hour) }()

	w.Wake()

	require.Eventually(t, func() bool {
		cp, err := checkpoints.Get(ctx, "inst-1", "org-read-model")
		return err == nil && !cp.Position.Less(tip)
	}, 2*time.Second, 10*time.Millisecond, "a full batch must trigger an immediate follow-up poll, not a sleep")
	assert.Len(t, proj.seen, len(backlog))
}

func TestWorkerWakeTriggersTickWithoutWaitingForInterval(t *testing.T) {
	db := newTestDB(t)
	store, err := eventstore.New(db, logging.New("error", "text"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	_, err = store.Push(ctx, "inst-1", "org-1", "org", -1, []eventstore.NewEvent{
		{EventType: "org.created", Payload: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)

	checkpoints, err := NewGormCheckpointStore(db)
	require.NoError(t, err)
	proj := newRecordingProjector("org-read-model")
	// Poll interval far beyond the test's deadline: only a Wake can cause
	// the tick that applies the event.
	w := &Worker{InstanceID: "inst-1", Store: store, Checkpoints: checkpoints, Projector: proj, Owner: "worker-1"}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = w.Run(runCtx, time.Hour) }()

	w.Wake()

	require.Eventually(t, func() bool {
		cp, err := checkpoints.Get(ctx, "inst-1", "org-read-model")
		return err == nil && cp.Position.Pos == 1
	}, 2*time.Second, 10*time.Millisecond, "wake should cause an immediate poll")
}
