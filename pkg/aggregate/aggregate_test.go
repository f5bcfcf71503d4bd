package aggregate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haloiam/core/pkg/eventstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	WriteModel
	total int
}

type incrementedPayload struct {
	By int `json:"by"`
}

func newCounter(instanceID, id string) *counter {
	c := &counter{}
	c.Init(instanceID, id, "counter", ReducerTable{
		"counter.incremented": func(payload json.RawMessage) error {
			var p incrementedPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			c.total += p.By
			return nil
		},
	})
	return c
}

func (c *counter) Increment(by int) error {
	return c.Record("counter.incremented", incrementedPayload{By: by}, nil)
}

func TestRecordAppliesAndBuffers(t *testing.T) {
	c := newCounter("inst-1", "ctr-1")
	require.NoError(t, c.Increment(3))
	require.NoError(t, c.Increment(4))

	assert.Equal(t, 7, c.total)
	assert.Len(t, c.UncommittedEvents(), 2)
	assert.Equal(t, int64(0), c.Version())
}

func TestRecordUnknownEventTypeErrors(t *testing.T) {
	c := &counter{}
	c.Init("inst-1", "ctr-1", "counter", ReducerTable{})
	err := c.Record("counter.incremented", incrementedPayload{By: 1}, nil)
	assert.Error(t, err)
}

func TestLoadReplaysWithoutBuffering(t *testing.T) {
	c := newCounter("inst-1", "ctr-1")
	events := []eventstore.Event{
		{EventType: "counter.incremented", Payload: json.RawMessage(`{"by":2}`), Version: 1},
		{EventType: "counter.incremented", Payload: json.RawMessage(`{"by":5}`), Version: 2},
	}
	require.NoError(t, c.LoadFromHistory(events))

	assert.Equal(t, 7, c.total)
	assert.Equal(t, int64(2), c.Version())
	assert.Empty(t, c.UncommittedEvents())
}

type fakeStore struct {
	eventstore.EventStore
	events []eventstore.Event
}

func (f *fakeStore) LoadAggregate(_ context.Context, _, _ string) ([]eventstore.Event, error) {
	return f.events, nil
}

func TestLoadHelperReturnsEventCount(t *testing.T) {
	c := newCounter("inst-1", "ctr-1")
	c.ClearUncommitted()
	store := &fakeStore{events: []eventstore.Event{
		{EventType: "counter.incremented", Payload: json.RawMessage(`{"by":1}`), Version: 1},
	}}
	n, err := Load(context.Background(), store, &c.WriteModel)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
