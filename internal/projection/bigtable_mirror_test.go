package projection

import (
	"context"
	"testing"

	"cloud.google.com/go/bigtable"
	"cloud.google.com/go/bigtable/bttest"
	"github.com/haloiam/core/pkg/eventstore"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// newTestMirror stands up the in-memory Bigtable emulator bttest ships for
// exactly this purpose, so Apply/EventsAfterPosition exercise the real
// cloud.google.com/go/bigtable wire protocol without a live GCP project.
func newTestMirror(t *testing.T) *BigtableEventMirror {
	t.Helper()
	srv, err := bttest.NewServer("localhost:0")
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	ctx := context.Background()
	adminClient, err := bigtable.NewAdminClient(ctx, "test-project", "test-instance", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { adminClient.Close() })
	require.NoError(t, adminClient.CreateTable(ctx, "events"))
	require.NoError(t, adminClient.CreateColumnFamily(ctx, "events", "ev"))

	client, err := bigtable.NewClient(ctx, "test-project", "test-instance", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return NewBigtableEventMirror(client.Open("events"), "ev")
}

func TestBigtableEventMirrorApplyThenRead(t *testing.T) {
	mirror := newTestMirror(t)
	ctx := context.Background()

	events := []eventstore.Event{
		{
			ID: "ev-1", InstanceID: "inst-1", AggregateID: "org-1", AggregateType: "organization",
			EventType: "org.created", Version: 1, Position: eventstore.Position{Pos: 1, InTxOrder: 0},
			Payload: []byte(`{"name":"acme"}`),
		},
		{
			ID: "ev-2", InstanceID: "inst-1", AggregateID: "org-1", AggregateType: "organization",
			EventType: "org.renamed", Version: 2, Position: eventstore.Position{Pos: 2, InTxOrder: 0},
			Payload: []byte(`{"name":"acme-renamed"}`),
		},
	}
	require.NoError(t, mirror.Apply(ctx, nil, events))

	got, err := mirror.EventsAfterPosition(ctx, "inst-1", eventstore.Position{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "ev-1", got[0].ID)
	require.Equal(t, int64(1), got[0].Version)
	require.Equal(t, "ev-2", got[1].ID)
	require.JSONEq(t, `{"name":"acme-renamed"}`, string(got[1].Payload))
}

func TestBigtableEventMirrorEventsAfterPositionSkipsApplied(t *testing.T) {
	mirror := newTestMirror(t)
	ctx := context.Background()

	events := []eventstore.Event{
		{ID: "ev-1", InstanceID: "inst-1", AggregateID: "org-1", AggregateType: "organization", EventType: "org.created", Version: 1, Position: eventstore.Position{Pos: 1, InTxOrder: 0}, Payload: []byte(`{}`)},
		{ID: "ev-2", InstanceID: "inst-1", AggregateID: "org-1", AggregateType: "organization", EventType: "org.renamed", Version: 2, Position: eventstore.Position{Pos: 2, InTxOrder: 0}, Payload: []byte(`{}`)},
	}
	require.NoError(t, mirror.Apply(ctx, nil, events))

	got, err := mirror.EventsAfterPosition(ctx, "inst-1", eventstore.Position{Pos: 1, InTxOrder: 0}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "ev-2", got[0].ID)
}
