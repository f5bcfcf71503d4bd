package projection

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/stretchr/testify/require"
)

func TestCheckpointKeyFormat(t *testing.T) {
	pk, sk := checkpointKey("inst-1", "org-read-model")
	require.Equal(t, "CHECKPOINT#inst-1", pk)
	require.Equal(t, "NAME#org-read-model", sk)
}

func TestCheckpointItemRoundTripsThroughAttributeValue(t *testing.T) {
	lease := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	item := checkpointItem{
		PK: "CHECKPOINT#inst-1", SK: "NAME#org-read-model",
		Pos: 42, InTxOrder: 3,
		Owner: "worker-1", LeaseExpiresAt: lease.Format(time.RFC3339Nano),
		RetryCount: 2, LastError: "boom", Failed: true,
	}

	av, err := attributevalue.MarshalMap(item)
	require.NoError(t, err)

	var roundTripped checkpointItem
	require.NoError(t, attributevalue.UnmarshalMap(av, &roundTripped))
	require.Equal(t, item, roundTripped)

	cp := roundTripped.toCheckpoint("inst-1", "org-read-model")
	require.Equal(t, int64(42), cp.Position.Pos)
	require.Equal(t, 3, cp.Position.InTxOrder)
	require.Equal(t, "worker-1", cp.Owner)
	require.Equal(t, 2, cp.RetryCount)
	require.Equal(t, "boom", cp.LastError)
	require.True(t, cp.Failed)
	require.True(t, lease.Equal(cp.LeaseExpiresAt))
}

func TestCheckpointItemMissingLeaseParsesToZeroTime(t *testing.T) {
	item := checkpointItem{PK: "CHECKPOINT#inst-1", SK: "NAME#org-read-model"}
	cp := item.toCheckpoint("inst-1", "org-read-model")
	require.True(t, cp.LeaseExpiresAt.IsZero())
	require.False(t, cp.Failed)
}
