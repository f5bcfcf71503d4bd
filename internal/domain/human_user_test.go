package domain

import (
	"testing"

	"github.com/haloiam/core/pkg/eventstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanUserAdd(t *testing.T) {
	u := NewHumanUser("inst-1", "user-1")
	require.NoError(t, u.Add("alice", "alice@acme.com", "Al", "Ice", "$2a$hash"))

	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@acme.com", u.Email)
	assert.Equal(t, StateActive, u.State)
}

func TestHumanUserChangeEmailIdempotent(t *testing.T) {
	u := NewHumanUser("inst-1", "user-1")
	require.NoError(t, u.Add("alice", "alice@acme.com", "Al", "Ice", "$2a$hash"))
	u.ClearUncommitted()

	require.NoError(t, u.ChangeEmail("alice@acme.com"))
	assert.Empty(t, u.UncommittedEvents())

	require.NoError(t, u.ChangeEmail("alice@newdomain.com"))
	assert.Len(t, u.UncommittedEvents(), 1)
	assert.Equal(t, "alice@newdomain.com", u.Email)
}

func TestHumanUserRemoveRejectsDoubleRemoval(t *testing.T) {
	u := NewHumanUser("inst-1", "user-1")
	require.NoError(t, u.Add("alice", "alice@acme.com", "Al", "Ice", "$2a$hash"))
	require.NoError(t, u.Remove())
	assert.Error(t, u.Remove())
}

func TestHumanUserLegacyV1AddedAlias(t *testing.T) {
	u := NewHumanUser("inst-1", "user-1")
	events := []eventstore.Event{
		{
			EventType: EventHumanUserAddedV1,
			Payload: mustJSON(t, HumanUserAddedPayload{
				Username: "bob", Email: "bob@acme.com", FirstName: "Bob", LastName: "Jones", PasswordHash: "$2a$hash",
			}),
			Version: 1,
		},
	}
	require.NoError(t, u.LoadFromHistory(events))
	assert.Equal(t, "bob", u.Username)
	assert.Equal(t, StateActive, u.State)
}
