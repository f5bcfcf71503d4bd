package domain

import (
	"testing"

	"github.com/haloiam/core/pkg/eventstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrganizationAddSetsActiveState(t *testing.T) {
	org := NewOrganization("inst-1", "org-1")
	require.NoError(t, org.Add("Acme"))

	assert.Equal(t, "Acme", org.Name)
	assert.Equal(t, StateActive, org.State)
	assert.Len(t, org.UncommittedEvents(), 1)
	assert.Equal(t, EventOrgAdded, org.UncommittedEvents()[0].EventType)
}

func TestOrganizationChangeNameIsIdempotent(t *testing.T) {
	org := NewOrganization("inst-1", "org-1")
	require.NoError(t, org.Add("Acme"))
	org.ClearUncommitted()

	require.NoError(t, org.ChangeName("Acme"))
	assert.Empty(t, org.UncommittedEvents(), "renaming to the same value should not append an event")

	require.NoError(t, org.ChangeName("Acme Corp"))
	assert.Len(t, org.UncommittedEvents(), 1)
	assert.Equal(t, "Acme Corp", org.Name)
}

func TestOrganizationDeactivateRejectsNonActive(t *testing.T) {
	org := NewOrganization("inst-1", "org-1")
	require.NoError(t, org.Add("Acme"))
	org.ClearUncommitted()

	require.NoError(t, org.Deactivate())
	assert.Equal(t, StateInactive, org.State)

	err := org.Deactivate()
	assert.Error(t, err)
}

func TestOrganizationReplayIsDeterministic(t *testing.T) {
	events := []eventstore.Event{
		{EventType: EventOrgAdded, Payload: mustJSON(t, OrgAddedPayload{Name: "Acme"}), Version: 1},
		{EventType: EventOrgNameChanged, Payload: mustJSON(t, OrgNameChangedPayload{Name: "Acme Corp"}), Version: 2},
		{EventType: EventOrgDeactivated, Payload: []byte(`{}`), Version: 3},
	}

	first := NewOrganization("inst-1", "org-1")
	require.NoError(t, first.LoadFromHistory(events))

	second := NewOrganization("inst-1", "org-1")
	require.NoError(t, second.LoadFromHistory(events))

	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, int64(3), first.Version())
}

func TestOrganizationReplayIgnoresUnknownEventType(t *testing.T) {
	org := NewOrganization("inst-1", "org-1")
	events := []eventstore.Event{
		{EventType: EventOrgAdded, Payload: mustJSON(t, OrgAddedPayload{Name: "Acme"}), Version: 1},
		{EventType: "org.rebranded.v2", Payload: []byte(`{"unused":true}`), Version: 2},
	}
	require.NoError(t, org.LoadFromHistory(events))
	assert.Equal(t, "Acme", org.Name)
	assert.Equal(t, int64(2), org.Version())
}
