package projection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/haloiam/core/internal/domain"
	"github.com/haloiam/core/pkg/eventstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newProjectionDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func event(instanceID, aggType, aggID, eventType string, version int64, payload interface{}) eventstore.Event {
	raw, _ := json.Marshal(payload)
	return eventstore.Event{
		ID:            eventType + "-" + aggID,
		InstanceID:    instanceID,
		AggregateID:   aggID,
		AggregateType: aggType,
		EventType:     eventType,
		Version:       version,
		Revision:      1,
		Position:      eventstore.Position{Pos: version},
		Payload:       raw,
		Owner:         aggID,
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func orgStream() []eventstore.Event {
	return []eventstore.Event{
		event("inst-1", domain.AggregateTypeOrg, "org-1", domain.EventOrgAdded, 1, domain.OrgAddedPayload{Name: "Acme"}),
		event("inst-1", domain.AggregateTypeOrg, "org-1", domain.EventOrgNameChanged, 2, domain.OrgNameChangedPayload{Name: "Acme GmbH"}),
		event("inst-1", domain.AggregateTypeOrg, "org-1", domain.EventOrgDeactivated, 3, struct{}{}),
	}
}

func TestOrganizationProjectorAppliesStream(t *testing.T) {
	db := newProjectionDB(t)
	proj := OrganizationProjector{}
	require.NoError(t, proj.Apply(context.Background(), db, orgStream()))

	var row OrganizationRow
	require.NoError(t, db.Where("instance_id = ? AND org_id = ?", "inst-1", "org-1").First(&row).Error)
	assert.Equal(t, "Acme GmbH", row.Name)
	assert.Equal(t, "inactive", row.State)
	assert.Equal(t, int64(3), row.Sequence, "sequence tracks the aggregate version that produced the row")
}

func TestOrganizationProjectorIsIdempotentOnRedelivery(t *testing.T) {
	db := newProjectionDB(t)
	proj := OrganizationProjector{}
	stream := orgStream()
	ctx := context.Background()

	// Apply a prefix, then the full stream again — the crash-between-apply-
	// and-advance shape. The row must land where a single pass would have
	// put it, with no duplicates.
	require.NoError(t, proj.Apply(ctx, db, stream[:2]))
	require.NoError(t, proj.Apply(ctx, db, stream))
	require.NoError(t, proj.Apply(ctx, db, stream[1:]))

	var rows []OrganizationRow
	require.NoError(t, db.Where("instance_id = ?", "inst-1").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "Acme GmbH", rows[0].Name)
	assert.Equal(t, "inactive", rows[0].State)
}

func TestHumanUserProjectorAcceptsLegacyV1Alias(t *testing.T) {
	db := newProjectionDB(t)
	proj := HumanUserProjector{}
	ev := event("inst-1", domain.AggregateTypeHumanUser, "user-1", domain.EventHumanUserAddedV1, 1,
		domain.HumanUserAddedPayload{Username: "alice", Email: "alice@acme.com", FirstName: "Al", LastName: "Ice"})
	require.NoError(t, proj.Apply(context.Background(), db, []eventstore.Event{ev}))

	var row HumanUserRow
	require.NoError(t, db.Where("instance_id = ? AND user_id = ?", "inst-1", "user-1").First(&row).Error)
	assert.Equal(t, "alice", row.Username)
	assert.Equal(t, "active", row.State)
}

func TestProjectorsIgnoreUnknownEventTypes(t *testing.T) {
	db := newProjectionDB(t)
	proj := OrganizationProjector{}
	unknown := event("inst-1", domain.AggregateTypeOrg, "org-1", "org.something.new", 1, struct{}{})
	require.NoError(t, proj.Apply(context.Background(), db, []eventstore.Event{unknown}))

	var count int64
	require.NoError(t, db.Model(&OrganizationRow{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLoginPolicyProjectorMaintainsChildTables(t *testing.T) {
	db := newProjectionDB(t)
	proj := LoginPolicyProjector{}
	ctx := context.Background()

	stream := []eventstore.Event{
		event("inst-1", domain.AggregateTypeLoginPolicy, "org-1", domain.EventLoginPolicyAdded, 1, domain.LoginPolicyAddedPayload{}),
		event("inst-1", domain.AggregateTypeLoginPolicy, "org-1", domain.EventLoginPolicySecondFactorAdded, 2, domain.SecondFactorPayload{Type: "otp"}),
		event("inst-1", domain.AggregateTypeLoginPolicy, "org-1", domain.EventLoginPolicyIDPLinked, 3, domain.IDPLinkPayload{IDPID: "idp-9"}),
		event("inst-1", domain.AggregateTypeLoginPolicy, "org-1", domain.EventLoginPolicySecondFactorRemoved, 4, domain.SecondFactorPayload{Type: "otp"}),
	}
	require.NoError(t, proj.Apply(ctx, db, stream))
	// Redeliver the tail: the delete and the insert must both be no-ops.
	require.NoError(t, proj.Apply(ctx, db, stream[2:]))

	var factors []LoginPolicySecondFactorRow
	require.NoError(t, db.Where("instance_id = ? AND owner_id = ?", "inst-1", "org-1").Find(&factors).Error)
	assert.Empty(t, factors)

	var idps []LoginPolicyLinkedIDPRow
	require.NoError(t, db.Where("instance_id = ? AND owner_id = ?", "inst-1", "org-1").Find(&idps).Error)
	require.Len(t, idps, 1)
	assert.Equal(t, "idp-9", idps[0].IDPID)
}
