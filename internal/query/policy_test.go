package query

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/haloiam/core/internal/domain"
	"github.com/haloiam/core/internal/projection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newQueryDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, projection.AutoMigrate(db))
	return db
}

func TestResolveLabelPolicyFallsBackToBuiltInDefault(t *testing.T) {
	db := newQueryDB(t)

	row, err := ResolveLabelPolicy(context.Background(), db, "inst-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, builtInDefaultLabelPolicy.PrimaryColor, row.PrimaryColor)
	assert.True(t, row.IsInstanceDefault())
}

func TestResolveLabelPolicyWalksInheritanceChain(t *testing.T) {
	db := newQueryDB(t)
	ctx := context.Background()

	// Only the instance-default row exists: the org inherits it.
	require.NoError(t, db.Create(&projection.LabelPolicyRow{
		InstanceID: "inst-1", OwnerID: domain.InstanceDefaultOwner, PrimaryColor: "#111111",
	}).Error)

	row, err := ResolveLabelPolicy(ctx, db, "inst-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, "#111111", row.PrimaryColor)
	assert.True(t, row.IsInstanceDefault())

	// An org-scoped row overrides the instance default.
	require.NoError(t, db.Create(&projection.LabelPolicyRow{
		InstanceID: "inst-1", OwnerID: "org-1", PrimaryColor: "#222222",
	}).Error)

	row, err = ResolveLabelPolicy(ctx, db, "inst-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, "#222222", row.PrimaryColor)
	assert.False(t, row.IsInstanceDefault())
}

func TestResolveLabelPolicySkipsRemovedOrgRow(t *testing.T) {
	db := newQueryDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&projection.LabelPolicyRow{
		InstanceID: "inst-1", OwnerID: domain.InstanceDefaultOwner, PrimaryColor: "#111111",
	}).Error)
	require.NoError(t, db.Create(&projection.LabelPolicyRow{
		InstanceID: "inst-1", OwnerID: "org-1", PrimaryColor: "#222222", Removed: true,
	}).Error)

	row, err := ResolveLabelPolicy(ctx, db, "inst-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, "#111111", row.PrimaryColor, "a removed org row falls through to the instance default")
}

func TestResolveLabelPolicyNeverCrossesInstances(t *testing.T) {
	db := newQueryDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&projection.LabelPolicyRow{
		InstanceID: "inst-2", OwnerID: "org-1", PrimaryColor: "#999999",
	}).Error)

	row, err := ResolveLabelPolicy(ctx, db, "inst-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, builtInDefaultLabelPolicy.PrimaryColor, row.PrimaryColor,
		"another instance's org row must not leak into this instance's resolution")
}

func TestResolveLoginPolicySubAggregatesChildren(t *testing.T) {
	db := newQueryDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&projection.LoginPolicyRow{InstanceID: "inst-1", OwnerID: "org-1"}).Error)
	require.NoError(t, db.Create(&projection.LoginPolicySecondFactorRow{InstanceID: "inst-1", OwnerID: "org-1", Type: "otp"}).Error)
	require.NoError(t, db.Create(&projection.LoginPolicySecondFactorRow{InstanceID: "inst-1", OwnerID: "org-1", Type: "u2f"}).Error)
	require.NoError(t, db.Create(&projection.LoginPolicyLinkedIDPRow{InstanceID: "inst-1", OwnerID: "org-1", IDPID: "idp-9"}).Error)

	view, err := ResolveLoginPolicy(ctx, db, "inst-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", view.OwnerID)
	assert.ElementsMatch(t, []string{"otp", "u2f"}, view.SecondFactors)
	assert.Equal(t, []string{"idp-9"}, view.LinkedIDPs)
}

func TestResolveLoginPolicyInheritsInstanceDefault(t *testing.T) {
	db := newQueryDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&projection.LoginPolicyRow{InstanceID: "inst-1", OwnerID: domain.InstanceDefaultOwner}).Error)
	require.NoError(t, db.Create(&projection.LoginPolicySecondFactorRow{InstanceID: "inst-1", OwnerID: domain.InstanceDefaultOwner, Type: "otp"}).Error)

	view, err := ResolveLoginPolicy(ctx, db, "inst-1", "org-without-policy")
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceDefaultOwner, view.OwnerID)
	assert.Equal(t, []string{"otp"}, view.SecondFactors)
}
