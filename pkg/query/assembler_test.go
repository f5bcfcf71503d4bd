package query

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type orgRow struct {
	ID    string
	Name  string
	State string
}

func (orgRow) TableName() string { return "orgs" }

func seedOrgs(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&orgRow{}))
	require.NoError(t, db.Create(&[]orgRow{
		{ID: "1", Name: "acme", State: "active"},
		{ID: "2", Name: "beta", State: "active"},
		{ID: "3", Name: "cee", State: "removed"},
	}).Error)
	return db
}

func TestApplyFiltersByEquality(t *testing.T) {
	db := seedOrgs(t)
	var rows []orgRow
	req := Request{Filter: Eq{Column: Col("orgs", "state"), Value: "active"}}
	require.NoError(t, Apply(db, req).Find(&rows).Error)
	assert.Len(t, rows, 2)
}

func TestApplyClampsDefaultLimit(t *testing.T) {
	db := seedOrgs(t)
	var rows []orgRow
	require.NoError(t, Apply(db, Request{}).Find(&rows).Error)
	assert.Len(t, rows, 3)
}

func TestApplySortsAscending(t *testing.T) {
	db := seedOrgs(t)
	var rows []orgRow
	req := Request{Sort: []Sort{{Column: Col("orgs", "name"), Direction: Asc}}}
	require.NoError(t, Apply(db, req).Find(&rows).Error)
	require.Len(t, rows, 3)
	assert.Equal(t, "acme", rows[0].Name)
	assert.Equal(t, "cee", rows[2].Name)
}

func TestApplyOffsetAndLimit(t *testing.T) {
	db := seedOrgs(t)
	var rows []orgRow
	req := Request{Sort: []Sort{{Column: Col("orgs", "name"), Direction: Asc}}, Offset: 1, Limit: 1}
	require.NoError(t, Apply(db, req).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "beta", rows[0].Name)
}

func TestClampedLimitEnforcesMax(t *testing.T) {
	r := Request{Limit: MaxLimit + 100}
	assert.Equal(t, MaxLimit, r.ClampedLimit())
}

func TestClampedLimitDefaultsWhenUnset(t *testing.T) {
	assert.Equal(t, DefaultLimit, Request{}.ClampedLimit())
}
