package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEqClause(t *testing.T) {
	c, args := Eq{Column: Col("orgs", "name"), Value: "acme"}.Clause()
	assert.Equal(t, "orgs.name = ?", c)
	assert.Equal(t, []interface{}{"acme"}, args)
}

func TestContainsClauseLowercases(t *testing.T) {
	c, args := Contains{Column: Col("users", "email"), Value: "Alice"}.Clause()
	assert.Contains(t, c, "LIKE")
	assert.Equal(t, []interface{}{"%alice%"}, args)
}

func TestInClauseWithEmptyValuesNeverMatches(t *testing.T) {
	c, args := In{Column: Col("orgs", "id")}.Clause()
	assert.Equal(t, "1 = 0", c)
	assert.Nil(t, args)
}

func TestInClauseBuildsPlaceholderList(t *testing.T) {
	c, args := In{Column: Col("orgs", "id"), Values: []interface{}{"a", "b", "c"}}.Clause()
	assert.Equal(t, "orgs.id IN (?,?,?)", c)
	assert.Len(t, args, 3)
}

func TestDateRangeClauseBindsBothEnds(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	c, args := DateRange{Column: Col("events", "created_at"), From: from, To: to}.Clause()
	assert.Contains(t, c, ">=")
	assert.Contains(t, c, "<=")
	assert.Equal(t, []interface{}{from, to}, args)
}

func TestAndCombinesAllSubFilters(t *testing.T) {
	f := And{Filters: []Filter{
		Eq{Column: Col("orgs", "state"), Value: "active"},
		Gt(Col("orgs", "created_at"), time.Now()),
	}}
	c, args := f.Clause()
	assert.Contains(t, c, " AND ")
	assert.Len(t, args, 2)
}

func TestOrMatchesAnySubFilter(t *testing.T) {
	f := Or{Filters: []Filter{
		Eq{Column: Col("orgs", "state"), Value: "active"},
		Eq{Column: Col("orgs", "state"), Value: "pending"},
	}}
	c, _ := f.Clause()
	assert.Contains(t, c, " OR ")
}

func TestNotNegatesSubFilter(t *testing.T) {
	c, _ := Not{Filter: Eq{Column: Col("orgs", "state"), Value: "removed"}}.Clause()
	assert.True(t, c[:4] == "NOT ")
}

func TestIsNullNegated(t *testing.T) {
	c, _ := IsNull{Column: Col("users", "deleted_at"), Negate: true}.Clause()
	assert.Contains(t, c, "IS NOT NULL")
}

func TestEmptyAndMatchesEverything(t *testing.T) {
	c, args := And{}.Clause()
	assert.Equal(t, "1 = 1", c)
	assert.Nil(t, args)
}
