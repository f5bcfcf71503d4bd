// Package query implements the concrete read side: generic Request-driven
// search over each projection table, plus the label/login policy
// inheritance chain and the login-policy sub-aggregation: root row plus
// bounded child queries, never an N+1.
package query

import (
	"context"
	"fmt"

	"github.com/haloiam/core/internal/projection"
	"github.com/haloiam/core/pkg/query"
	"gorm.io/gorm"
)

// Page is the generic paged-result shape every search returns: the rows
// for this page, and the total count ignoring Offset/Limit so callers can
// render pagination without a second round trip.
type Page[T any] struct {
	Items []T
	Total int64
}

// Organizations searches organizations_projection.
func Organizations(ctx context.Context, db *gorm.DB, instanceID string, req query.Request) (Page[projection.OrganizationRow], error) {
	scope := scoped(db.WithContext(ctx), instanceID, "organizations_projection")
	return search[projection.OrganizationRow](scope, req)
}

// HumanUsers searches users_projection.
func HumanUsers(ctx context.Context, db *gorm.DB, instanceID string, req query.Request) (Page[projection.HumanUserRow], error) {
	scope := scoped(db.WithContext(ctx), instanceID, "users_projection")
	return search[projection.HumanUserRow](scope, req)
}

// OrgMembers searches org_members_projection.
func OrgMembers(ctx context.Context, db *gorm.DB, instanceID string, req query.Request) (Page[projection.OrgMemberRow], error) {
	scope := scoped(db.WithContext(ctx), instanceID, "org_members_projection")
	return search[projection.OrgMemberRow](scope, req)
}

func scoped(db *gorm.DB, instanceID, table string) *gorm.DB {
	return db.Table(table).Where(table+".instance_id = ?", instanceID)
}

func search[T any](scope *gorm.DB, req query.Request) (Page[T], error) {
	countScope := scope.Session(&gorm.Session{})
	if req.Filter != nil {
		clause, args := req.Filter.Clause()
		countScope = countScope.Where(clause, args...)
	}
	var total int64
	if err := countScope.Count(&total).Error; err != nil {
		return Page[T]{}, fmt.Errorf("query: counting rows: %w", err)
	}

	var items []T
	if err := query.Apply(scope, req).Find(&items).Error; err != nil {
		return Page[T]{}, fmt.Errorf("query: fetching rows: %w", err)
	}
	return Page[T]{Items: items, Total: total}, nil
}
