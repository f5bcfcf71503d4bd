// Package projection implements the concrete read models the write side's
// events are projected into: one GORM-backed table per aggregate (plus two
// child tables for login policy's second factors and linked IDPs), each
// fed by a pkg/projection.Worker through a Projector that applies events
// idempotently via upsert.
package projection

import (
	"time"

	"github.com/haloiam/core/internal/domain"
)

// OrganizationRow is the org read table.
type OrganizationRow struct {
	InstanceID string `gorm:"primaryKey"`
	OrgID      string `gorm:"primaryKey"`
	Name       string
	State      string
	Sequence   int64
	UpdatedAt  time.Time
}

func (OrganizationRow) TableName() string { return "organizations_projection" }

// HumanUserRow is the user read table.
type HumanUserRow struct {
	InstanceID string `gorm:"primaryKey"`
	UserID     string `gorm:"primaryKey"`
	Username   string `gorm:"index"`
	Email      string
	FirstName  string
	LastName   string
	State      string
	Sequence   int64
	UpdatedAt  time.Time
}

func (HumanUserRow) TableName() string { return "users_projection" }

// OrgMemberRow is the org membership read table. Roles is stored as a
// comma-joined string — the query layer only ever needs "does this set
// contain X", which Contains already expresses without a join table.
type OrgMemberRow struct {
	InstanceID string `gorm:"primaryKey"`
	OrgID      string `gorm:"primaryKey"`
	UserID     string `gorm:"primaryKey"`
	Roles      string
	Removed    bool
	Sequence   int64
	UpdatedAt  time.Time
}

func (OrgMemberRow) TableName() string { return "org_members_projection" }

// LabelPolicyRow is the label policy read table, org-scoped or keyed by
// domain.InstanceDefaultOwner.
type LabelPolicyRow struct {
	InstanceID   string `gorm:"primaryKey"`
	OwnerID      string `gorm:"primaryKey"`
	PrimaryColor string
	LogoURL      string
	Removed      bool
	Sequence     int64
	UpdatedAt    time.Time
}

func (LabelPolicyRow) TableName() string { return "label_policies_projection" }

// IsInstanceDefault reports whether this row is the bottom-of-chain
// instance-default policy rather than an org override.
func (r LabelPolicyRow) IsInstanceDefault() bool { return r.OwnerID == domain.InstanceDefaultOwner }

// LoginPolicyRow is the login policy root read table.
type LoginPolicyRow struct {
	InstanceID string `gorm:"primaryKey"`
	OwnerID    string `gorm:"primaryKey"`
	Removed    bool
	Sequence   int64
	UpdatedAt  time.Time
}

func (LoginPolicyRow) TableName() string { return "login_policies_projection" }

// LoginPolicySecondFactorRow is a login policy's child row: one per
// enabled second-factor type, loaded as a bounded child-row query off
// the root policy row, never an N+1 per parent row.
type LoginPolicySecondFactorRow struct {
	InstanceID string `gorm:"primaryKey"`
	OwnerID    string `gorm:"primaryKey"`
	Type       string `gorm:"primaryKey"`
}

func (LoginPolicySecondFactorRow) TableName() string { return "login_policy_second_factors" }

// LoginPolicyLinkedIDPRow is a login policy's other child row: one per
// linked IDP id.
type LoginPolicyLinkedIDPRow struct {
	InstanceID string `gorm:"primaryKey"`
	OwnerID    string `gorm:"primaryKey"`
	IDPID      string `gorm:"primaryKey"`
}

func (LoginPolicyLinkedIDPRow) TableName() string { return "login_policy_linked_idps" }
