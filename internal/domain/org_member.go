package domain

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/haloiam/core/pkg/aggregate"
)

// AggregateTypeOrgMember is org_member's aggregate_type discriminator. Its
// aggregate id is deterministic (orgID+"/"+userID, see internal/command),
// so "add the same member twice" is itself a version conflict rather than
// needing a separate unique constraint.
const AggregateTypeOrgMember = "org_member"

// OrgMember links one user to one org with a set of roles.
type OrgMember struct {
	aggregate.WriteModel
	OrgID   string
	UserID  string
	Roles   []string
	Removed bool
}

// NewOrgMember builds an empty, Init'd OrgMember.
func NewOrgMember(instanceID, id string) *OrgMember {
	m := &OrgMember{}
	m.Init(instanceID, id, AggregateTypeOrgMember, aggregate.ReducerTable{
		EventOrgMemberAdded:        m.reduceAdded,
		EventOrgMemberRolesChanged: m.reduceRolesChanged,
		EventOrgMemberRemoved:      m.reduceRemoved,
	})
	return m
}

// Add records org_member.added.
func (m *OrgMember) Add(orgID, userID string, roles []string) error {
	return m.Record(EventOrgMemberAdded, OrgMemberAddedPayload{OrgID: orgID, UserID: userID, Roles: normalizeRoles(roles)}, nil)
}

// ChangeRoles records org_member.roles.changed, or no-ops if the role set
// is unchanged.
func (m *OrgMember) ChangeRoles(roles []string) error {
	next := normalizeRoles(roles)
	if rolesEqual(m.Roles, next) {
		return nil
	}
	return m.Record(EventOrgMemberRolesChanged, OrgMemberRolesChangedPayload{Roles: next}, nil)
}

// Remove records org_member.removed.
func (m *OrgMember) Remove() error {
	if m.Removed {
		return fmt.Errorf("membership %s already removed", m.ID())
	}
	return m.Record(EventOrgMemberRemoved, struct{}{}, nil)
}

func normalizeRoles(roles []string) []string {
	out := append([]string(nil), roles...)
	sort.Strings(out)
	return out
}

func rolesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (m *OrgMember) reduceAdded(payload json.RawMessage) error {
	var p OrgMemberAddedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	m.OrgID = p.OrgID
	m.UserID = p.UserID
	m.Roles = p.Roles
	return nil
}

func (m *OrgMember) reduceRolesChanged(payload json.RawMessage) error {
	var p OrgMemberRolesChangedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	m.Roles = p.Roles
	return nil
}

func (m *OrgMember) reduceRemoved(json.RawMessage) error {
	m.Removed = true
	return nil
}
