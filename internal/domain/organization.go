package domain

import (
	"encoding/json"
	"fmt"

	"github.com/haloiam/core/pkg/aggregate"
)

// AggregateTypeOrg is org's aggregate_type discriminator.
const AggregateTypeOrg = "org"

// Organization is the tenant-scoping aggregate every user, membership, and
// policy in an instance ultimately belongs to (via Owner/resource_owner).
type Organization struct {
	aggregate.WriteModel
	Name  string
	State State
}

// NewOrganization builds an empty, Init'd Organization ready for either Add
// (new aggregate) or LoadFromHistory (existing one).
func NewOrganization(instanceID, id string) *Organization {
	o := &Organization{}
	o.Init(instanceID, id, AggregateTypeOrg, aggregate.ReducerTable{
		EventOrgAdded:       o.reduceAdded,
		EventOrgNameChanged: o.reduceNameChanged,
		EventOrgDeactivated: o.reduceDeactivated,
		EventOrgReactivated: o.reduceReactivated,
		EventOrgRemoved:     o.reduceRemoved,
	})
	return o
}

// Add records org.added. The caller (internal/command) has already checked
// existence via Version()==0 before calling this.
func (o *Organization) Add(name string) error {
	return o.Record(EventOrgAdded, OrgAddedPayload{Name: name}, nil)
}

// ChangeName records org.changed.name, or is a no-op if name already
// matches — an achieved effect returns success without a new event.
func (o *Organization) ChangeName(name string) error {
	if o.Name == name {
		return nil
	}
	return o.Record(EventOrgNameChanged, OrgNameChangedPayload{Name: name}, nil)
}

// Deactivate records org.deactivated if currently active.
func (o *Organization) Deactivate() error {
	if o.State != StateActive {
		return fmt.Errorf("organization %s is not active", o.ID())
	}
	return o.Record(EventOrgDeactivated, struct{}{}, nil)
}

// Reactivate records org.reactivated if currently inactive.
func (o *Organization) Reactivate() error {
	if o.State != StateInactive {
		return fmt.Errorf("organization %s is not inactive", o.ID())
	}
	return o.Record(EventOrgReactivated, struct{}{}, nil)
}

// Remove records org.removed.
func (o *Organization) Remove() error {
	if o.State == StateRemoved {
		return fmt.Errorf("organization %s already removed", o.ID())
	}
	return o.Record(EventOrgRemoved, struct{}{}, nil)
}

func (o *Organization) reduceAdded(payload json.RawMessage) error {
	var p OrgAddedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	o.Name = p.Name
	o.State = StateActive
	return nil
}

func (o *Organization) reduceNameChanged(payload json.RawMessage) error {
	var p OrgNameChangedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	o.Name = p.Name
	return nil
}

func (o *Organization) reduceDeactivated(json.RawMessage) error {
	o.State = StateInactive
	return nil
}

func (o *Organization) reduceReactivated(json.RawMessage) error {
	o.State = StateActive
	return nil
}

func (o *Organization) reduceRemoved(json.RawMessage) error {
	o.State = StateRemoved
	return nil
}
