package domain

import (
	"encoding/json"
	"fmt"

	"github.com/haloiam/core/pkg/aggregate"
)

// AggregateTypeLabelPolicy is label_policy's aggregate_type discriminator.
const AggregateTypeLabelPolicy = "label_policy"

// InstanceDefaultOwner is the aggregate id (and Owner) used for the one
// instance-default label/login policy row per instance — the bottom rung
// of the resolution chain above the built-in hard-coded default. An
// org-scoped policy instead uses the org's own id as both aggregate id and
// Owner.
const InstanceDefaultOwner = "instance-default"

// LabelPolicy is a branding policy: either one org's override, or the
// instance-wide default every org without its own row falls back to.
type LabelPolicy struct {
	aggregate.WriteModel
	PrimaryColor string
	LogoURL      string
	Removed      bool
}

// NewLabelPolicy builds an empty, Init'd LabelPolicy.
func NewLabelPolicy(instanceID, id string) *LabelPolicy {
	p := &LabelPolicy{}
	p.Init(instanceID, id, AggregateTypeLabelPolicy, aggregate.ReducerTable{
		EventLabelPolicyAdded:   p.reduceAdded,
		EventLabelPolicyChanged: p.reduceChanged,
		EventLabelPolicyRemoved: p.reduceRemoved,
	})
	return p
}

// Add records label_policy.added.
func (p *LabelPolicy) Add(primaryColor, logoURL string) error {
	return p.Record(EventLabelPolicyAdded, LabelPolicyAddedPayload{PrimaryColor: primaryColor, LogoURL: logoURL}, nil)
}

// Change records label_policy.changed for whichever fields are non-empty,
// or no-ops if nothing would actually change.
func (p *LabelPolicy) Change(primaryColor, logoURL string) error {
	payload := LabelPolicyChangedPayload{}
	changed := false
	if primaryColor != "" && primaryColor != p.PrimaryColor {
		payload.PrimaryColor = &primaryColor
		changed = true
	}
	if logoURL != "" && logoURL != p.LogoURL {
		payload.LogoURL = &logoURL
		changed = true
	}
	if !changed {
		return nil
	}
	return p.Record(EventLabelPolicyChanged, payload, nil)
}

// Remove records label_policy.removed. The instance-default row is never
// removed by a command — internal/command rejects that at step 1 (validate).
func (p *LabelPolicy) Remove() error {
	if p.Removed {
		return fmt.Errorf("label policy %s already removed", p.ID())
	}
	return p.Record(EventLabelPolicyRemoved, struct{}{}, nil)
}

func (p *LabelPolicy) reduceAdded(payload json.RawMessage) error {
	var v LabelPolicyAddedPayload
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	p.PrimaryColor = v.PrimaryColor
	p.LogoURL = v.LogoURL
	return nil
}

func (p *LabelPolicy) reduceChanged(payload json.RawMessage) error {
	var v LabelPolicyChangedPayload
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	if v.PrimaryColor != nil {
		p.PrimaryColor = *v.PrimaryColor
	}
	if v.LogoURL != nil {
		p.LogoURL = *v.LogoURL
	}
	return nil
}

func (p *LabelPolicy) reduceRemoved(json.RawMessage) error {
	p.Removed = true
	return nil
}
