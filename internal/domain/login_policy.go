package domain

import (
	"encoding/json"
	"fmt"

	"github.com/haloiam/core/pkg/aggregate"
)

// AggregateTypeLoginPolicy is login_policy's aggregate_type discriminator.
// Like LabelPolicy it is either org-scoped (aggregate id = org id) or the
// InstanceDefaultOwner row.
const AggregateTypeLoginPolicy = "login_policy"

// LoginPolicy is a sub-aggregated policy: a root policy row
// plus an attached list of second-factor types and a list of linked IDP
// ids, all reduced onto one write-model so a single command can validate
// "is this factor already enabled" without a second query.
type LoginPolicy struct {
	aggregate.WriteModel
	SecondFactors []string
	LinkedIDPs    []string
	Removed       bool
}

// NewLoginPolicy builds an empty, Init'd LoginPolicy.
func NewLoginPolicy(instanceID, id string) *LoginPolicy {
	p := &LoginPolicy{}
	p.Init(instanceID, id, AggregateTypeLoginPolicy, aggregate.ReducerTable{
		EventLoginPolicyAdded:               p.reduceAdded,
		EventLoginPolicySecondFactorAdded:   p.reduceFactorAdded,
		EventLoginPolicySecondFactorRemoved: p.reduceFactorRemoved,
		EventLoginPolicyIDPLinked:           p.reduceIDPLinked,
		EventLoginPolicyIDPUnlinked:         p.reduceIDPUnlinked,
		EventLoginPolicyRemoved:             p.reduceRemoved,
	})
	return p
}

// Add records login_policy.added.
func (p *LoginPolicy) Add() error {
	return p.Record(EventLoginPolicyAdded, LoginPolicyAddedPayload{}, nil)
}

// AddSecondFactor records login_policy.second_factor.added, or no-ops if
// factorType is already enabled.
func (p *LoginPolicy) AddSecondFactor(factorType string) error {
	if contains(p.SecondFactors, factorType) {
		return nil
	}
	return p.Record(EventLoginPolicySecondFactorAdded, SecondFactorPayload{Type: factorType}, nil)
}

// RemoveSecondFactor records login_policy.second_factor.removed, or no-ops
// if factorType is not currently enabled.
func (p *LoginPolicy) RemoveSecondFactor(factorType string) error {
	if !contains(p.SecondFactors, factorType) {
		return nil
	}
	return p.Record(EventLoginPolicySecondFactorRemoved, SecondFactorPayload{Type: factorType}, nil)
}

// LinkIDP records login_policy.idp.linked, or no-ops if idpID is already
// linked.
func (p *LoginPolicy) LinkIDP(idpID string) error {
	if contains(p.LinkedIDPs, idpID) {
		return nil
	}
	return p.Record(EventLoginPolicyIDPLinked, IDPLinkPayload{IDPID: idpID}, nil)
}

// UnlinkIDP records login_policy.idp.unlinked, or no-ops if idpID is not
// currently linked.
func (p *LoginPolicy) UnlinkIDP(idpID string) error {
	if !contains(p.LinkedIDPs, idpID) {
		return nil
	}
	return p.Record(EventLoginPolicyIDPUnlinked, IDPLinkPayload{IDPID: idpID}, nil)
}

// Remove records login_policy.removed.
func (p *LoginPolicy) Remove() error {
	if p.Removed {
		return fmt.Errorf("login policy %s already removed", p.ID())
	}
	return p.Record(EventLoginPolicyRemoved, struct{}{}, nil)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (p *LoginPolicy) reduceAdded(json.RawMessage) error {
	p.SecondFactors = nil
	p.LinkedIDPs = nil
	return nil
}

func (p *LoginPolicy) reduceFactorAdded(payload json.RawMessage) error {
	var v SecondFactorPayload
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	p.SecondFactors = append(p.SecondFactors, v.Type)
	return nil
}

func (p *LoginPolicy) reduceFactorRemoved(payload json.RawMessage) error {
	var v SecondFactorPayload
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	p.SecondFactors = removeString(p.SecondFactors, v.Type)
	return nil
}

func (p *LoginPolicy) reduceIDPLinked(payload json.RawMessage) error {
	var v IDPLinkPayload
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	p.LinkedIDPs = append(p.LinkedIDPs, v.IDPID)
	return nil
}

func (p *LoginPolicy) reduceIDPUnlinked(payload json.RawMessage) error {
	var v IDPLinkPayload
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	p.LinkedIDPs = removeString(p.LinkedIDPs, v.IDPID)
	return nil
}

func (p *LoginPolicy) reduceRemoved(json.RawMessage) error {
	p.Removed = true
	return nil
}

func removeString(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}
