package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/haloiam/core/internal/domain"
	"github.com/haloiam/core/internal/projection"
	"gorm.io/gorm"
)

// builtInDefaultLabelPolicy is the bottom rung of the inheritance chain:
// returned when an instance has never written even its own
// instance-default row, so a brand-new instance renders sensibly before
// any policy is configured.
var builtInDefaultLabelPolicy = projection.LabelPolicyRow{
	PrimaryColor: "#2073C4",
	LogoURL:      "",
}

// ResolveLabelPolicy walks the chain an org's effective label policy is
// drawn from: its own org-scoped row, if present and not removed; else the
// instance-default row; else the built-in default. Each rung is a single
// indexed lookup, never a join, so the chain costs at most two queries.
func ResolveLabelPolicy(ctx context.Context, db *gorm.DB, instanceID, orgID string) (projection.LabelPolicyRow, error) {
	var row projection.LabelPolicyRow
	err := db.WithContext(ctx).Where("instance_id = ? AND owner_id = ? AND removed = ?", instanceID, orgID, false).
		First(&row).Error
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return projection.LabelPolicyRow{}, fmt.Errorf("query: loading org label policy: %w", err)
	}

	if orgID != domain.InstanceDefaultOwner {
		err = db.WithContext(ctx).Where("instance_id = ? AND owner_id = ? AND removed = ?", instanceID, domain.InstanceDefaultOwner, false).
			First(&row).Error
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return projection.LabelPolicyRow{}, fmt.Errorf("query: loading instance-default label policy: %w", err)
		}
	}

	fallback := builtInDefaultLabelPolicy
	fallback.InstanceID = instanceID
	fallback.OwnerID = domain.InstanceDefaultOwner
	return fallback, nil
}

// LoginPolicyView is the sub-aggregated read shape: one root row
// plus its bounded child collections, assembled from three queries keyed
// on the same owner id rather than a join across three tables.
type LoginPolicyView struct {
	OwnerID       string
	SecondFactors []string
	LinkedIDPs    []string
}

// builtInDefaultLoginPolicy requires nothing extra: no second factors, no
// linked IDPs, password-only login.
var builtInDefaultLoginPolicy = LoginPolicyView{SecondFactors: nil, LinkedIDPs: nil}

// ResolveLoginPolicy walks the same org-row → instance-default →
// built-in chain as ResolveLabelPolicy, then loads the winning row's two
// child collections in two more bounded queries (one per child table,
// never per-row).
func ResolveLoginPolicy(ctx context.Context, db *gorm.DB, instanceID, orgID string) (LoginPolicyView, error) {
	owner, err := resolveLoginPolicyOwner(ctx, db, instanceID, orgID)
	if err != nil {
		return LoginPolicyView{}, err
	}
	if owner == "" {
		return builtInDefaultLoginPolicy, nil
	}
	return loadLoginPolicyView(ctx, db, instanceID, owner)
}

func resolveLoginPolicyOwner(ctx context.Context, db *gorm.DB, instanceID, orgID string) (string, error) {
	var row projection.LoginPolicyRow
	err := db.WithContext(ctx).Where("instance_id = ? AND owner_id = ? AND removed = ?", instanceID, orgID, false).
		First(&row).Error
	if err == nil {
		return row.OwnerID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("query: loading org login policy: %w", err)
	}

	if orgID == domain.InstanceDefaultOwner {
		return "", nil
	}
	err = db.WithContext(ctx).Where("instance_id = ? AND owner_id = ? AND removed = ?", instanceID, domain.InstanceDefaultOwner, false).
		First(&row).Error
	if err == nil {
		return row.OwnerID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("query: loading instance-default login policy: %w", err)
	}
	return "", nil
}

func loadLoginPolicyView(ctx context.Context, db *gorm.DB, instanceID, owner string) (LoginPolicyView, error) {
	var factors []projection.LoginPolicySecondFactorRow
	if err := db.WithContext(ctx).Where("instance_id = ? AND owner_id = ?", instanceID, owner).Find(&factors).Error; err != nil {
		return LoginPolicyView{}, fmt.Errorf("query: loading second factors: %w", err)
	}
	var idps []projection.LoginPolicyLinkedIDPRow
	if err := db.WithContext(ctx).Where("instance_id = ? AND owner_id = ?", instanceID, owner).Find(&idps).Error; err != nil {
		return LoginPolicyView{}, fmt.Errorf("query: loading linked idps: %w", err)
	}

	view := LoginPolicyView{OwnerID: owner}
	for _, f := range factors {
		view.SecondFactors = append(view.SecondFactors, f.Type)
	}
	for _, i := range idps {
		view.LinkedIDPs = append(view.LinkedIDPs, i.IDPID)
	}
	return view, nil
}
