package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haloiam/core/internal/domain"
	"github.com/haloiam/core/pkg/eventstore"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrganizationProjector maintains organizations_projection from org.*
// events. Apply is idempotent: every write is an upsert keyed by the
// table's primary key, so redelivering the same batch after a crash
// between apply and checkpoint-advance leaves the row exactly where it
// would have landed the first time.
type OrganizationProjector struct{}

func (OrganizationProjector) Name() string { return "organizations" }

// AggregateTypes narrows the worker's delivery to org events.
func (OrganizationProjector) AggregateTypes() []string { return []string{domain.AggregateTypeOrg} }

// EventTypes places no further restriction — the Apply switch already
// ignores verbs it doesn't know, per the forward-compatibility rule.
func (OrganizationProjector) EventTypes() []string { return nil }

func (OrganizationProjector) Apply(ctx context.Context, tx *gorm.DB, events []eventstore.Event) error {
	for _, ev := range events {
		if ev.AggregateType != domain.AggregateTypeOrg {
			continue
		}
		row := OrganizationRow{InstanceID: ev.InstanceID, OrgID: ev.AggregateID, Sequence: ev.Version, UpdatedAt: ev.CreatedAt}
		switch ev.EventType {
		case domain.EventOrgAdded:
			var p domain.OrgAddedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return fmt.Errorf("projection organizations: unmarshal %s: %w", ev.EventType, err)
			}
			row.Name = p.Name
			row.State = domain.StateActive.String()
			if err := upsertOrganization(tx, row); err != nil {
				return err
			}
		case domain.EventOrgNameChanged:
			var p domain.OrgNameChangedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return fmt.Errorf("projection organizations: unmarshal %s: %w", ev.EventType, err)
			}
			if err := tx.Model(&OrganizationRow{}).
				Where("instance_id = ? AND org_id = ?", ev.InstanceID, ev.AggregateID).
				Updates(map[string]interface{}{"name": p.Name, "sequence": ev.Version, "updated_at": ev.CreatedAt}).Error; err != nil {
				return fmt.Errorf("projection organizations: update name: %w", err)
			}
		case domain.EventOrgDeactivated:
			if err := setOrgState(tx, ev, domain.StateInactive); err != nil {
				return err
			}
		case domain.EventOrgReactivated:
			if err := setOrgState(tx, ev, domain.StateActive); err != nil {
				return err
			}
		case domain.EventOrgRemoved:
			if err := setOrgState(tx, ev, domain.StateRemoved); err != nil {
				return err
			}
		}
	}
	return nil
}

func upsertOrganization(tx *gorm.DB, row OrganizationRow) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instance_id"}, {Name: "org_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "state", "sequence", "updated_at"}),
	}).Create(&row).Error
}

func setOrgState(tx *gorm.DB, ev eventstore.Event, state domain.State) error {
	if err := tx.Model(&OrganizationRow{}).
		Where("instance_id = ? AND org_id = ?", ev.InstanceID, ev.AggregateID).
		Updates(map[string]interface{}{"state": state.String(), "sequence": ev.Version, "updated_at": ev.CreatedAt}).Error; err != nil {
		return fmt.Errorf("projection organizations: update state: %w", err)
	}
	return nil
}

// HumanUserProjector maintains users_projection from user.human.* events,
// including the legacy .v1. alias.
type HumanUserProjector struct{}

func (HumanUserProjector) Name() string { return "users" }

func (HumanUserProjector) AggregateTypes() []string {
	return []string{domain.AggregateTypeHumanUser}
}

func (HumanUserProjector) EventTypes() []string { return nil }

func (HumanUserProjector) Apply(ctx context.Context, tx *gorm.DB, events []eventstore.Event) error {
	for _, ev := range events {
		if ev.AggregateType != domain.AggregateTypeHumanUser {
			continue
		}
		switch ev.EventType {
		case domain.EventHumanUserAdded, domain.EventHumanUserAddedV1:
			var p domain.HumanUserAddedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return fmt.Errorf("projection users: unmarshal %s: %w", ev.EventType, err)
			}
			row := HumanUserRow{
				InstanceID: ev.InstanceID, UserID: ev.AggregateID,
				Username: p.Username, Email: p.Email, FirstName: p.FirstName, LastName: p.LastName,
				State: domain.StateActive.String(), Sequence: ev.Version, UpdatedAt: ev.CreatedAt,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "instance_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"username", "email", "first_name", "last_name", "state", "sequence", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("projection users: upsert: %w", err)
			}
		case domain.EventHumanUserEmailChanged:
			var p domain.HumanUserEmailChangedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return err
			}
			if err := tx.Model(&HumanUserRow{}).Where("instance_id = ? AND user_id = ?", ev.InstanceID, ev.AggregateID).
				Updates(map[string]interface{}{"email": p.Email, "sequence": ev.Version, "updated_at": ev.CreatedAt}).Error; err != nil {
				return fmt.Errorf("projection users: update email: %w", err)
			}
		case domain.EventHumanUserProfileChanged:
			var p domain.HumanUserProfileChangedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return err
			}
			if err := tx.Model(&HumanUserRow{}).Where("instance_id = ? AND user_id = ?", ev.InstanceID, ev.AggregateID).
				Updates(map[string]interface{}{"first_name": p.FirstName, "last_name": p.LastName, "sequence": ev.Version, "updated_at": ev.CreatedAt}).Error; err != nil {
				return fmt.Errorf("projection users: update profile: %w", err)
			}
		case domain.EventHumanUserDeactivated:
			if err := setUserState(tx, ev, domain.StateInactive); err != nil {
				return err
			}
		case domain.EventHumanUserReactivated:
			if err := setUserState(tx, ev, domain.StateActive); err != nil {
				return err
			}
		case domain.EventHumanUserRemoved:
			if err := setUserState(tx, ev, domain.StateRemoved); err != nil {
				return err
			}
		}
	}
	return nil
}

func setUserState(tx *gorm.DB, ev eventstore.Event, state domain.State) error {
	if err := tx.Model(&HumanUserRow{}).Where("instance_id = ? AND user_id = ?", ev.InstanceID, ev.AggregateID).
		Updates(map[string]interface{}{"state": state.String(), "sequence": ev.Version, "updated_at": ev.CreatedAt}).Error; err != nil {
		return fmt.Errorf("projection users: update state: %w", err)
	}
	return nil
}

// OrgMemberProjector maintains org_members_projection from org_member.*
// events.
type OrgMemberProjector struct{}

func (OrgMemberProjector) Name() string { return "org_members" }

func (OrgMemberProjector) AggregateTypes() []string {
	return []string{domain.AggregateTypeOrgMember}
}

func (OrgMemberProjector) EventTypes() []string { return nil }

func (OrgMemberProjector) Apply(ctx context.Context, tx *gorm.DB, events []eventstore.Event) error {
	for _, ev := range events {
		if ev.AggregateType != domain.AggregateTypeOrgMember {
			continue
		}
		switch ev.EventType {
		case domain.EventOrgMemberAdded:
			var p domain.OrgMemberAddedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return err
			}
			row := OrgMemberRow{
				InstanceID: ev.InstanceID, OrgID: p.OrgID, UserID: p.UserID,
				Roles: joinRoles(p.Roles), Sequence: ev.Version, UpdatedAt: ev.CreatedAt,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "instance_id"}, {Name: "org_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"roles", "removed", "sequence", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("projection org_members: upsert: %w", err)
			}
		case domain.EventOrgMemberRolesChanged:
			var p domain.OrgMemberRolesChangedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return err
			}
			orgID, userID := splitMemberID(ev.AggregateID)
			if err := tx.Model(&OrgMemberRow{}).Where("instance_id = ? AND org_id = ? AND user_id = ?", ev.InstanceID, orgID, userID).
				Updates(map[string]interface{}{"roles": joinRoles(p.Roles), "sequence": ev.Version, "updated_at": ev.CreatedAt}).Error; err != nil {
				return fmt.Errorf("projection org_members: update roles: %w", err)
			}
		case domain.EventOrgMemberRemoved:
			orgID, userID := splitMemberID(ev.AggregateID)
			if err := tx.Model(&OrgMemberRow{}).Where("instance_id = ? AND org_id = ? AND user_id = ?", ev.InstanceID, orgID, userID).
				Updates(map[string]interface{}{"removed": true, "sequence": ev.Version, "updated_at": ev.CreatedAt}).Error; err != nil {
				return fmt.Errorf("projection org_members: update removed: %w", err)
			}
		}
	}
	return nil
}

func joinRoles(roles []string) string {
	out := ""
	for i, r := range roles {
		if i > 0 {
			out += ","
		}
		out += r
	}
	return out
}

// splitMemberID recovers (orgID, userID) from the deterministic
// "orgID/userID" aggregate id internal/command builds membership ids from.
func splitMemberID(id string) (string, string) {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '/' {
			return id[:i], id[i+1:]
		}
	}
	return id, ""
}

// LabelPolicyProjector maintains label_policies_projection.
type LabelPolicyProjector struct{}

func (LabelPolicyProjector) Name() string { return "label_policies" }

func (LabelPolicyProjector) AggregateTypes() []string {
	return []string{domain.AggregateTypeLabelPolicy}
}

func (LabelPolicyProjector) EventTypes() []string { return nil }

func (LabelPolicyProjector) Apply(ctx context.Context, tx *gorm.DB, events []eventstore.Event) error {
	for _, ev := range events {
		if ev.AggregateType != domain.AggregateTypeLabelPolicy {
			continue
		}
		switch ev.EventType {
		case domain.EventLabelPolicyAdded:
			var p domain.LabelPolicyAddedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return err
			}
			row := LabelPolicyRow{
				InstanceID: ev.InstanceID, OwnerID: ev.AggregateID,
				PrimaryColor: p.PrimaryColor, LogoURL: p.LogoURL, Sequence: ev.Version, UpdatedAt: ev.CreatedAt,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "instance_id"}, {Name: "owner_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"primary_color", "logo_url", "removed", "sequence", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("projection label_policies: upsert: %w", err)
			}
		case domain.EventLabelPolicyChanged:
			var p domain.LabelPolicyChangedPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return err
			}
			updates := map[string]interface{}{"sequence": ev.Version, "updated_at": ev.CreatedAt}
			if p.PrimaryColor != nil {
				updates["primary_color"] = *p.PrimaryColor
			}
			if p.LogoURL != nil {
				updates["logo_url"] = *p.LogoURL
			}
			if err := tx.Model(&LabelPolicyRow{}).Where("instance_id = ? AND owner_id = ?", ev.InstanceID, ev.AggregateID).
				Updates(updates).Error; err != nil {
				return fmt.Errorf("projection label_policies: update: %w", err)
			}
		case domain.EventLabelPolicyRemoved:
			if err := tx.Model(&LabelPolicyRow{}).Where("instance_id = ? AND owner_id = ?", ev.InstanceID, ev.AggregateID).
				Updates(map[string]interface{}{"removed": true, "sequence": ev.Version, "updated_at": ev.CreatedAt}).Error; err != nil {
				return fmt.Errorf("projection label_policies: update removed: %w", err)
			}
		}
	}
	return nil
}

// LoginPolicyProjector maintains the login policy root table and its two
// child tables (second factors, linked IDPs), projected as one parent row
// plus bounded child rows rather than a join, so a read never pays an N+1
// per parent.
type LoginPolicyProjector struct{}

func (LoginPolicyProjector) Name() string { return "login_policies" }

func (LoginPolicyProjector) AggregateTypes() []string {
	return []string{domain.AggregateTypeLoginPolicy}
}

func (LoginPolicyProjector) EventTypes() []string { return nil }

func (LoginPolicyProjector) Apply(ctx context.Context, tx *gorm.DB, events []eventstore.Event) error {
	for _, ev := range events {
		if ev.AggregateType != domain.AggregateTypeLoginPolicy {
			continue
		}
		switch ev.EventType {
		case domain.EventLoginPolicyAdded:
			row := LoginPolicyRow{InstanceID: ev.InstanceID, OwnerID: ev.AggregateID, Sequence: ev.Version, UpdatedAt: ev.CreatedAt}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "instance_id"}, {Name: "owner_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"removed", "sequence", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("projection login_policies: upsert: %w", err)
			}
		case domain.EventLoginPolicySecondFactorAdded:
			var p domain.SecondFactorPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return err
			}
			row := LoginPolicySecondFactorRow{InstanceID: ev.InstanceID, OwnerID: ev.AggregateID, Type: p.Type}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("projection login_policies: insert second factor: %w", err)
			}
		case domain.EventLoginPolicySecondFactorRemoved:
			var p domain.SecondFactorPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return err
			}
			if err := tx.Where("instance_id = ? AND owner_id = ? AND type = ?", ev.InstanceID, ev.AggregateID, p.Type).
				Delete(&LoginPolicySecondFactorRow{}).Error; err != nil {
				return fmt.Errorf("projection login_policies: delete second factor: %w", err)
			}
		case domain.EventLoginPolicyIDPLinked:
			var p domain.IDPLinkPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return err
			}
			row := LoginPolicyLinkedIDPRow{InstanceID: ev.InstanceID, OwnerID: ev.AggregateID, IDPID: p.IDPID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("projection login_policies: insert linked idp: %w", err)
			}
		case domain.EventLoginPolicyIDPUnlinked:
			var p domain.IDPLinkPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return err
			}
			if err := tx.Where("instance_id = ? AND owner_id = ? AND idp_id = ?", ev.InstanceID, ev.AggregateID, p.IDPID).
				Delete(&LoginPolicyLinkedIDPRow{}).Error; err != nil {
				return fmt.Errorf("projection login_policies: delete linked idp: %w", err)
			}
		case domain.EventLoginPolicyRemoved:
			if err := tx.Model(&LoginPolicyRow{}).Where("instance_id = ? AND owner_id = ?", ev.InstanceID, ev.AggregateID).
				Updates(map[string]interface{}{"removed": true, "sequence": ev.Version, "updated_at": ev.CreatedAt}).Error; err != nil {
				return fmt.Errorf("projection login_policies: update removed: %w", err)
			}
		}
	}
	return nil
}

// AutoMigrate creates/updates every projection table. Called once at
// startup by internal/fxapp, alongside the eventstore's and checkpoint
// store's own migrations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&OrganizationRow{}, &HumanUserRow{}, &OrgMemberRow{},
		&LabelPolicyRow{}, &LoginPolicyRow{}, &LoginPolicySecondFactorRow{}, &LoginPolicyLinkedIDPRow{},
	)
}
