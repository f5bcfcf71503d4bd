// Package command implements the concrete command handlers — Organization,
// Human User, Org Membership, Label Policy, Login Policy — each built from
// pkg/command.Commander's generic seven-step template. A handful of
// commands (CreateOrganizationWithAdmin) touch more than one aggregate and
// so are hand-written orchestrations over the single-aggregate commands,
// since pkg/eventstore.Push is scoped to exactly one aggregate per call.
package command

import "time"

// ObjectDetails is what every command returns on success: enough for a
// caller to confirm the write landed, and to wait for a specific
// projection catch-up target without a second read.
type ObjectDetails struct {
	Sequence      int64
	EventDate     time.Time
	ResourceOwner string
}

// CreateOrganizationWithAdminCommand seeds a new org together with its
// first admin user and membership.
type CreateOrganizationWithAdminCommand struct {
	OrgID string // optional; generated if empty
	Name  string
	Admin HumanUserInput
}

func (CreateOrganizationWithAdminCommand) CommandType() string { return "CreateOrganizationWithAdmin" }

// HumanUserInput is the admin-creation shape shared by
// CreateOrganizationWithAdminCommand and AddHumanUserCommand.
type HumanUserInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string // plaintext; hashed before Record, never persisted as-is
}

// ChangeOrganizationNameCommand renames an existing org.
type ChangeOrganizationNameCommand struct {
	OrgID string
	Name  string
}

func (ChangeOrganizationNameCommand) CommandType() string { return "ChangeOrganizationName" }

// DeactivateOrganizationCommand deactivates an org.
type DeactivateOrganizationCommand struct{ OrgID string }

func (DeactivateOrganizationCommand) CommandType() string { return "DeactivateOrganization" }

// ReactivateOrganizationCommand reactivates a deactivated org.
type ReactivateOrganizationCommand struct{ OrgID string }

func (ReactivateOrganizationCommand) CommandType() string { return "ReactivateOrganization" }

// AddHumanUserCommand adds a standalone human user to an org (outside the
// create-org-with-admin flow).
type AddHumanUserCommand struct {
	OrgID  string
	UserID string // optional; generated if empty
	HumanUserInput
}

func (AddHumanUserCommand) CommandType() string { return "AddHumanUser" }

// ChangeHumanUserEmailCommand changes a user's email.
type ChangeHumanUserEmailCommand struct {
	UserID string
	Email  string
}

func (ChangeHumanUserEmailCommand) CommandType() string { return "ChangeHumanUserEmail" }

// ChangeHumanUserPasswordCommand changes a user's password.
type ChangeHumanUserPasswordCommand struct {
	UserID   string
	Password string
}

func (ChangeHumanUserPasswordCommand) CommandType() string { return "ChangeHumanUserPassword" }

// RemoveHumanUserCommand removes a user and releases its username claim.
type RemoveHumanUserCommand struct{ UserID string }

func (RemoveHumanUserCommand) CommandType() string { return "RemoveHumanUser" }

// AddOrgMemberCommand links a user to an org with roles.
type AddOrgMemberCommand struct {
	OrgID  string
	UserID string
	Roles  []string
}

func (AddOrgMemberCommand) CommandType() string { return "AddOrgMember" }

// ChangeOrgMemberRolesCommand replaces a membership's role set.
type ChangeOrgMemberRolesCommand struct {
	OrgID  string
	UserID string
	Roles  []string
}

func (ChangeOrgMemberRolesCommand) CommandType() string { return "ChangeOrgMemberRoles" }

// RemoveOrgMemberCommand removes a membership.
type RemoveOrgMemberCommand struct {
	OrgID  string
	UserID string
}

func (RemoveOrgMemberCommand) CommandType() string { return "RemoveOrgMember" }

// SetLabelPolicyCommand creates or updates a label policy. OwnerID is
// either an org id (org-scoped) or domain.InstanceDefaultOwner.
type SetLabelPolicyCommand struct {
	OwnerID      string
	PrimaryColor string
	LogoURL      string
}

func (SetLabelPolicyCommand) CommandType() string { return "SetLabelPolicy" }

// RemoveLabelPolicyCommand removes an org-scoped label policy (the
// instance-default row may never be removed; the Validate step rejects
// that).
type RemoveLabelPolicyCommand struct{ OwnerID string }

func (RemoveLabelPolicyCommand) CommandType() string { return "RemoveLabelPolicy" }

// EnsureLoginPolicyCommand creates an (empty) login policy if OwnerID does
// not have one yet, or no-ops if it already does.
type EnsureLoginPolicyCommand struct{ OwnerID string }

func (EnsureLoginPolicyCommand) CommandType() string { return "EnsureLoginPolicy" }

// AddSecondFactorCommand enables a second-factor type on a login policy.
type AddSecondFactorCommand struct {
	OwnerID string
	Type    string
}

func (AddSecondFactorCommand) CommandType() string { return "AddSecondFactor" }

// RemoveSecondFactorCommand disables a second-factor type.
type RemoveSecondFactorCommand struct {
	OwnerID string
	Type    string
}

func (RemoveSecondFactorCommand) CommandType() string { return "RemoveSecondFactor" }

// LinkIDPCommand links an IDP id to a login policy.
type LinkIDPCommand struct {
	OwnerID string
	IDPID   string
}

func (LinkIDPCommand) CommandType() string { return "LinkIDP" }

// UnlinkIDPCommand unlinks an IDP id from a login policy.
type UnlinkIDPCommand struct {
	OwnerID string
	IDPID   string
}

func (UnlinkIDPCommand) CommandType() string { return "UnlinkIDP" }
