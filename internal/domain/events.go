package domain

// Event type constants follow the <aggregateType>.<subject>.<verb>
// naming rule: dotted, additive-only, verbs never re-purposed.
const (
	EventOrgAdded       = "org.added"
	EventOrgNameChanged = "org.changed.name"
	EventOrgDeactivated = "org.deactivated"
	EventOrgReactivated = "org.reactivated"
	EventOrgRemoved     = "org.removed"

	EventHumanUserAdded            = "user.human.added"
	EventHumanUserEmailChanged     = "user.human.email.changed"
	EventHumanUserPasswordChanged  = "user.human.password.changed"
	EventHumanUserProfileChanged   = "user.human.profile.changed"
	EventHumanUserDeactivated      = "user.human.deactivated"
	EventHumanUserReactivated      = "user.human.reactivated"
	EventHumanUserRemoved          = "user.human.removed"
	// EventHumanUserAddedV1 is the legacy ".v1." alias for
	// user.human.added. Write-model reducers and projectors both accept
	// it; nothing ever writes it anymore.
	EventHumanUserAddedV1          = "user.human.v1.added"

	EventOrgMemberAdded        = "org_member.added"
	EventOrgMemberRolesChanged = "org_member.roles.changed"
	EventOrgMemberRemoved      = "org_member.removed"

	EventLabelPolicyAdded   = "label_policy.added"
	EventLabelPolicyChanged = "label_policy.changed"
	EventLabelPolicyRemoved = "label_policy.removed"

	EventLoginPolicyAdded               = "login_policy.added"
	EventLoginPolicySecondFactorAdded   = "login_policy.second_factor.added"
	EventLoginPolicySecondFactorRemoved = "login_policy.second_factor.removed"
	EventLoginPolicyIDPLinked           = "login_policy.idp.linked"
	EventLoginPolicyIDPUnlinked         = "login_policy.idp.unlinked"
	EventLoginPolicyRemoved             = "login_policy.removed"
)

// OrgAddedPayload is org.added's payload.
type OrgAddedPayload struct {
	Name string `json:"name"`
}

// OrgNameChangedPayload is org.changed.name's payload.
type OrgNameChangedPayload struct {
	Name string `json:"name"`
}

// HumanUserAddedPayload is user.human.added's payload. PasswordHash is
// never the plaintext password — internal/command hashes it before Record
// is ever called. The field has always meant "hash", never "plaintext";
// payload field names are never re-purposed.
type HumanUserAddedPayload struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	PasswordHash string `json:"passwordHash"`
}

// HumanUserEmailChangedPayload is user.human.email.changed's payload.
type HumanUserEmailChangedPayload struct {
	Email string `json:"email"`
}

// HumanUserPasswordChangedPayload is user.human.password.changed's payload.
type HumanUserPasswordChangedPayload struct {
	PasswordHash string `json:"passwordHash"`
}

// HumanUserProfileChangedPayload is user.human.profile.changed's payload.
type HumanUserProfileChangedPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// OrgMemberAddedPayload is org_member.added's payload.
type OrgMemberAddedPayload struct {
	OrgID  string   `json:"orgId"`
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

// OrgMemberRolesChangedPayload is org_member.roles.changed's payload.
type OrgMemberRolesChangedPayload struct {
	Roles []string `json:"roles"`
}

// LabelPolicyAddedPayload is label_policy.added's payload.
type LabelPolicyAddedPayload struct {
	PrimaryColor string `json:"primaryColor"`
	LogoURL      string `json:"logoUrl"`
}

// LabelPolicyChangedPayload is label_policy.changed's payload. Fields are
// pointers so a partial update (only PrimaryColor, say) can be
// distinguished from "clear LogoURL" — the reducer only applies fields
// that are non-nil.
type LabelPolicyChangedPayload struct {
	PrimaryColor *string `json:"primaryColor,omitempty"`
	LogoURL      *string `json:"logoUrl,omitempty"`
}

// LoginPolicyAddedPayload is login_policy.added's payload.
type LoginPolicyAddedPayload struct{}

// SecondFactorPayload backs both login_policy.second_factor.added and
// .removed.
type SecondFactorPayload struct {
	Type string `json:"type"`
}

// IDPLinkPayload backs both login_policy.idp.linked and .unlinked.
type IDPLinkPayload struct {
	IDPID string `json:"idpId"`
}
