package domain

import (
	"encoding/json"
	"fmt"

	"github.com/haloiam/core/pkg/aggregate"
)

// AggregateTypeHumanUser is user's aggregate_type discriminator.
const AggregateTypeHumanUser = "user"

// HumanUser is a person's account within an instance. Username is claimed
// via a unique-constraint row (instance_id, "username", username) rather
// than a version check, since uniqueness here spans every user aggregate in
// the instance, not just one aggregate's own history.
type HumanUser struct {
	aggregate.WriteModel
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	State        State
}

// NewHumanUser builds an empty, Init'd HumanUser.
func NewHumanUser(instanceID, id string) *HumanUser {
	u := &HumanUser{}
	u.Init(instanceID, id, AggregateTypeHumanUser, aggregate.ReducerTable{
		EventHumanUserAdded:           u.reduceAdded,
		EventHumanUserAddedV1:         u.reduceAdded, // legacy alias
		EventHumanUserEmailChanged:    u.reduceEmailChanged,
		EventHumanUserPasswordChanged: u.reducePasswordChanged,
		EventHumanUserProfileChanged:  u.reduceProfileChanged,
		EventHumanUserDeactivated:     u.reduceDeactivated,
		EventHumanUserReactivated:     u.reduceReactivated,
		EventHumanUserRemoved:         u.reduceRemoved,
	})
	return u
}

// Add records user.human.added. passwordHash must already be a bcrypt hash
// — HumanUser never sees a plaintext password.
func (u *HumanUser) Add(username, email, firstName, lastName, passwordHash string) error {
	return u.Record(EventHumanUserAdded, HumanUserAddedPayload{
		Username:     username,
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: passwordHash,
	}, nil)
}

// ChangeEmail records user.human.email.changed, or no-ops if email is
// already current.
func (u *HumanUser) ChangeEmail(email string) error {
	if u.Email == email {
		return nil
	}
	return u.Record(EventHumanUserEmailChanged, HumanUserEmailChangedPayload{Email: email}, nil)
}

// ChangePassword records user.human.password.changed.
func (u *HumanUser) ChangePassword(passwordHash string) error {
	return u.Record(EventHumanUserPasswordChanged, HumanUserPasswordChangedPayload{PasswordHash: passwordHash}, nil)
}

// ChangeProfile records user.human.profile.changed, or no-ops if neither
// name changed.
func (u *HumanUser) ChangeProfile(firstName, lastName string) error {
	if u.FirstName == firstName && u.LastName == lastName {
		return nil
	}
	return u.Record(EventHumanUserProfileChanged, HumanUserProfileChangedPayload{FirstName: firstName, LastName: lastName}, nil)
}

// Deactivate records user.human.deactivated.
func (u *HumanUser) Deactivate() error {
	if u.State != StateActive {
		return fmt.Errorf("user %s is not active", u.ID())
	}
	return u.Record(EventHumanUserDeactivated, struct{}{}, nil)
}

// Reactivate records user.human.reactivated.
func (u *HumanUser) Reactivate() error {
	if u.State != StateInactive {
		return fmt.Errorf("user %s is not inactive", u.ID())
	}
	return u.Record(EventHumanUserReactivated, struct{}{}, nil)
}

// Remove records user.human.removed. The caller is responsible for pairing
// this with a UniqueOp that releases the username claim in the same Push.
func (u *HumanUser) Remove() error {
	if u.State == StateRemoved {
		return fmt.Errorf("user %s already removed", u.ID())
	}
	return u.Record(EventHumanUserRemoved, struct{}{}, nil)
}

func (u *HumanUser) reduceAdded(payload json.RawMessage) error {
	var p HumanUserAddedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	u.Username = p.Username
	u.Email = p.Email
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	u.PasswordHash = p.PasswordHash
	u.State = StateActive
	return nil
}

func (u *HumanUser) reduceEmailChanged(payload json.RawMessage) error {
	var p HumanUserEmailChangedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	u.Email = p.Email
	return nil
}

func (u *HumanUser) reducePasswordChanged(payload json.RawMessage) error {
	var p HumanUserPasswordChangedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	u.PasswordHash = p.PasswordHash
	return nil
}

func (u *HumanUser) reduceProfileChanged(payload json.RawMessage) error {
	var p HumanUserProfileChangedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	return nil
}

func (u *HumanUser) reduceDeactivated(json.RawMessage) error {
	u.State = StateInactive
	return nil
}

func (u *HumanUser) reduceReactivated(json.RawMessage) error {
	u.State = StateActive
	return nil
}

func (u *HumanUser) reduceRemoved(json.RawMessage) error {
	u.State = StateRemoved
	return nil
}
