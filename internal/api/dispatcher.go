// Package api is the C8 external-contracts facade: typed command/query
// request/response structs, a TokenVerifier and SessionStore that resolve a
// caller's bearer token or session cookie into a pkg/command.AuthContext,
// and a Dispatcher that takes that AuthContext and routes to
// internal/command.Service or internal/query. No gRPC/REST transport is
// generated here; this is the Go-level boundary a handwritten transport
// would sit behind.
package api

import (
	"context"
	"fmt"

	"github.com/haloiam/core/internal/command"
	"github.com/haloiam/core/internal/projection"
	iquery "github.com/haloiam/core/internal/query"
	cmdfw "github.com/haloiam/core/pkg/command"
	"github.com/haloiam/core/pkg/query"
	"gorm.io/gorm"
)

// Dispatcher is the single entry point a transport layer (REST, gRPC, a
// CLI) calls into. It never constructs an AuthContext itself — Authorize
// does that from a bearer token — so every caller must authenticate
// before a command or query can run.
type Dispatcher struct {
	Commands *command.Service
	DB       *gorm.DB
}

// NewDispatcher wires a Dispatcher from its dependencies.
func NewDispatcher(commands *command.Service, db *gorm.DB) *Dispatcher {
	return &Dispatcher{Commands: commands, DB: db}
}

// CreateOrganizationWithAdmin dispatches the org-bootstrap command.
func (d *Dispatcher) CreateOrganizationWithAdmin(ctx context.Context, auth cmdfw.AuthContext, req CreateOrganizationWithAdminRequest) (command.ObjectDetails, error) {
	return d.Commands.CreateOrganizationWithAdmin(ctx, auth, command.CreateOrganizationWithAdminCommand{
		OrgID: req.OrgID,
		Name:  req.Name,
		Admin: command.HumanUserInput{
			Username: req.Admin.Username, Email: req.Admin.Email,
			FirstName: req.Admin.FirstName, LastName: req.Admin.LastName, Password: req.Admin.Password,
		},
	})
}

// ChangeOrganizationName dispatches ChangeOrganizationNameCommand.
func (d *Dispatcher) ChangeOrganizationName(ctx context.Context, auth cmdfw.AuthContext, req ChangeOrganizationNameRequest) (command.ObjectDetails, error) {
	return d.Commands.ChangeOrganizationName(ctx, auth, command.ChangeOrganizationNameCommand{OrgID: req.OrgID, Name: req.Name})
}

// DeactivateOrganization dispatches DeactivateOrganizationCommand.
func (d *Dispatcher) DeactivateOrganization(ctx context.Context, auth cmdfw.AuthContext, orgID string) (command.ObjectDetails, error) {
	return d.Commands.DeactivateOrganization(ctx, auth, command.DeactivateOrganizationCommand{OrgID: orgID})
}

// ReactivateOrganization dispatches ReactivateOrganizationCommand.
func (d *Dispatcher) ReactivateOrganization(ctx context.Context, auth cmdfw.AuthContext, orgID string) (command.ObjectDetails, error) {
	return d.Commands.ReactivateOrganization(ctx, auth, command.ReactivateOrganizationCommand{OrgID: orgID})
}

// AddHumanUser dispatches AddHumanUserCommand.
func (d *Dispatcher) AddHumanUser(ctx context.Context, auth cmdfw.AuthContext, req AddHumanUserRequest) (command.ObjectDetails, error) {
	return d.Commands.AddHumanUser(ctx, auth, command.AddHumanUserCommand{
		OrgID: req.OrgID, UserID: req.UserID,
		HumanUserInput: command.HumanUserInput{
			Username: req.Username, Email: req.Email, FirstName: req.FirstName, LastName: req.LastName, Password: req.Password,
		},
	})
}

// ChangeHumanUserEmail dispatches ChangeHumanUserEmailCommand.
func (d *Dispatcher) ChangeHumanUserEmail(ctx context.Context, auth cmdfw.AuthContext, userID, email string) (command.ObjectDetails, error) {
	return d.Commands.ChangeHumanUserEmail(ctx, auth, command.ChangeHumanUserEmailCommand{UserID: userID, Email: email})
}

// RemoveHumanUser dispatches RemoveHumanUserCommand.
func (d *Dispatcher) RemoveHumanUser(ctx context.Context, auth cmdfw.AuthContext, userID string) (command.ObjectDetails, error) {
	return d.Commands.RemoveHumanUser(ctx, auth, command.RemoveHumanUserCommand{UserID: userID})
}

// AddOrgMember dispatches AddOrgMemberCommand.
func (d *Dispatcher) AddOrgMember(ctx context.Context, auth cmdfw.AuthContext, req AddOrgMemberRequest) (command.ObjectDetails, error) {
	return d.Commands.AddOrgMember(ctx, auth, command.AddOrgMemberCommand{OrgID: req.OrgID, UserID: req.UserID, Roles: req.Roles})
}

// ListOrganizations dispatches a paged organizations_projection search.
func (d *Dispatcher) ListOrganizations(ctx context.Context, auth cmdfw.AuthContext, req query.Request) (iquery.Page[projection.OrganizationRow], error) {
	return iquery.Organizations(ctx, d.DB, auth.InstanceID, req)
}

// ListHumanUsers dispatches a paged users_projection search.
func (d *Dispatcher) ListHumanUsers(ctx context.Context, auth cmdfw.AuthContext, req query.Request) (iquery.Page[projection.HumanUserRow], error) {
	return iquery.HumanUsers(ctx, d.DB, auth.InstanceID, req)
}

// EffectiveLabelPolicy dispatches the inheritance-chain read for orgID
// within auth's instance.
func (d *Dispatcher) EffectiveLabelPolicy(ctx context.Context, auth cmdfw.AuthContext, orgID string) (projection.LabelPolicyRow, error) {
	row, err := iquery.ResolveLabelPolicy(ctx, d.DB, auth.InstanceID, orgID)
	if err != nil {
		return projection.LabelPolicyRow{}, fmt.Errorf("api: resolving label policy: %w", err)
	}
	return row, nil
}

// EffectiveLoginPolicy dispatches the sub-aggregated login-policy read.
func (d *Dispatcher) EffectiveLoginPolicy(ctx context.Context, auth cmdfw.AuthContext, orgID string) (iquery.LoginPolicyView, error) {
	return iquery.ResolveLoginPolicy(ctx, d.DB, auth.InstanceID, orgID)
}
