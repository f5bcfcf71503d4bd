package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/haloiam/core/internal/domain"
	"github.com/haloiam/core/pkg/aggregate"
	cmdfw "github.com/haloiam/core/pkg/command"
	"github.com/haloiam/core/pkg/apperrors"
	"github.com/haloiam/core/pkg/eventstore"
	"github.com/haloiam/core/pkg/logging"
	"github.com/haloiam/core/pkg/snowflake"
	"golang.org/x/crypto/bcrypt"
)

// uniqueTypeUsername is the unique_constraints row type a human user's
// username claims.
const uniqueTypeUsername = "username"

// Service is the facade internal/api calls: one Commander-backed method per
// command in commands.go, plus the hand-written multi-aggregate
// CreateOrganizationWithAdmin orchestration. It holds exactly the
// dependencies the seven-step template needs: the store commands Append
// into, the casbin-backed Checker, a logger, and a snowflake Generator for
// ids the caller didn't supply.
type Service struct {
	Store   eventstore.EventStore
	Checker cmdfw.Checker
	Logger  logging.Logger
	IDGen   *snowflake.Generator
}

// NewService wires a Service from its dependencies.
func NewService(store eventstore.EventStore, checker cmdfw.Checker, logger logging.Logger, idGen *snowflake.Generator) *Service {
	return &Service{Store: store, Checker: checker, Logger: logger, IDGen: idGen}
}

func (s *Service) newID() string {
	return s.IDGen.NextString()
}

func (s *Service) loadOrganization(ctx context.Context, instanceID, id string) (*domain.Organization, error) {
	org := domain.NewOrganization(instanceID, id)
	if _, err := aggregate.Load(ctx, s.Store, &org.WriteModel); err != nil {
		return nil, apperrors.Internal("COMMAND-Load01", "loading organization", err)
	}
	return org, nil
}

func (s *Service) loadHumanUser(ctx context.Context, instanceID, id string) (*domain.HumanUser, error) {
	u := domain.NewHumanUser(instanceID, id)
	if _, err := aggregate.Load(ctx, s.Store, &u.WriteModel); err != nil {
		return nil, apperrors.Internal("COMMAND-Load02", "loading human user", err)
	}
	return u, nil
}

func (s *Service) loadOrgMember(ctx context.Context, instanceID, id string) (*domain.OrgMember, error) {
	m := domain.NewOrgMember(instanceID, id)
	if orgID, _, ok := strings.Cut(id, "/"); ok {
		m.SetOwner(orgID)
	}
	if _, err := aggregate.Load(ctx, s.Store, &m.WriteModel); err != nil {
		return nil, apperrors.Internal("COMMAND-Load03", "loading org member", err)
	}
	return m, nil
}

func (s *Service) loadLabelPolicy(ctx context.Context, instanceID, id string) (*domain.LabelPolicy, error) {
	p := domain.NewLabelPolicy(instanceID, id)
	if _, err := aggregate.Load(ctx, s.Store, &p.WriteModel); err != nil {
		return nil, apperrors.Internal("COMMAND-Load04", "loading label policy", err)
	}
	return p, nil
}

func (s *Service) loadLoginPolicy(ctx context.Context, instanceID, id string) (*domain.LoginPolicy, error) {
	p := domain.NewLoginPolicy(instanceID, id)
	if _, err := aggregate.Load(ctx, s.Store, &p.WriteModel); err != nil {
		return nil, apperrors.Internal("COMMAND-Load05", "loading login policy", err)
	}
	return p, nil
}

// orgMemberID is the deterministic aggregate id for an OrgMember, per
// org_member.go's comment: "add the same member twice" is then itself a
// version conflict rather than needing a separate unique constraint.
func orgMemberID(orgID, userID string) string {
	return orgID + "/" + userID
}

// --- Organization ---------------------------------------------------------

// CreateOrganizationWithAdmin seeds a new org, its first admin user, and
// the membership linking them. It spans three aggregates, so it is a
// hand-written sequence of pushes rather than a single Commander —
// pkg/eventstore.Push is scoped to one aggregate per call, and
// org.added, user.human.added, org.member.added must land in that
// relative order.
func (s *Service) CreateOrganizationWithAdmin(ctx context.Context, auth cmdfw.AuthContext, cmd CreateOrganizationWithAdminCommand) (ObjectDetails, error) {
	if err := requireField("name", cmd.Name); err != nil {
		return ObjectDetails{}, apperrors.InvalidArgument("COMMAND-Org01", err.Error(), err)
	}
	if err := validateHumanUserInput(cmd.Admin); err != nil {
		return ObjectDetails{}, apperrors.InvalidArgument("COMMAND-Org02", err.Error(), err)
	}

	if s.Checker != nil {
		allowed, err := s.Checker.CheckPermission(ctx, auth, "organization", "create")
		if err != nil {
			return ObjectDetails{}, apperrors.Internal("COMMAND-Org03", "permission check failed", err)
		}
		if !allowed {
			return ObjectDetails{}, apperrors.PermissionDenied("COMMAND-Org04",
				fmt.Sprintf("subject %s may not create an organization", auth.SubjectID), nil)
		}
	}

	orgID := cmd.OrgID
	if orgID == "" {
		orgID = s.newID()
	}
	org, err := s.loadOrganization(ctx, auth.InstanceID, orgID)
	if err != nil {
		return ObjectDetails{}, err
	}
	if org.Version() != 0 {
		return ObjectDetails{}, apperrors.AlreadyExists("COMMAND-Org05", fmt.Sprintf("organization %s already exists", orgID), nil)
	}
	if err := org.Add(cmd.Name); err != nil {
		return ObjectDetails{}, apperrors.FailedPrecondition("COMMAND-Org06", err.Error(), err)
	}
	if _, err := push(ctx, s.Store, auth.SubjectID, org); err != nil {
		return ObjectDetails{}, err
	}

	adminID := s.newID()
	admin, err := s.loadHumanUser(ctx, auth.InstanceID, adminID)
	if err != nil {
		return ObjectDetails{}, err
	}
	admin.SetOwner(orgID)
	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return ObjectDetails{}, apperrors.Internal("COMMAND-Org07", "hashing admin password", err)
	}
	if err := admin.Add(cmd.Admin.Username, cmd.Admin.Email, cmd.Admin.FirstName, cmd.Admin.LastName, string(hash)); err != nil {
		return ObjectDetails{}, apperrors.FailedPrecondition("COMMAND-Org08", err.Error(), err)
	}
	claimUsername := eventstore.UniqueOp{UniqueType: uniqueTypeUsername, UniqueField: cmd.Admin.Username, AggregateID: adminID}
	if _, err := push(ctx, s.Store, auth.SubjectID, admin, claimUsername); err != nil {
		return ObjectDetails{}, err
	}

	memberID := orgMemberID(orgID, adminID)
	member, err := s.loadOrgMember(ctx, auth.InstanceID, memberID)
	if err != nil {
		return ObjectDetails{}, err
	}
	if err := member.Add(orgID, adminID, []string{"ORG_OWNER"}); err != nil {
		return ObjectDetails{}, apperrors.FailedPrecondition("COMMAND-Org09", err.Error(), err)
	}
	events, err := push(ctx, s.Store, auth.SubjectID, member)
	if err != nil {
		return ObjectDetails{}, err
	}

	if s.Logger != nil {
		s.Logger.Info("organization created", "org_id", orgID, "admin_user_id", adminID)
	}
	return lastEventDetails(events, orgID), nil
}

func (s *Service) ChangeOrganizationName(ctx context.Context, auth cmdfw.AuthContext, cmd ChangeOrganizationNameCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[ChangeOrganizationNameCommand, *domain.Organization]{
		Resource: "organization", Action: "update",
		Validate: func(c ChangeOrganizationNameCommand) error { return requireField("name", c.Name) },
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c ChangeOrganizationNameCommand) (*domain.Organization, error) {
			return s.loadOrganization(ctx, auth.InstanceID, c.OrgID)
		},
		CheckInvariants: func(_ context.Context, org *domain.Organization, c ChangeOrganizationNameCommand) error {
			return requireExists(org.Version(), "organization", c.OrgID)
		},
		Apply: func(org *domain.Organization, c ChangeOrganizationNameCommand) error { return org.ChangeName(c.Name) },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, org *domain.Organization) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, org)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OrgID), nil
}

func (s *Service) DeactivateOrganization(ctx context.Context, auth cmdfw.AuthContext, cmd DeactivateOrganizationCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[DeactivateOrganizationCommand, *domain.Organization]{
		Resource: "organization", Action: "update",
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c DeactivateOrganizationCommand) (*domain.Organization, error) {
			return s.loadOrganization(ctx, auth.InstanceID, c.OrgID)
		},
		CheckInvariants: func(_ context.Context, org *domain.Organization, c DeactivateOrganizationCommand) error {
			return requireExists(org.Version(), "organization", c.OrgID)
		},
		Apply: func(org *domain.Organization, _ DeactivateOrganizationCommand) error { return org.Deactivate() },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, org *domain.Organization) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, org)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OrgID), nil
}

func (s *Service) ReactivateOrganization(ctx context.Context, auth cmdfw.AuthContext, cmd ReactivateOrganizationCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[ReactivateOrganizationCommand, *domain.Organization]{
		Resource: "organization", Action: "update",
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c ReactivateOrganizationCommand) (*domain.Organization, error) {
			return s.loadOrganization(ctx, auth.InstanceID, c.OrgID)
		},
		CheckInvariants: func(_ context.Context, org *domain.Organization, c ReactivateOrganizationCommand) error {
			return requireExists(org.Version(), "organization", c.OrgID)
		},
		Apply: func(org *domain.Organization, _ ReactivateOrganizationCommand) error { return org.Reactivate() },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, org *domain.Organization) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, org)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OrgID), nil
}

// --- Human User ------------------------------------------------------------

func (s *Service) AddHumanUser(ctx context.Context, auth cmdfw.AuthContext, cmd AddHumanUserCommand) (ObjectDetails, error) {
	userID := cmd.UserID
	c := cmdfw.Commander[AddHumanUserCommand, *domain.HumanUser]{
		Resource: "user", Action: "create",
		Validate: func(c AddHumanUserCommand) error { return validateHumanUserInput(c.HumanUserInput) },
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c AddHumanUserCommand) (*domain.HumanUser, error) {
			if userID == "" {
				userID = s.newID()
			}
			u, err := s.loadHumanUser(ctx, auth.InstanceID, userID)
			if err != nil {
				return nil, err
			}
			if c.OrgID != "" {
				u.SetOwner(c.OrgID)
			}
			return u, nil
		},
		CheckInvariants: func(_ context.Context, u *domain.HumanUser, c AddHumanUserCommand) error {
			if u.Version() != 0 {
				return apperrors.AlreadyExists("COMMAND-User01", fmt.Sprintf("user %s already exists", userID), nil)
			}
			return nil
		},
		Apply: func(u *domain.HumanUser, c AddHumanUserCommand) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}
			return u.Add(c.Username, c.Email, c.FirstName, c.LastName, string(hash))
		},
		Append: func(ctx context.Context, auth cmdfw.AuthContext, u *domain.HumanUser) ([]eventstore.Event, error) {
			claim := eventstore.UniqueOp{UniqueType: uniqueTypeUsername, UniqueField: u.Username, AggregateID: u.ID()}
			return push(ctx, s.Store, auth.SubjectID, u, claim)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OrgID), nil
}

func (s *Service) ChangeHumanUserEmail(ctx context.Context, auth cmdfw.AuthContext, cmd ChangeHumanUserEmailCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[ChangeHumanUserEmailCommand, *domain.HumanUser]{
		Resource: "user", Action: "update",
		Validate: func(c ChangeHumanUserEmailCommand) error { return validateEmail(c.Email) },
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c ChangeHumanUserEmailCommand) (*domain.HumanUser, error) {
			return s.loadHumanUser(ctx, auth.InstanceID, c.UserID)
		},
		CheckInvariants: func(_ context.Context, u *domain.HumanUser, c ChangeHumanUserEmailCommand) error {
			return requireExists(u.Version(), "user", c.UserID)
		},
		Apply: func(u *domain.HumanUser, c ChangeHumanUserEmailCommand) error { return u.ChangeEmail(c.Email) },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, u *domain.HumanUser) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, u)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.UserID), nil
}

func (s *Service) ChangeHumanUserPassword(ctx context.Context, auth cmdfw.AuthContext, cmd ChangeHumanUserPasswordCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[ChangeHumanUserPasswordCommand, *domain.HumanUser]{
		Resource: "user", Action: "update",
		Validate: func(c ChangeHumanUserPasswordCommand) error {
			if len(c.Password) < 8 {
				return fmt.Errorf("password must be at least 8 characters")
			}
			return nil
		},
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c ChangeHumanUserPasswordCommand) (*domain.HumanUser, error) {
			return s.loadHumanUser(ctx, auth.InstanceID, c.UserID)
		},
		CheckInvariants: func(_ context.Context, u *domain.HumanUser, c ChangeHumanUserPasswordCommand) error {
			return requireExists(u.Version(), "user", c.UserID)
		},
		Apply: func(u *domain.HumanUser, c ChangeHumanUserPasswordCommand) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}
			return u.ChangePassword(string(hash))
		},
		Append: func(ctx context.Context, auth cmdfw.AuthContext, u *domain.HumanUser) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, u)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.UserID), nil
}

func (s *Service) RemoveHumanUser(ctx context.Context, auth cmdfw.AuthContext, cmd RemoveHumanUserCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[RemoveHumanUserCommand, *domain.HumanUser]{
		Resource: "user", Action: "delete",
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c RemoveHumanUserCommand) (*domain.HumanUser, error) {
			return s.loadHumanUser(ctx, auth.InstanceID, c.UserID)
		},
		CheckInvariants: func(_ context.Context, u *domain.HumanUser, c RemoveHumanUserCommand) error {
			return requireExists(u.Version(), "user", c.UserID)
		},
		Apply: func(u *domain.HumanUser, _ RemoveHumanUserCommand) error { return u.Remove() },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, u *domain.HumanUser) ([]eventstore.Event, error) {
			release := eventstore.UniqueOp{Remove: true, UniqueType: uniqueTypeUsername, UniqueField: u.Username, AggregateID: u.ID()}
			return push(ctx, s.Store, auth.SubjectID, u, release)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.UserID), nil
}

// --- Org Membership ---------------------------------------------------------

func (s *Service) AddOrgMember(ctx context.Context, auth cmdfw.AuthContext, cmd AddOrgMemberCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[AddOrgMemberCommand, *domain.OrgMember]{
		Resource: "org_member", Action: "create",
		Validate: func(c AddOrgMemberCommand) error {
			if err := requireField("orgId", c.OrgID); err != nil {
				return err
			}
			return requireField("userId", c.UserID)
		},
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c AddOrgMemberCommand) (*domain.OrgMember, error) {
			return s.loadOrgMember(ctx, auth.InstanceID, orgMemberID(c.OrgID, c.UserID))
		},
		CheckInvariants: func(_ context.Context, m *domain.OrgMember, c AddOrgMemberCommand) error {
			if m.Version() != 0 {
				return apperrors.AlreadyExists("COMMAND-Mem01",
					fmt.Sprintf("user %s is already a member of organization %s", c.UserID, c.OrgID), nil)
			}
			return nil
		},
		Apply: func(m *domain.OrgMember, c AddOrgMemberCommand) error { return m.Add(c.OrgID, c.UserID, c.Roles) },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, m *domain.OrgMember) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, m)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OrgID), nil
}

func (s *Service) ChangeOrgMemberRoles(ctx context.Context, auth cmdfw.AuthContext, cmd ChangeOrgMemberRolesCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[ChangeOrgMemberRolesCommand, *domain.OrgMember]{
		Resource: "org_member", Action: "update",
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c ChangeOrgMemberRolesCommand) (*domain.OrgMember, error) {
			return s.loadOrgMember(ctx, auth.InstanceID, orgMemberID(c.OrgID, c.UserID))
		},
		CheckInvariants: func(_ context.Context, m *domain.OrgMember, c ChangeOrgMemberRolesCommand) error {
			return requireExists(m.Version(), "org_member", orgMemberID(c.OrgID, c.UserID))
		},
		Apply: func(m *domain.OrgMember, c ChangeOrgMemberRolesCommand) error { return m.ChangeRoles(c.Roles) },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, m *domain.OrgMember) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, m)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OrgID), nil
}

func (s *Service) RemoveOrgMember(ctx context.Context, auth cmdfw.AuthContext, cmd RemoveOrgMemberCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[RemoveOrgMemberCommand, *domain.OrgMember]{
		Resource: "org_member", Action: "delete",
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c RemoveOrgMemberCommand) (*domain.OrgMember, error) {
			return s.loadOrgMember(ctx, auth.InstanceID, orgMemberID(c.OrgID, c.UserID))
		},
		CheckInvariants: func(_ context.Context, m *domain.OrgMember, c RemoveOrgMemberCommand) error {
			return requireExists(m.Version(), "org_member", orgMemberID(c.OrgID, c.UserID))
		},
		Apply: func(m *domain.OrgMember, _ RemoveOrgMemberCommand) error { return m.Remove() },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, m *domain.OrgMember) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, m)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OrgID), nil
}

// --- Label Policy ------------------------------------------------------------

func (s *Service) SetLabelPolicy(ctx context.Context, auth cmdfw.AuthContext, cmd SetLabelPolicyCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[SetLabelPolicyCommand, *domain.LabelPolicy]{
		Resource: "label_policy", Action: "update",
		Validate: func(c SetLabelPolicyCommand) error {
			if err := requireField("ownerId", c.OwnerID); err != nil {
				return err
			}
			if err := validateColor(c.PrimaryColor); err != nil {
				return err
			}
			return validateURL("logoUrl", c.LogoURL)
		},
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c SetLabelPolicyCommand) (*domain.LabelPolicy, error) {
			return s.loadLabelPolicy(ctx, auth.InstanceID, c.OwnerID)
		},
		Apply: func(p *domain.LabelPolicy, c SetLabelPolicyCommand) error {
			if p.Version() == 0 {
				return p.Add(c.PrimaryColor, c.LogoURL)
			}
			return p.Change(c.PrimaryColor, c.LogoURL)
		},
		Append: func(ctx context.Context, auth cmdfw.AuthContext, p *domain.LabelPolicy) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, p)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OwnerID), nil
}

func (s *Service) RemoveLabelPolicy(ctx context.Context, auth cmdfw.AuthContext, cmd RemoveLabelPolicyCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[RemoveLabelPolicyCommand, *domain.LabelPolicy]{
		Resource: "label_policy", Action: "delete",
		Validate: func(c RemoveLabelPolicyCommand) error {
			if c.OwnerID == domain.InstanceDefaultOwner {
				return fmt.Errorf("the instance-default label policy may not be removed")
			}
			return nil
		},
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c RemoveLabelPolicyCommand) (*domain.LabelPolicy, error) {
			return s.loadLabelPolicy(ctx, auth.InstanceID, c.OwnerID)
		},
		CheckInvariants: func(_ context.Context, p *domain.LabelPolicy, c RemoveLabelPolicyCommand) error {
			return requireExists(p.Version(), "label_policy", c.OwnerID)
		},
		Apply: func(p *domain.LabelPolicy, _ RemoveLabelPolicyCommand) error { return p.Remove() },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, p *domain.LabelPolicy) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, p)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OwnerID), nil
}

// --- Login Policy ------------------------------------------------------------

func (s *Service) EnsureLoginPolicy(ctx context.Context, auth cmdfw.AuthContext, cmd EnsureLoginPolicyCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[EnsureLoginPolicyCommand, *domain.LoginPolicy]{
		Resource: "login_policy", Action: "update",
		Validate: func(c EnsureLoginPolicyCommand) error { return requireField("ownerId", c.OwnerID) },
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c EnsureLoginPolicyCommand) (*domain.LoginPolicy, error) {
			return s.loadLoginPolicy(ctx, auth.InstanceID, c.OwnerID)
		},
		Apply: func(p *domain.LoginPolicy, _ EnsureLoginPolicyCommand) error {
			if p.Version() != 0 {
				return nil
			}
			return p.Add()
		},
		Append: func(ctx context.Context, auth cmdfw.AuthContext, p *domain.LoginPolicy) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, p)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OwnerID), nil
}

func (s *Service) AddSecondFactor(ctx context.Context, auth cmdfw.AuthContext, cmd AddSecondFactorCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[AddSecondFactorCommand, *domain.LoginPolicy]{
		Resource: "login_policy", Action: "update",
		Validate: func(c AddSecondFactorCommand) error { return requireField("type", c.Type) },
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c AddSecondFactorCommand) (*domain.LoginPolicy, error) {
			return s.loadLoginPolicy(ctx, auth.InstanceID, c.OwnerID)
		},
		CheckInvariants: func(_ context.Context, p *domain.LoginPolicy, c AddSecondFactorCommand) error {
			return requireExists(p.Version(), "login_policy", c.OwnerID)
		},
		Apply: func(p *domain.LoginPolicy, c AddSecondFactorCommand) error { return p.AddSecondFactor(c.Type) },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, p *domain.LoginPolicy) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, p)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OwnerID), nil
}

func (s *Service) RemoveSecondFactor(ctx context.Context, auth cmdfw.AuthContext, cmd RemoveSecondFactorCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[RemoveSecondFactorCommand, *domain.LoginPolicy]{
		Resource: "login_policy", Action: "update",
		Validate: func(c RemoveSecondFactorCommand) error { return requireField("type", c.Type) },
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c RemoveSecondFactorCommand) (*domain.LoginPolicy, error) {
			return s.loadLoginPolicy(ctx, auth.InstanceID, c.OwnerID)
		},
		CheckInvariants: func(_ context.Context, p *domain.LoginPolicy, c RemoveSecondFactorCommand) error {
			return requireExists(p.Version(), "login_policy", c.OwnerID)
		},
		Apply: func(p *domain.LoginPolicy, c RemoveSecondFactorCommand) error { return p.RemoveSecondFactor(c.Type) },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, p *domain.LoginPolicy) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, p)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OwnerID), nil
}

func (s *Service) LinkIDP(ctx context.Context, auth cmdfw.AuthContext, cmd LinkIDPCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[LinkIDPCommand, *domain.LoginPolicy]{
		Resource: "login_policy", Action: "update",
		Validate: func(c LinkIDPCommand) error { return requireField("idpId", c.IDPID) },
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c LinkIDPCommand) (*domain.LoginPolicy, error) {
			return s.loadLoginPolicy(ctx, auth.InstanceID, c.OwnerID)
		},
		CheckInvariants: func(_ context.Context, p *domain.LoginPolicy, c LinkIDPCommand) error {
			return requireExists(p.Version(), "login_policy", c.OwnerID)
		},
		Apply: func(p *domain.LoginPolicy, c LinkIDPCommand) error { return p.LinkIDP(c.IDPID) },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, p *domain.LoginPolicy) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, p)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OwnerID), nil
}

func (s *Service) UnlinkIDP(ctx context.Context, auth cmdfw.AuthContext, cmd UnlinkIDPCommand) (ObjectDetails, error) {
	c := cmdfw.Commander[UnlinkIDPCommand, *domain.LoginPolicy]{
		Resource: "login_policy", Action: "update",
		Validate: func(c UnlinkIDPCommand) error { return requireField("idpId", c.IDPID) },
		LoadAggregate: func(ctx context.Context, auth cmdfw.AuthContext, c UnlinkIDPCommand) (*domain.LoginPolicy, error) {
			return s.loadLoginPolicy(ctx, auth.InstanceID, c.OwnerID)
		},
		CheckInvariants: func(_ context.Context, p *domain.LoginPolicy, c UnlinkIDPCommand) error {
			return requireExists(p.Version(), "login_policy", c.OwnerID)
		},
		Apply: func(p *domain.LoginPolicy, c UnlinkIDPCommand) error { return p.UnlinkIDP(c.IDPID) },
		Append: func(ctx context.Context, auth cmdfw.AuthContext, p *domain.LoginPolicy) ([]eventstore.Event, error) {
			return push(ctx, s.Store, auth.SubjectID, p)
		},
	}
	events, err := c.Execute(ctx, s.Checker, s.Logger, auth, cmd)
	if err != nil {
		return ObjectDetails{}, err
	}
	return lastEventDetails(events, cmd.OwnerID), nil
}

// requireExists rejects a command targeting an aggregate id that has never
// been written — version 0 means LoadAggregate found nothing.
func requireExists(version int64, aggregateType, id string) error {
	if version == 0 {
		return apperrors.NotFound("COMMAND-NF01", fmt.Sprintf("%s %s not found", aggregateType, id), nil)
	}
	return nil
}
