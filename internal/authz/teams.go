package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"authd.dev/internal/identity"
	"authd.dev/internal/ids"
	"authd.dev/internal/usertoken"
)

// CreateTeamInput describes a new team.
type CreateTeamInput struct {
	OrganizationID string
	ParentID       string
	Name           string
	Slug           string
	Description    string
}

// CreateTeamResult carries the created team on success.
type CreateTeamResult struct {
	Result
	Team *Team
}

// CreateTeam creates a team. Requires organization ownership. Touching a
// team also re-runs default-role provisioning so a team created in an
// organization with a missing default still gets sane member defaults.
func (s *Service) CreateTeam(ctx context.Context, actorID string, in CreateTeamInput) CreateTeamResult {
	fields := map[string]string{}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		fields["name"] = "Name is required."
	}
	if strings.TrimSpace(in.OrganizationID) == "" {
		fields["organizationId"] = "Organization is required."
	}
	if len(fields) > 0 {
		return CreateTeamResult{Result: Invalid("Team could not be created.", fields)}
	}

	membership, err := s.store.Organizations(ctx).FindMembership(ctx, in.OrganizationID, actorID)
	if err != nil || !CanCreateTeam(membership) {
		return CreateTeamResult{Result: Denied()}
	}
	if in.ParentID != "" {
		parent, err := s.store.Teams(ctx).Find(ctx, in.ParentID)
		if err != nil || parent.OrganizationID != in.OrganizationID {
			return CreateTeamResult{Result: Invalid("Team could not be created.", map[string]string{"parentId": "Parent team was not found."})}
		}
	}

	team := &Team{
		ID:             ids.New(),
		OrganizationID: in.OrganizationID,
		ParentID:       in.ParentID,
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
	}
	err = s.store.WithinTx(ctx, func(tx Store) error {
		if err := s.provisioner.EnsureWithin(ctx, tx, in.OrganizationID, false); err != nil {
			return err
		}
		teams := tx.Teams(ctx)
		slug := Slugify(in.Slug)
		if slug == "" {
			slug = name
		}
		unique, err := uniqueTeamSlug(ctx, teams, in.OrganizationID, slug)
		if err != nil {
			return err
		}
		team.Slug = unique
		return teams.Create(ctx, team)
	})
	if err != nil {
		return CreateTeamResult{Result: Fail("Team could not be created.")}
	}
	return CreateTeamResult{Result: OK("Team created."), Team: team}
}

// SetTeamMemberInput patches one team membership.
type SetTeamMemberInput struct {
	TeamID    string
	UserID    string
	RoleID    *string
	IsManager *bool
	Title     *string
}

// SetTeamMember updates a team member's role, manager flag or title. The
// caller must pass CanManageTeamMembers; a non-empty role must belong to
// the team's organization with team scope; only active memberships may be
// updated. Clearing a role is expressed with an empty RoleID.
func (s *Service) SetTeamMember(ctx context.Context, actorID string, in SetTeamMemberInput) Result {
	if strings.TrimSpace(in.TeamID) == "" || strings.TrimSpace(in.UserID) == "" {
		return Invalid("Member could not be updated.", map[string]string{"teamId": "Team and member are required."})
	}
	team, err := s.store.Teams(ctx).Find(ctx, in.TeamID)
	if err != nil {
		return Denied()
	}
	if !s.actorManagesTeam(ctx, actorID, team) {
		return Denied()
	}

	target, err := s.store.Teams(ctx).FindMember(ctx, in.TeamID, in.UserID)
	if err != nil {
		return Denied()
	}
	if target.Status != StatusActive {
		return Fail("Only active team members can be updated.")
	}
	if in.RoleID != nil && *in.RoleID != "" {
		role, err := s.store.Roles(ctx).Find(ctx, *in.RoleID)
		if err != nil || role.OrganizationID != team.OrganizationID || role.Scope != RoleScopeTeam {
			return Invalid("Member could not be updated.", map[string]string{"roleId": "Role must be a team role of this organization."})
		}
	}

	upd := TeamMemberUpdate{RoleID: in.RoleID, IsManager: in.IsManager, Title: in.Title}
	if err := s.store.Teams(ctx).UpdateMember(ctx, in.TeamID, in.UserID, upd); err != nil {
		return Fail("Member could not be updated.")
	}
	return OK("Member updated.")
}

// RemoveTeamMember removes one membership row. Requires
// CanManageTeamMembers.
func (s *Service) RemoveTeamMember(ctx context.Context, actorID, teamID, userID string) Result {
	team, err := s.store.Teams(ctx).Find(ctx, teamID)
	if err != nil {
		return Denied()
	}
	if !s.actorManagesTeam(ctx, actorID, team) {
		return Denied()
	}
	if err := s.store.Teams(ctx).RemoveMember(ctx, teamID, userID); err != nil {
		return Denied()
	}
	return OK("Member removed.")
}

// Onboarding identifies which path got a new user into the system.
type Onboarding string

const (
	OnboardingNone              Onboarding = ""
	OnboardingVerificationEmail Onboarding = "verification_email"
	OnboardingTemporaryPassword Onboarding = "temporary_password"
)

// AddTeamMemberInput adds a member to a team by email address.
type AddTeamMemberInput struct {
	TeamID      string
	Email       string
	DisplayName string
	RoleID      string
	// CreateIfMissing lets the caller explicitly request a brand-new
	// invited user when the email matches nobody.
	CreateIfMissing bool
}

// AddTeamMemberResult reports how the member was onboarded. The temporary
// password, when set, is shown to the caller exactly once.
type AddTeamMemberResult struct {
	Result
	UserID            string
	Onboarding        Onboarding
	TemporaryPassword string
}

// AddTeamMember adds a user to a team by email. Unknown emails create an
// invited user (when explicitly requested) with an organization membership
// and a team membership under the default roles. Onboarding prefers a
// verification email; when no application origin is configured, or when
// sending fails after the token was persisted, it falls back to a one-time
// temporary password with a forced password change. Provisioning must not
// fail outright merely because outbound email is unavailable.
func (s *Service) AddTeamMember(ctx context.Context, actorID string, in AddTeamMemberInput) AddTeamMemberResult {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return AddTeamMemberResult{Result: Invalid("Member could not be added.", map[string]string{"email": "A valid email is required."})}
	}
	team, err := s.store.Teams(ctx).Find(ctx, in.TeamID)
	if err != nil {
		return AddTeamMemberResult{Result: Denied()}
	}
	if err := s.provisioner.EnsureOrganizationAuthorization(ctx, team.OrganizationID, false); err != nil {
		return AddTeamMemberResult{Result: Fail("Member could not be added.")}
	}
	if !s.actorManagesTeam(ctx, actorID, team) {
		return AddTeamMemberResult{Result: Denied()}
	}

	roleID := strings.TrimSpace(in.RoleID)
	if roleID != "" {
		role, err := s.store.Roles(ctx).Find(ctx, roleID)
		if err != nil || role.OrganizationID != team.OrganizationID || role.Scope != RoleScopeTeam {
			return AddTeamMemberResult{Result: Invalid("Member could not be added.", map[string]string{"roleId": "Role must be a team role of this organization."})}
		}
	}

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	isNew := false
	switch {
	case errors.Is(err, ErrNotFound):
		if !in.CreateIfMissing {
			return AddTeamMemberResult{Result: Invalid("Member could not be added.", map[string]string{"email": "No user exists with this email."})}
		}
		user = &User{
			ID:          ids.New(),
			Email:       email,
			DisplayName: strings.TrimSpace(in.DisplayName),
			Status:      StatusInvited,
		}
		isNew = true
	case err != nil:
		return AddTeamMemberResult{Result: Fail("Member could not be added.")}
	}

	err = s.store.WithinTx(ctx, func(tx Store) error {
		if isNew {
			if err := tx.Users(ctx).Create(ctx, user); err != nil {
				return err
			}
		}
		return s.enrollMember(ctx, tx, team, user, actorID, roleID)
	})
	if err != nil {
		return AddTeamMemberResult{Result: Fail("Member could not be added.")}
	}

	result := AddTeamMemberResult{Result: OK("Member added."), UserID: user.ID}
	if !isNew {
		return result
	}
	return s.onboardNewUser(ctx, user, result)
}

// enrollMember upserts the organization and team membership rows under the
// scope defaults. Concurrent adds for the same (team, user) pair keep
// upsert semantics: the last writer's role wins.
func (s *Service) enrollMember(ctx context.Context, tx Store, team *Team, user *User, actorID, roleID string) error {
	orgs := tx.Organizations(ctx)
	roles := tx.Roles(ctx)

	if _, err := orgs.FindMembership(ctx, team.OrganizationID, user.ID); errors.Is(err, ErrNotFound) {
		orgDefault, err := roles.DefaultRole(ctx, team.OrganizationID, RoleScopeOrganization)
		if err != nil {
			return fmt.Errorf("organization default role missing: %w", err)
		}
		memberships, err := orgs.MembershipsForUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if err := orgs.UpsertMembership(ctx, &OrganizationMembership{
			OrganizationID: team.OrganizationID,
			UserID:         user.ID,
			Status:         StatusActive,
			IsDefault:      len(memberships) == 0,
			RoleID:         orgDefault.ID,
			InvitedBy:      actorID,
		}); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if roleID == "" {
		teamDefault, err := roles.DefaultRole(ctx, team.OrganizationID, RoleScopeTeam)
		if err != nil {
			return fmt.Errorf("team default role missing: %w", err)
		}
		roleID = teamDefault.ID
	}
	return tx.Teams(ctx).UpsertMember(ctx, &TeamMembership{
		TeamID: team.ID,
		UserID: user.ID,
		Status: StatusActive,
		RoleID: roleID,
	})
}

// onboardNewUser gets a freshly invited user into the system: a
// verification email when an origin is available, otherwise a temporary
// password. A mailer failure after the token row exists deletes the row
// and still succeeds through the password fallback.
func (s *Service) onboardNewUser(ctx context.Context, user *User, result AddTeamMemberResult) AddTeamMemberResult {
	if s.baseURL != "" && s.mailer != nil && s.tokens != nil {
		raw, tok, err := s.tokens.Issue(ctx, user.ID, usertoken.TypeEmailVerify, 72*time.Hour, map[string]string{
			"email": user.Email,
		})
		if err == nil {
			link := fmt.Sprintf("%s/verify-email?token=%s", strings.TrimRight(s.baseURL, "/"), raw)
			sendErr := s.mailer.Send(ctx, identity.Message{
				ToEmail: user.Email,
				ToName:  user.DisplayName,
				Subject: "Verify your email",
				Text:    "Confirm your email address to activate your account: " + link,
				HTML:    fmt.Sprintf(`<p>Confirm your email address to <a href="%s">activate your account</a>.</p>`, link),
			})
			if sendErr == nil {
				result.Onboarding = OnboardingVerificationEmail
				return result
			}
			_ = s.tokens.Discard(ctx, tok.ID)
		}
	}

	password, err := identity.TemporaryPassword(12)
	if err != nil {
		result.Result = Fail("Member could not be added.")
		return result
	}
	hash, err := identity.HashPassword(password)
	if err != nil {
		result.Result = Fail("Member could not be added.")
		return result
	}
	users := s.store.Users(ctx)
	if err := users.UpdatePassword(ctx, user.ID, hash, true); err != nil {
		result.Result = Fail("Member could not be added.")
		return result
	}
	if err := users.UpdateStatus(ctx, user.ID, StatusActive, nil); err != nil {
		result.Result = Fail("Member could not be added.")
		return result
	}
	result.Onboarding = OnboardingTemporaryPassword
	result.TemporaryPassword = password
	return result
}

// actorManagesTeam loads the actor's organization and team memberships and
// applies CanManageTeamMembers.
func (s *Service) actorManagesTeam(ctx context.Context, actorID string, team *Team) bool {
	orgMembership, err := s.store.Organizations(ctx).FindMembership(ctx, team.OrganizationID, actorID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false
	}
	teamMembership, err := s.store.Teams(ctx).FindMember(ctx, team.ID, actorID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false
	}
	return CanManageTeamMembers(orgMembership, teamMembership)
}
