package authz

import (
	"context"
	"time"
)

// Store describes the persistence operations the authorization engine
// needs. Implementations live under internal/store; the engine never talks
// to the database directly.
type Store interface {
	Users(ctx context.Context) UserStore
	Organizations(ctx context.Context) OrganizationStore
	Teams(ctx context.Context) TeamStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	Assignments(ctx context.Context) AssignmentStore

	// WithinTx runs fn against a store bound to one transaction. Mutating
	// sequences that must appear atomic (clear defaults then set one,
	// organization create with owner role and membership) run through it so
	// concurrent readers never observe an intermediate state.
	WithinTx(ctx context.Context, fn func(Store) error) error

	// PermissionKeys resolves the effective permission keys for a user in a
	// scope in explicit join queries: the membership-linked role plus all
	// matching direct assignments, each fetched together with its role key.
	PermissionKeys(ctx context.Context, userID string, scope Scope) ([]string, error)
}

// UserStore manages users.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdateStatus(ctx context.Context, id, status string, emailVerifiedAt *time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool) error
}

// OrganizationStore manages organizations and their memberships.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	FindBySlug(ctx context.Context, slug string) (*Organization, error)
	Delete(ctx context.Context, id string) error

	// UpsertMembership inserts the membership or, when the (org, user) pair
	// already exists, updates its status, role and default flag. Under
	// concurrent calls the last writer's role wins.
	UpsertMembership(ctx context.Context, m *OrganizationMembership) error
	FindMembership(ctx context.Context, orgID, userID string) (*OrganizationMembership, error)
	MembershipsForUser(ctx context.Context, userID string) ([]OrganizationMembership, error)
	// ClearDefaultMemberships drops the default flag from every membership
	// the user holds, across organizations.
	ClearDefaultMemberships(ctx context.Context, userID string) error
	SetDefaultMembership(ctx context.Context, orgID, userID string) error
	CountMembershipsWithRole(ctx context.Context, roleID string) (int, error)
}

// TeamStore manages teams and their memberships.
type TeamStore interface {
	Create(ctx context.Context, team *Team) error
	Find(ctx context.Context, id string) (*Team, error)
	FindBySlug(ctx context.Context, orgID, slug string) (*Team, error)
	ListByOrg(ctx context.Context, orgID string) ([]*Team, error)
	Delete(ctx context.Context, id string) error

	UpsertMember(ctx context.Context, m *TeamMembership) error
	FindMember(ctx context.Context, teamID, userID string) (*TeamMembership, error)
	UpdateMember(ctx context.Context, teamID, userID string, upd TeamMemberUpdate) error
	RemoveMember(ctx context.Context, teamID, userID string) error
	CountMembersWithRole(ctx context.Context, roleID string) (int, error)
}

// TeamMemberUpdate patches a team membership. Nil fields are untouched.
type TeamMemberUpdate struct {
	RoleID    *string
	IsManager *bool
	Title     *string
}

// RoleStore manages roles.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByKey(ctx context.Context, orgID, key string) (*Role, error)
	ListByOrg(ctx context.Context, orgID string) ([]*Role, error)
	KeyExists(ctx context.Context, orgID, key string) (bool, error)
	Update(ctx context.Context, id string, upd RoleUpdate) error
	Delete(ctx context.Context, id string) error

	// ClearDefault drops the default flag from every role in the
	// (organization, scope) pair. Always called before SetDefault inside the
	// same transaction so the single-default invariant holds throughout.
	ClearDefault(ctx context.Context, orgID string, scope RoleScope) error
	SetDefault(ctx context.Context, roleID string) error
	DefaultRole(ctx context.Context, orgID string, scope RoleScope) (*Role, error)
}

// RoleUpdate patches a role. Nil fields are untouched.
type RoleUpdate struct {
	Name        *string
	Description *string
	Scope       *RoleScope
}

// PermissionStore manages the permission catalog and role bindings.
type PermissionStore interface {
	// Ensure upserts every definition by key. Additive only: keys absent
	// from defs are never deleted.
	Ensure(ctx context.Context, defs []Definition) error
	List(ctx context.Context) ([]Permission, error)
	// SetForRole replaces the role's permission set wholesale.
	SetForRole(ctx context.Context, roleID string, keys []string) error
	KeysForRole(ctx context.Context, roleID string) ([]string, error)
}

// AssignmentStore manages direct role grants.
type AssignmentStore interface {
	Grant(ctx context.Context, a Assignment) error
	Revoke(ctx context.Context, userID, roleID, orgID, teamID string) error
	// ListForUser returns the user's assignments with role keys resolved in
	// the same round trip.
	ListForUser(ctx context.Context, userID string) ([]Assignment, error)
}
