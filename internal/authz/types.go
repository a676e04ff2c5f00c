package authz

import "time"

// Statuses shared by users and membership rows.
const (
	StatusActive    = "active"
	StatusInvited   = "invited"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
	StatusPending   = "pending"
)

// RoleScope identifies the boundary a role applies to. System roles carry an
// empty organization reference.
type RoleScope string

const (
	RoleScopeSystem       RoleScope = "system"
	RoleScopeOrganization RoleScope = "organization"
	RoleScopeTeam         RoleScope = "team"
)

const (
	// OwnerRoleKey is the immutable full-permission role every organization
	// creator receives. It cannot be deleted or edited.
	OwnerRoleKey = "owner"

	// FallbackRoleKey is reported as the primary role when a user has no
	// assignment carrying a role key.
	FallbackRoleKey = "member"
)

// User is the identity anchor.
type User struct {
	ID                 string
	Email              string
	DisplayName        string
	Status             string
	PasswordHash       string
	MustChangePassword bool
	EmailVerifiedAt    *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Organization is the tenant boundary. It owns roles, teams and memberships.
type Organization struct {
	ID          string
	Name        string
	Slug        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrganizationMembership joins a user to an organization. At most one
// membership per user carries IsDefault=true across all organizations.
type OrganizationMembership struct {
	OrganizationID string
	UserID         string
	Status         string
	IsDefault      bool
	RoleID         string
	RoleKey        string
	InvitedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Team belongs to exactly one organization, optionally nested under a
// parent team.
type Team struct {
	ID             string
	OrganizationID string
	ParentID       string
	Name           string
	Slug           string
	Description    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TeamMembership joins a user to a team. (TeamID, UserID) is the composite
// primary key.
type TeamMembership struct {
	TeamID    string
	UserID    string
	Status    string
	IsManager bool
	RoleID    string
	RoleKey   string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role is a scoped authorization bundle. Key is unique per organization.
type Role struct {
	ID             string
	OrganizationID string
	Key            string
	Name           string
	Description    string
	Scope          RoleScope
	IsDefault      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Permission is a catalog entry identified by a stable key such as
// "org:invite" or "auth:provider:github".
type Permission struct {
	ID          string
	Key         string
	Name        string
	Category    string
	Description string
	CreatedAt   time.Time
}

// Assignment grants a role to a user directly, independent of membership
// rows. Empty organization and team references mean a global grant. RoleKey
// is populated by the store in the same round trip.
type Assignment struct {
	UserID         string
	RoleID         string
	RoleKey        string
	OrganizationID string
	TeamID         string
	CreatedAt      time.Time
}

// FeatureConfig carries startup-determined feature state. It is threaded
// through the resolver and mutators at construction time rather than held
// in process-global state.
type FeatureConfig struct {
	// Providers lists the configured external identity providers; each one
	// expands into an auth:provider:<name> permission key.
	Providers []string
}
