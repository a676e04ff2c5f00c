package authz

import (
	"fmt"
	"strings"
)

// Permission keys form a closed, versioned set. Provider keys are expanded
// once at startup from FeatureConfig, so call sites never concatenate
// strings to name a capability.
const (
	PermOrgCreate   = "org:create"
	PermOrgUpdate   = "org:update"
	PermOrgDelete   = "org:delete"
	PermOrgInvite   = "org:invite"
	PermOrgRoles    = "org:roles"
	PermOrgTeams    = "org:teams"
	PermOrgSessions = "org:sessions"

	PermTeamCreate  = "team:create"
	PermTeamUpdate  = "team:update"
	PermTeamDelete  = "team:delete"
	PermTeamMembers = "team:members"

	PermRoleCreate = "role:create"
	PermRoleUpdate = "role:update"
	PermRoleDelete = "role:delete"

	PermMemberAssignRole = "member:assign-role"
	PermMemberRemove     = "member:remove"
	PermMemberUpdate     = "member:update"

	PermSessionRevoke = "session:revoke"

	PermProviderLink   = "auth:provider:link"
	PermProviderUnlink = "auth:provider:unlink"
)

const providerKeyPrefix = "auth:provider:"

// Definition describes one catalog entry. The catalog is additive only:
// stale keys are never deleted so older grants keep resolving.
type Definition struct {
	Key         string
	Name        string
	Category    string
	Description string
}

var baseDefinitions = []Definition{
	{Key: PermOrgCreate, Name: "Create organizations", Category: "organization", Description: "Create new organizations"},
	{Key: PermOrgUpdate, Name: "Update organization", Category: "organization", Description: "Edit organization name, slug and description"},
	{Key: PermOrgDelete, Name: "Delete organization", Category: "organization", Description: "Delete the organization and everything it owns"},
	{Key: PermOrgInvite, Name: "Invite members", Category: "organization", Description: "Invite users into the organization"},
	{Key: PermOrgRoles, Name: "Manage roles", Category: "organization", Description: "View and manage organization roles"},
	{Key: PermOrgTeams, Name: "Manage teams", Category: "organization", Description: "View and manage organization teams"},
	{Key: PermOrgSessions, Name: "View member sessions", Category: "organization", Description: "Inspect sessions of organization members"},
	{Key: PermTeamCreate, Name: "Create teams", Category: "team", Description: "Create teams within the organization"},
	{Key: PermTeamUpdate, Name: "Update team", Category: "team", Description: "Edit team name, slug and description"},
	{Key: PermTeamDelete, Name: "Delete team", Category: "team", Description: "Delete a team"},
	{Key: PermTeamMembers, Name: "Manage team members", Category: "team", Description: "Add, update and remove team members"},
	{Key: PermRoleCreate, Name: "Create roles", Category: "role", Description: "Create custom roles"},
	{Key: PermRoleUpdate, Name: "Update roles", Category: "role", Description: "Edit role names, descriptions and permissions"},
	{Key: PermRoleDelete, Name: "Delete roles", Category: "role", Description: "Delete custom roles"},
	{Key: PermMemberAssignRole, Name: "Assign member roles", Category: "member", Description: "Assign roles to members"},
	{Key: PermMemberRemove, Name: "Remove members", Category: "member", Description: "Remove members from the organization or a team"},
	{Key: PermMemberUpdate, Name: "Update members", Category: "member", Description: "Update member titles and flags"},
	{Key: PermSessionRevoke, Name: "Revoke sessions", Category: "security", Description: "Revoke another member's sessions"},
	{Key: PermProviderLink, Name: "Link identity provider", Category: "authentication", Description: "Link an external identity provider account"},
	{Key: PermProviderUnlink, Name: "Unlink identity provider", Category: "authentication", Description: "Unlink an external identity provider account"},
}

// ProviderPermissionKey names the capability of signing in through one
// configured external identity provider.
func ProviderPermissionKey(provider string) string {
	return providerKeyPrefix + strings.ToLower(strings.TrimSpace(provider))
}

// Catalog returns the full permission catalog for the configured feature
// set: the base definitions plus one entry per identity provider.
func Catalog(features FeatureConfig) []Definition {
	defs := make([]Definition, 0, len(baseDefinitions)+len(features.Providers))
	defs = append(defs, baseDefinitions...)
	seen := make(map[string]struct{}, len(features.Providers))
	for _, provider := range features.Providers {
		name := strings.ToLower(strings.TrimSpace(provider))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		defs = append(defs, Definition{
			Key:         ProviderPermissionKey(name),
			Name:        fmt.Sprintf("Sign in with %s", name),
			Category:    "authentication",
			Description: fmt.Sprintf("Authenticate through the %s identity provider", name),
		})
	}
	return defs
}
