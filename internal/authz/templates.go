package authz

// RoleTemplate is one entry in the canonical role set installed for every
// organization. Order matters: provisioning walks the list top to bottom so
// the owner role exists before anything references it.
type RoleTemplate struct {
	Key         string
	Name        string
	Description string
	Scope       RoleScope
	IsDefault   bool
	Permissions []string
}

// RoleTemplates returns the ordered canonical templates. Provider link
// permissions are included for the owner and admin roles so newly
// configured providers are usable without manual role edits.
func RoleTemplates(features FeatureConfig) []RoleTemplate {
	allKeys := make([]string, 0, len(baseDefinitions)+len(features.Providers))
	for _, def := range Catalog(features) {
		allKeys = append(allKeys, def.Key)
	}

	adminKeys := []string{
		PermOrgUpdate, PermOrgInvite, PermOrgRoles, PermOrgTeams, PermOrgSessions,
		PermTeamCreate, PermTeamUpdate, PermTeamDelete, PermTeamMembers,
		PermRoleCreate, PermRoleUpdate, PermRoleDelete,
		PermMemberAssignRole, PermMemberRemove, PermMemberUpdate,
		PermSessionRevoke,
		PermProviderLink, PermProviderUnlink,
	}

	return []RoleTemplate{
		{
			Key:         OwnerRoleKey,
			Name:        "Owner",
			Description: "Full control over the organization",
			Scope:       RoleScopeOrganization,
			Permissions: allKeys,
		},
		{
			Key:         "admin",
			Name:        "Admin",
			Description: "Manage members, teams and roles",
			Scope:       RoleScopeOrganization,
			Permissions: adminKeys,
		},
		{
			Key:         "member",
			Name:        "Member",
			Description: "Standard organization member",
			Scope:       RoleScopeOrganization,
			IsDefault:   true,
			Permissions: []string{PermProviderLink, PermProviderUnlink},
		},
		{
			Key:         "team-lead",
			Name:        "Team Lead",
			Description: "Manage one team and its members",
			Scope:       RoleScopeTeam,
			Permissions: []string{PermTeamUpdate, PermTeamMembers, PermMemberAssignRole, PermMemberUpdate, PermMemberRemove},
		},
		{
			Key:         "team-collaborator",
			Name:        "Team Collaborator",
			Description: "Contribute within one team",
			Scope:       RoleScopeTeam,
			IsDefault:   true,
			Permissions: nil,
		},
	}
}
