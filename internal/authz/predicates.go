package authz

// Pure predicates over membership snapshots. No I/O happens here; callers
// load the rows first and the mutators reuse these checks so UI and
// enforcement cannot drift apart.

// IsOwnerMembership reports whether the membership is active and carries
// the reserved owner role.
func IsOwnerMembership(m *OrganizationMembership) bool {
	return m != nil && m.Status == StatusActive && m.RoleKey == OwnerRoleKey
}

// IsActiveTeamManager reports whether the team membership is active with
// the manager flag set.
func IsActiveTeamManager(m *TeamMembership) bool {
	return m != nil && m.Status == StatusActive && m.IsManager
}

// CanCreateTeam requires organization ownership.
func CanCreateTeam(orgMembership *OrganizationMembership) bool {
	return IsOwnerMembership(orgMembership)
}

// CanManageTeamMembers passes for organization owners or active team
// managers. Either suffices, so owners bypass team-level manager checks.
func CanManageTeamMembers(orgMembership *OrganizationMembership, teamMembership *TeamMembership) bool {
	return IsOwnerMembership(orgMembership) || IsActiveTeamManager(teamMembership)
}
