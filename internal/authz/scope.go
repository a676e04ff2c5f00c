package authz

// Scope is the authorization boundary a permission query applies to:
// global, one organization, or one team. At the storage boundary it maps
// back to nullable organization/team columns; inside the resolver it is a
// proper variant so call sites cannot produce the meaningless
// "both set" combination.
type Scope struct {
	kind   scopeKind
	orgID  string
	teamID string
}

type scopeKind int

const (
	scopeGlobal scopeKind = iota
	scopeOrganization
	scopeTeam
)

// GlobalScope addresses grants that carry no organization or team.
func GlobalScope() Scope { return Scope{kind: scopeGlobal} }

// OrganizationScope addresses one organization.
func OrganizationScope(orgID string) Scope {
	return Scope{kind: scopeOrganization, orgID: orgID}
}

// TeamScope addresses one team.
func TeamScope(teamID string) Scope {
	return Scope{kind: scopeTeam, teamID: teamID}
}

// IsGlobal reports whether the scope is the global boundary.
func (s Scope) IsGlobal() bool { return s.kind == scopeGlobal }

// OrganizationID returns the organization reference, if the scope is
// organization-bound.
func (s Scope) OrganizationID() (string, bool) {
	return s.orgID, s.kind == scopeOrganization
}

// TeamID returns the team reference, if the scope is team-bound.
func (s Scope) TeamID() (string, bool) {
	return s.teamID, s.kind == scopeTeam
}

// String renders the scope for cache keys and log lines.
func (s Scope) String() string {
	switch s.kind {
	case scopeOrganization:
		return "org:" + s.orgID
	case scopeTeam:
		return "team:" + s.teamID
	default:
		return "global"
	}
}
