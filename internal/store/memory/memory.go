// Package memory is a map-backed implementation of the persistence
// contracts, used by tests and the storeless development mode. A single
// mutex stands in for the database's transactions; it is not meant for
// production traffic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"authd.dev/internal/authz"
	"authd.dev/internal/session"
	"authd.dev/internal/usertoken"
)

// Store holds everything in process memory.
type Store struct {
	mu sync.Mutex

	users          map[string]*authz.User
	orgs           map[string]*authz.Organization
	orgMemberships map[string]map[string]*authz.OrganizationMembership
	teams          map[string]*authz.Team
	teamMembers    map[string]map[string]*authz.TeamMembership
	roles          map[string]*authz.Role
	perms          map[string]*authz.Permission
	rolePerms      map[string]map[string]struct{}
	assignments    []authz.Assignment
	sessions       map[string]*session.Session
	tokens         map[string]*usertoken.Token
}

var (
	_ authz.Store     = (*Store)(nil)
	_ session.Store   = (*Store)(nil)
	_ usertoken.Store = (*TokenStore)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:          map[string]*authz.User{},
		orgs:           map[string]*authz.Organization{},
		orgMemberships: map[string]map[string]*authz.OrganizationMembership{},
		teams:          map[string]*authz.Team{},
		teamMembers:    map[string]map[string]*authz.TeamMembership{},
		roles:          map[string]*authz.Role{},
		perms:          map[string]*authz.Permission{},
		rolePerms:      map[string]map[string]struct{}{},
		sessions:       map[string]*session.Session{},
		tokens:         map[string]*usertoken.Token{},
	}
}

// WithinTx runs fn against the same store. Operations are individually
// atomic under the store mutex, which is enough for single-process tests.
func (s *Store) WithinTx(ctx context.Context, fn func(authz.Store) error) error {
	return fn(s)
}

func (s *Store) Users(ctx context.Context) authz.UserStore                 { return (*userStore)(s) }
func (s *Store) Organizations(ctx context.Context) authz.OrganizationStore { return (*orgStore)(s) }
func (s *Store) Teams(ctx context.Context) authz.TeamStore                 { return (*teamStore)(s) }
func (s *Store) Roles(ctx context.Context) authz.RoleStore                 { return (*roleStore)(s) }
func (s *Store) Permissions(ctx context.Context) authz.PermissionStore     { return (*permStore)(s) }
func (s *Store) Assignments(ctx context.Context) authz.AssignmentStore     { return (*assignStore)(s) }

// PermissionKeys mirrors the SQL resolver queries: the scope-matching
// membership role plus matching direct assignments.
func (s *Store) PermissionKeys(ctx context.Context, userID string, scope authz.Scope) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := map[string]struct{}{}
	addRole := func(roleID string) {
		for k := range s.rolePerms[roleID] {
			keys[k] = struct{}{}
		}
	}

	if orgID, ok := scope.OrganizationID(); ok {
		if m := s.orgMemberships[orgID][userID]; m != nil && m.Status == authz.StatusActive && m.RoleID != "" {
			addRole(m.RoleID)
		}
		for _, a := range s.assignments {
			if a.UserID == userID && a.OrganizationID == orgID && a.TeamID == "" {
				addRole(a.RoleID)
			}
		}
	} else if teamID, ok := scope.TeamID(); ok {
		if m := s.teamMembers[teamID][userID]; m != nil && m.Status == authz.StatusActive && m.RoleID != "" {
			addRole(m.RoleID)
		}
		for _, a := range s.assignments {
			if a.UserID == userID && a.TeamID == teamID {
				addRole(a.RoleID)
			}
		}
	} else {
		for _, a := range s.assignments {
			if a.UserID == userID && a.OrganizationID == "" && a.TeamID == "" {
				addRole(a.RoleID)
			}
		}
	}

	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Users ---------------------------------------------------------------

type userStore Store

func (s *userStore) Create(ctx context.Context, u *authz.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return authz.ErrConflict
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*authz.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*authz.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, authz.ErrNotFound
}

func (s *userStore) UpdateStatus(ctx context.Context, id, status string, emailVerifiedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return authz.ErrNotFound
	}
	u.Status = status
	if emailVerifiedAt != nil {
		u.EmailVerifiedAt = emailVerifiedAt
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *userStore) UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return authz.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.MustChangePassword = mustChange
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// Organizations -------------------------------------------------------

type orgStore Store

func (s *orgStore) Create(ctx context.Context, org *authz.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orgs {
		if existing.Slug == org.Slug {
			return authz.ErrConflict
		}
	}
	now := time.Now().UTC()
	org.CreatedAt, org.UpdatedAt = now, now
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *orgStore) Find(ctx context.Context, id string) (*authz.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *orgStore) FindBySlug(ctx context.Context, slug string) (*authz.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, org := range s.orgs {
		if org.Slug == slug {
			cp := *org
			return &cp, nil
		}
	}
	return nil, authz.ErrNotFound
}

func (s *orgStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[id]; !ok {
		return authz.ErrNotFound
	}
	delete(s.orgs, id)
	delete(s.orgMemberships, id)
	for roleID, role := range s.roles {
		if role.OrganizationID == id {
			delete(s.roles, roleID)
			delete(s.rolePerms, roleID)
		}
	}
	for teamID, team := range s.teams {
		if team.OrganizationID == id {
			delete(s.teams, teamID)
			delete(s.teamMembers, teamID)
		}
	}
	kept := s.assignments[:0]
	for _, a := range s.assignments {
		if a.OrganizationID != id {
			kept = append(kept, a)
		}
	}
	s.assignments = kept
	return nil
}

func (s *orgStore) UpsertMembership(ctx context.Context, m *authz.OrganizationMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.orgMemberships[m.OrganizationID]
	if !ok {
		byUser = map[string]*authz.OrganizationMembership{}
		s.orgMemberships[m.OrganizationID] = byUser
	}
	now := time.Now().UTC()
	if existing, ok := byUser[m.UserID]; ok {
		existing.Status = m.Status
		existing.IsDefault = m.IsDefault
		existing.RoleID = m.RoleID
		existing.UpdatedAt = now
		return nil
	}
	m.CreatedAt, m.UpdatedAt = now, now
	cp := *m
	byUser[m.UserID] = &cp
	return nil
}

func (s *orgStore) FindMembership(ctx context.Context, orgID, userID string) (*authz.OrganizationMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.orgMemberships[orgID][userID]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := *m
	if role, ok := s.roles[m.RoleID]; ok {
		cp.RoleKey = role.Key
	}
	return &cp, nil
}

func (s *orgStore) MembershipsForUser(ctx context.Context, userID string) ([]authz.OrganizationMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []authz.OrganizationMembership
	for _, byUser := range s.orgMemberships {
		if m, ok := byUser[userID]; ok {
			cp := *m
			if role, ok := s.roles[m.RoleID]; ok {
				cp.RoleKey = role.Key
			}
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrganizationID < out[j].OrganizationID })
	return out, nil
}

func (s *orgStore) ClearDefaultMemberships(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byUser := range s.orgMemberships {
		if m, ok := byUser[userID]; ok {
			m.IsDefault = false
		}
	}
	return nil
}

func (s *orgStore) SetDefaultMembership(ctx context.Context, orgID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byUser := range s.orgMemberships {
		if m, ok := byUser[userID]; ok {
			m.IsDefault = false
		}
	}
	m, ok := s.orgMemberships[orgID][userID]
	if !ok {
		return authz.ErrNotFound
	}
	m.IsDefault = true
	return nil
}

func (s *orgStore) CountMembershipsWithRole(ctx context.Context, roleID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, byUser := range s.orgMemberships {
		for _, m := range byUser {
			if m.RoleID == roleID {
				count++
			}
		}
	}
	return count, nil
}

// Teams ---------------------------------------------------------------

type teamStore Store

func (s *teamStore) Create(ctx context.Context, team *authz.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.teams {
		if existing.OrganizationID == team.OrganizationID && existing.Slug == team.Slug {
			return authz.ErrConflict
		}
	}
	now := time.Now().UTC()
	team.CreatedAt, team.UpdatedAt = now, now
	cp := *team
	s.teams[team.ID] = &cp
	return nil
}

func (s *teamStore) Find(ctx context.Context, id string) (*authz.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, ok := s.teams[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := *team
	return &cp, nil
}

func (s *teamStore) FindBySlug(ctx context.Context, orgID, slug string) (*authz.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, team := range s.teams {
		if team.OrganizationID == orgID && team.Slug == slug {
			cp := *team
			return &cp, nil
		}
	}
	return nil, authz.ErrNotFound
}

func (s *teamStore) ListByOrg(ctx context.Context, orgID string) ([]*authz.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*authz.Team
	for _, team := range s.teams {
		if team.OrganizationID == orgID {
			cp := *team
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *teamStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return authz.ErrNotFound
	}
	delete(s.teams, id)
	delete(s.teamMembers, id)
	return nil
}

func (s *teamStore) UpsertMember(ctx context.Context, m *authz.TeamMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.teamMembers[m.TeamID]
	if !ok {
		byUser = map[string]*authz.TeamMembership{}
		s.teamMembers[m.TeamID] = byUser
	}
	now := time.Now().UTC()
	if existing, ok := byUser[m.UserID]; ok {
		existing.Status = m.Status
		existing.RoleID = m.RoleID
		existing.UpdatedAt = now
		return nil
	}
	m.CreatedAt, m.UpdatedAt = now, now
	cp := *m
	byUser[m.UserID] = &cp
	return nil
}

func (s *teamStore) FindMember(ctx context.Context, teamID, userID string) (*authz.TeamMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.teamMembers[teamID][userID]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := *m
	if role, ok := s.roles[m.RoleID]; ok {
		cp.RoleKey = role.Key
	}
	return &cp, nil
}

func (s *teamStore) UpdateMember(ctx context.Context, teamID, userID string, upd authz.TeamMemberUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.teamMembers[teamID][userID]
	if !ok {
		return authz.ErrNotFound
	}
	if upd.RoleID != nil {
		m.RoleID = *upd.RoleID
	}
	if upd.IsManager != nil {
		m.IsManager = *upd.IsManager
	}
	if upd.Title != nil {
		m.Title = *upd.Title
	}
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *teamStore) RemoveMember(ctx context.Context, teamID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teamMembers[teamID][userID]; !ok {
		return authz.ErrNotFound
	}
	delete(s.teamMembers[teamID], userID)
	return nil
}

func (s *teamStore) CountMembersWithRole(ctx context.Context, roleID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, byUser := range s.teamMembers {
		for _, m := range byUser {
			if m.RoleID == roleID {
				count++
			}
		}
	}
	return count, nil
}

// Roles ---------------------------------------------------------------

type roleStore Store

func (s *roleStore) Create(ctx context.Context, role *authz.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.OrganizationID == role.OrganizationID && existing.Key == role.Key {
			return authz.ErrConflict
		}
	}
	now := time.Now().UTC()
	role.CreatedAt, role.UpdatedAt = now, now
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (s *roleStore) FindByKey(ctx context.Context, orgID, key string) (*authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.OrganizationID == orgID && role.Key == key {
			cp := *role
			return &cp, nil
		}
	}
	return nil, authz.ErrNotFound
}

func (s *roleStore) ListByOrg(ctx context.Context, orgID string) ([]*authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*authz.Role
	for _, role := range s.roles {
		if role.OrganizationID == orgID {
			cp := *role
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *roleStore) KeyExists(ctx context.Context, orgID, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.OrganizationID == orgID && role.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *roleStore) Update(ctx context.Context, id string, upd authz.RoleUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return authz.ErrNotFound
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	if upd.Scope != nil {
		role.Scope = *upd.Scope
	}
	role.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return authz.ErrNotFound
	}
	delete(s.roles, id)
	delete(s.rolePerms, id)
	return nil
}

func (s *roleStore) ClearDefault(ctx context.Context, orgID string, scope authz.RoleScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.OrganizationID == orgID && role.Scope == scope {
			role.IsDefault = false
		}
	}
	return nil
}

func (s *roleStore) SetDefault(ctx context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return authz.ErrNotFound
	}
	role.IsDefault = true
	return nil
}

func (s *roleStore) DefaultRole(ctx context.Context, orgID string, scope authz.RoleScope) (*authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.OrganizationID == orgID && role.Scope == scope && role.IsDefault {
			cp := *role
			return &cp, nil
		}
	}
	return nil, authz.ErrNotFound
}

// Permissions ---------------------------------------------------------

type permStore Store

func (s *permStore) Ensure(ctx context.Context, defs []authz.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range defs {
		if existing, ok := s.perms[def.Key]; ok {
			existing.Name = def.Name
			existing.Category = def.Category
			existing.Description = def.Description
			continue
		}
		s.perms[def.Key] = &authz.Permission{
			ID:          def.Key,
			Key:         def.Key,
			Name:        def.Name,
			Category:    def.Category,
			Description: def.Description,
			CreatedAt:   time.Now().UTC(),
		}
	}
	return nil
}

func (s *permStore) List(ctx context.Context) ([]authz.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]authz.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *permStore) SetForRole(ctx context.Context, roleID string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[string]struct{}{}
	for _, k := range keys {
		if _, ok := s.perms[k]; ok {
			set[k] = struct{}{}
		}
	}
	s.rolePerms[roleID] = set
	return nil
}

func (s *permStore) KeysForRole(ctx context.Context, roleID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rolePerms[roleID]))
	for k := range s.rolePerms[roleID] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Assignments ---------------------------------------------------------

type assignStore Store

func (s *assignStore) Grant(ctx context.Context, a authz.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments {
		if existing.UserID == a.UserID && existing.RoleID == a.RoleID &&
			existing.OrganizationID == a.OrganizationID && existing.TeamID == a.TeamID {
			return nil
		}
	}
	a.CreatedAt = time.Now().UTC()
	s.assignments = append(s.assignments, a)
	return nil
}

func (s *assignStore) Revoke(ctx context.Context, userID, roleID, orgID, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.assignments[:0]
	found := false
	for _, a := range s.assignments {
		if a.UserID == userID && a.RoleID == roleID && a.OrganizationID == orgID && a.TeamID == teamID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	s.assignments = kept
	if !found {
		return authz.ErrNotFound
	}
	return nil
}

func (s *assignStore) ListForUser(ctx context.Context, userID string) ([]authz.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []authz.Assignment
	for _, a := range s.assignments {
		if a.UserID == userID {
			cp := a
			if role, ok := s.roles[a.RoleID]; ok {
				cp.RoleKey = role.Key
			}
			out = append(out, cp)
		}
	}
	return out, nil
}

// Sessions ------------------------------------------------------------

func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return authz.ErrConflict
	}
	now := time.Now().UTC()
	sess.CreatedAt, sess.UpdatedAt = now, now
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) Find(ctx context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) RotateActive(ctx context.Context, id, secretHash string, expiresAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != session.StatusActive {
		return session.ErrNotActive
	}
	sess.SecretHash = secretHash
	sess.ExpiresAt = expiresAt
	sess.LastActiveAt = now
	sess.RevokedAt = nil
	sess.RevokedBy = ""
	sess.UpdatedAt = now
	return nil
}

func (s *Store) Revoke(ctx context.Context, id, revokedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.Status = session.StatusRevoked
	sess.RevokedAt = &at
	sess.RevokedBy = revokedBy
	sess.UpdatedAt = at
	return nil
}

func (s *Store) MarkExpired(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != session.StatusActive {
		return nil
	}
	sess.Status = session.StatusExpired
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastActiveAt = at
	}
	return nil
}

func (s *Store) ListForUser(ctx context.Context, userID string) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*session.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID, keepID, revokedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.ID != keepID && sess.Status == session.StatusActive {
			sess.Status = session.StatusRevoked
			sess.RevokedAt = &at
			sess.RevokedBy = revokedBy
			sess.UpdatedAt = at
		}
	}
	return nil
}

// Single-use tokens ---------------------------------------------------

// TokenStore exposes the usertoken contract; the methods live on a
// separate receiver because Create/Find/Delete collide with sessions.
type TokenStore struct{ s *Store }

// Tokens returns the usertoken view of the store.
func (s *Store) Tokens() *TokenStore { return &TokenStore{s: s} }

func (t *TokenStore) Create(ctx context.Context, tok *usertoken.Token) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tok.CreatedAt = time.Now().UTC()
	cp := *tok
	t.s.tokens[tok.ID] = &cp
	return nil
}

func (t *TokenStore) Find(ctx context.Context, id string) (*usertoken.Token, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tok, ok := t.s.tokens[id]
	if !ok {
		return nil, usertoken.ErrInvalid
	}
	cp := *tok
	return &cp, nil
}

func (t *TokenStore) Consume(ctx context.Context, id string, at time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tok, ok := t.s.tokens[id]
	if !ok || tok.ConsumedAt != nil {
		return usertoken.ErrInvalid
	}
	tok.ConsumedAt = &at
	return nil
}

func (t *TokenStore) Delete(ctx context.Context, id string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	delete(t.s.tokens, id)
	return nil
}
