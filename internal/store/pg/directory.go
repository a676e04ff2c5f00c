package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"authd.dev/internal/authz"
)

type userStore struct{ q querier }

func (s *userStore) Create(ctx context.Context, u *authz.User) error {
	_, err := s.q.ExecContext(ctx, `
		insert into users(id, email, display_name, status, password_hash, must_change_password, email_verified_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, u.ID, strings.ToLower(u.Email), u.DisplayName, u.Status, nullStr(u.PasswordHash), u.MustChangePassword, u.EmailVerifiedAt)
	return mapErr(err)
}

func (s *userStore) Find(ctx context.Context, id string) (*authz.User, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		select id, email, display_name, status, password_hash, must_change_password, email_verified_at, created_at, updated_at
		from users where id = $1
	`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*authz.User, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		select id, email, display_name, status, password_hash, must_change_password, email_verified_at, created_at, updated_at
		from users where email = $1
	`, strings.ToLower(strings.TrimSpace(email))))
}

func (s *userStore) scanOne(row *sql.Row) (*authz.User, error) {
	var u authz.User
	var hash sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Status, &hash, &u.MustChangePassword, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.PasswordHash = fromNull(hash)
	return &u, nil
}

func (s *userStore) UpdateStatus(ctx context.Context, id, status string, emailVerifiedAt *time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		update users
		set status = $2, email_verified_at = coalesce($3, email_verified_at), updated_at = now()
		where id = $1
	`, id, status, emailVerifiedAt)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *userStore) UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool) error {
	res, err := s.q.ExecContext(ctx, `
		update users set password_hash = $2, must_change_password = $3, updated_at = now() where id = $1
	`, id, passwordHash, mustChange)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

type orgStore struct{ q querier }

func (s *orgStore) Create(ctx context.Context, org *authz.Organization) error {
	_, err := s.q.ExecContext(ctx, `
		insert into organizations(id, name, slug, description, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, now(), now())
	`, org.ID, org.Name, org.Slug, org.Description, nullStr(org.CreatedBy))
	return mapErr(err)
}

func (s *orgStore) Find(ctx context.Context, id string) (*authz.Organization, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		select id, name, slug, description, created_by, created_at, updated_at
		from organizations where id = $1
	`, id))
}

func (s *orgStore) FindBySlug(ctx context.Context, slug string) (*authz.Organization, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		select id, name, slug, description, created_by, created_at, updated_at
		from organizations where slug = $1
	`, slug))
}

func (s *orgStore) scanOne(row *sql.Row) (*authz.Organization, error) {
	var org authz.Organization
	var createdBy sql.NullString
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.Description, &createdBy, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	org.CreatedBy = fromNull(createdBy)
	return &org, nil
}

func (s *orgStore) Delete(ctx context.Context, id string) error {
	// Memberships, teams, roles and assignments cascade at the schema level.
	res, err := s.q.ExecContext(ctx, `delete from organizations where id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *orgStore) UpsertMembership(ctx context.Context, m *authz.OrganizationMembership) error {
	_, err := s.q.ExecContext(ctx, `
		insert into organization_memberships(organization_id, user_id, status, is_default, role_id, invited_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, now(), now())
		on conflict (organization_id, user_id) do update
		set status = excluded.status, is_default = excluded.is_default, role_id = excluded.role_id, updated_at = now()
	`, m.OrganizationID, m.UserID, m.Status, m.IsDefault, nullStr(m.RoleID), nullStr(m.InvitedBy))
	return mapErr(err)
}

func (s *orgStore) FindMembership(ctx context.Context, orgID, userID string) (*authz.OrganizationMembership, error) {
	var m authz.OrganizationMembership
	var roleID, roleKey, invitedBy sql.NullString
	err := s.q.QueryRowContext(ctx, `
		select m.organization_id, m.user_id, m.status, m.is_default, m.role_id, r.key, m.invited_by, m.created_at, m.updated_at
		from organization_memberships m
		left join roles r on r.id = m.role_id
		where m.organization_id = $1 and m.user_id = $2
	`, orgID, userID).Scan(&m.OrganizationID, &m.UserID, &m.Status, &m.IsDefault, &roleID, &roleKey, &invitedBy, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.RoleID, m.RoleKey, m.InvitedBy = fromNull(roleID), fromNull(roleKey), fromNull(invitedBy)
	return &m, nil
}

func (s *orgStore) MembershipsForUser(ctx context.Context, userID string) ([]authz.OrganizationMembership, error) {
	rows, err := s.q.QueryContext(ctx, `
		select m.organization_id, m.user_id, m.status, m.is_default, m.role_id, r.key, m.invited_by, m.created_at, m.updated_at
		from organization_memberships m
		left join roles r on r.id = m.role_id
		where m.user_id = $1
		order by m.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authz.OrganizationMembership
	for rows.Next() {
		var m authz.OrganizationMembership
		var roleID, roleKey, invitedBy sql.NullString
		if err := rows.Scan(&m.OrganizationID, &m.UserID, &m.Status, &m.IsDefault, &roleID, &roleKey, &invitedBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.RoleID, m.RoleKey, m.InvitedBy = fromNull(roleID), fromNull(roleKey), fromNull(invitedBy)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *orgStore) ClearDefaultMemberships(ctx context.Context, userID string) error {
	_, err := s.q.ExecContext(ctx, `
		update organization_memberships set is_default = false, updated_at = now()
		where user_id = $1 and is_default
	`, userID)
	return mapErr(err)
}

func (s *orgStore) SetDefaultMembership(ctx context.Context, orgID, userID string) error {
	if err := s.ClearDefaultMemberships(ctx, userID); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
		update organization_memberships set is_default = true, updated_at = now()
		where organization_id = $1 and user_id = $2
	`, orgID, userID)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *orgStore) CountMembershipsWithRole(ctx context.Context, roleID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		select count(*) from organization_memberships where role_id = $1
	`, roleID).Scan(&n)
	return n, err
}

type teamStore struct{ q querier }

func (s *teamStore) Create(ctx context.Context, team *authz.Team) error {
	_, err := s.q.ExecContext(ctx, `
		insert into teams(id, organization_id, parent_id, name, slug, description, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, now(), now())
	`, team.ID, team.OrganizationID, nullStr(team.ParentID), team.Name, team.Slug, team.Description)
	return mapErr(err)
}

func (s *teamStore) Find(ctx context.Context, id string) (*authz.Team, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		select id, organization_id, parent_id, name, slug, description, created_at, updated_at
		from teams where id = $1
	`, id))
}

func (s *teamStore) FindBySlug(ctx context.Context, orgID, slug string) (*authz.Team, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		select id, organization_id, parent_id, name, slug, description, created_at, updated_at
		from teams where organization_id = $1 and slug = $2
	`, orgID, slug))
}

func (s *teamStore) scanOne(row *sql.Row) (*authz.Team, error) {
	var t authz.Team
	var parent sql.NullString
	err := row.Scan(&t.ID, &t.OrganizationID, &parent, &t.Name, &t.Slug, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.ParentID = fromNull(parent)
	return &t, nil
}

func (s *teamStore) ListByOrg(ctx context.Context, orgID string) ([]*authz.Team, error) {
	rows, err := s.q.QueryContext(ctx, `
		select id, organization_id, parent_id, name, slug, description, created_at, updated_at
		from teams where organization_id = $1 order by slug
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*authz.Team
	for rows.Next() {
		var t authz.Team
		var parent sql.NullString
		if err := rows.Scan(&t.ID, &t.OrganizationID, &parent, &t.Name, &t.Slug, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.ParentID = fromNull(parent)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *teamStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from teams where id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *teamStore) UpsertMember(ctx context.Context, m *authz.TeamMembership) error {
	_, err := s.q.ExecContext(ctx, `
		insert into team_memberships(team_id, user_id, status, is_manager, role_id, title, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, now(), now())
		on conflict (team_id, user_id) do update
		set status = excluded.status, role_id = excluded.role_id, updated_at = now()
	`, m.TeamID, m.UserID, m.Status, m.IsManager, nullStr(m.RoleID), m.Title)
	return mapErr(err)
}

func (s *teamStore) FindMember(ctx context.Context, teamID, userID string) (*authz.TeamMembership, error) {
	var m authz.TeamMembership
	var roleID, roleKey sql.NullString
	err := s.q.QueryRowContext(ctx, `
		select m.team_id, m.user_id, m.status, m.is_manager, m.role_id, r.key, m.title, m.created_at, m.updated_at
		from team_memberships m
		left join roles r on r.id = m.role_id
		where m.team_id = $1 and m.user_id = $2
	`, teamID, userID).Scan(&m.TeamID, &m.UserID, &m.Status, &m.IsManager, &roleID, &roleKey, &m.Title, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.RoleID, m.RoleKey = fromNull(roleID), fromNull(roleKey)
	return &m, nil
}

func (s *teamStore) UpdateMember(ctx context.Context, teamID, userID string, upd authz.TeamMemberUpdate) error {
	// An empty role patch clears the column to NULL; coalesce cannot
	// express that, so the role carries an explicit set flag.
	setRole := upd.RoleID != nil
	var roleID sql.NullString
	if setRole {
		roleID = nullStr(*upd.RoleID)
	}
	res, err := s.q.ExecContext(ctx, `
		update team_memberships
		set role_id = case when $3 then $4 else role_id end,
		    is_manager = coalesce($5, is_manager),
		    title = coalesce($6, title),
		    updated_at = now()
		where team_id = $1 and user_id = $2
	`, teamID, userID, setRole, roleID, upd.IsManager, upd.Title)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *teamStore) RemoveMember(ctx context.Context, teamID, userID string) error {
	res, err := s.q.ExecContext(ctx, `
		delete from team_memberships where team_id = $1 and user_id = $2
	`, teamID, userID)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *teamStore) CountMembersWithRole(ctx context.Context, roleID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		select count(*) from team_memberships where role_id = $1
	`, roleID).Scan(&n)
	return n, err
}

// requireRow converts zero-row updates and deletes into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authz.ErrNotFound
	}
	return nil
}
