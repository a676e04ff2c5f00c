package pg

import (
	"context"
	"database/sql"
	"errors"

	"authd.dev/internal/authz"
)

type roleStore struct{ q querier }

func (s *roleStore) Create(ctx context.Context, role *authz.Role) error {
	_, err := s.q.ExecContext(ctx, `
		insert into roles(id, organization_id, key, name, description, scope, is_default, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, role.ID, nullStr(role.OrganizationID), role.Key, role.Name, role.Description, string(role.Scope), role.IsDefault)
	return mapErr(err)
}

func (s *roleStore) Find(ctx context.Context, id string) (*authz.Role, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		select id, organization_id, key, name, description, scope, is_default, created_at, updated_at
		from roles where id = $1
	`, id))
}

func (s *roleStore) FindByKey(ctx context.Context, orgID, key string) (*authz.Role, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		select id, organization_id, key, name, description, scope, is_default, created_at, updated_at
		from roles where organization_id = $1 and key = $2
	`, orgID, key))
}

func (s *roleStore) scanOne(row *sql.Row) (*authz.Role, error) {
	var r authz.Role
	var orgID sql.NullString
	var scope string
	err := row.Scan(&r.ID, &orgID, &r.Key, &r.Name, &r.Description, &scope, &r.IsDefault, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.OrganizationID = fromNull(orgID)
	r.Scope = authz.RoleScope(scope)
	return &r, nil
}

func (s *roleStore) ListByOrg(ctx context.Context, orgID string) ([]*authz.Role, error) {
	rows, err := s.q.QueryContext(ctx, `
		select id, organization_id, key, name, description, scope, is_default, created_at, updated_at
		from roles where organization_id = $1 order by key
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*authz.Role
	for rows.Next() {
		var r authz.Role
		var orgRef sql.NullString
		var scope string
		if err := rows.Scan(&r.ID, &orgRef, &r.Key, &r.Name, &r.Description, &scope, &r.IsDefault, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.OrganizationID = fromNull(orgRef)
		r.Scope = authz.RoleScope(scope)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *roleStore) KeyExists(ctx context.Context, orgID, key string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `
		select exists(select 1 from roles where organization_id = $1 and key = $2)
	`, orgID, key).Scan(&exists)
	return exists, err
}

func (s *roleStore) Update(ctx context.Context, id string, upd authz.RoleUpdate) error {
	res, err := s.q.ExecContext(ctx, `
		update roles
		set name = coalesce($2, name),
		    description = coalesce($3, description),
		    scope = coalesce($4, scope),
		    updated_at = now()
		where id = $1
	`, id, upd.Name, upd.Description, scopePatch(upd.Scope))
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func scopePatch(scope *authz.RoleScope) any {
	if scope == nil {
		return nil
	}
	return string(*scope)
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *roleStore) ClearDefault(ctx context.Context, orgID string, scope authz.RoleScope) error {
	_, err := s.q.ExecContext(ctx, `
		update roles set is_default = false, updated_at = now()
		where organization_id = $1 and scope = $2 and is_default
	`, orgID, string(scope))
	return mapErr(err)
}

func (s *roleStore) SetDefault(ctx context.Context, roleID string) error {
	res, err := s.q.ExecContext(ctx, `
		update roles set is_default = true, updated_at = now() where id = $1
	`, roleID)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *roleStore) DefaultRole(ctx context.Context, orgID string, scope authz.RoleScope) (*authz.Role, error) {
	return s.scanOne(s.q.QueryRowContext(ctx, `
		select id, organization_id, key, name, description, scope, is_default, created_at, updated_at
		from roles where organization_id = $1 and scope = $2 and is_default
	`, orgID, string(scope)))
}

type permStore struct{ q querier }

func (s *permStore) Ensure(ctx context.Context, defs []authz.Definition) error {
	for _, def := range defs {
		if _, err := s.q.ExecContext(ctx, `
			insert into permissions(id, key, name, category, description, created_at)
			values ($1, $1, $2, $3, $4, now())
			on conflict (key) do update
			set name = excluded.name, category = excluded.category, description = excluded.description
		`, def.Key, def.Name, def.Category, def.Description); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (s *permStore) List(ctx context.Context) ([]authz.Permission, error) {
	rows, err := s.q.QueryContext(ctx, `
		select id, key, name, category, description, created_at from permissions order by key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authz.Permission
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.Name, &p.Category, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetForRole replaces the binding wholesale. Callers run it inside a
// transaction so readers never see the emptied intermediate state.
func (s *permStore) SetForRole(ctx context.Context, roleID string, keys []string) error {
	if _, err := s.q.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return mapErr(err)
	}
	for _, key := range keys {
		if _, err := s.q.ExecContext(ctx, `
			insert into role_permissions(role_id, permission_key) values ($1, $2)
			on conflict do nothing
		`, roleID, key); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (s *permStore) KeysForRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		select permission_key from role_permissions where role_id = $1 order by permission_key
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

type assignStore struct{ q querier }

func (s *assignStore) Grant(ctx context.Context, a authz.Assignment) error {
	_, err := s.q.ExecContext(ctx, `
		insert into user_role_assignments(user_id, role_id, organization_id, team_id, created_at)
		values ($1, $2, $3, $4, now())
		on conflict do nothing
	`, a.UserID, a.RoleID, nullStr(a.OrganizationID), nullStr(a.TeamID))
	return mapErr(err)
}

func (s *assignStore) Revoke(ctx context.Context, userID, roleID, orgID, teamID string) error {
	res, err := s.q.ExecContext(ctx, `
		delete from user_role_assignments
		where user_id = $1 and role_id = $2
		  and organization_id is not distinct from $3
		  and team_id is not distinct from $4
	`, userID, roleID, nullStr(orgID), nullStr(teamID))
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (s *assignStore) ListForUser(ctx context.Context, userID string) ([]authz.Assignment, error) {
	rows, err := s.q.QueryContext(ctx, `
		select a.user_id, a.role_id, r.key, a.organization_id, a.team_id, a.created_at
		from user_role_assignments a
		join roles r on r.id = a.role_id
		where a.user_id = $1
		order by a.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []authz.Assignment
	for rows.Next() {
		var a authz.Assignment
		var orgID, teamID sql.NullString
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.RoleKey, &orgID, &teamID, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.OrganizationID, a.TeamID = fromNull(orgID), fromNull(teamID)
		out = append(out, a)
	}
	return out, rows.Err()
}

// PermissionKeys unions the scope-matching membership role's permissions
// with those of every direct assignment in the same scope. Scope variants
// map onto the nullable organization and team reference columns.
func (s *Store) PermissionKeys(ctx context.Context, userID string, scope authz.Scope) ([]string, error) {
	var rows *sql.Rows
	var err error
	if orgID, ok := scope.OrganizationID(); ok {
		rows, err = s.q.QueryContext(ctx, `
			select distinct rp.permission_key
			from role_permissions rp
			where rp.role_id in (
				select m.role_id from organization_memberships m
				where m.organization_id = $1 and m.user_id = $2 and m.status = 'active' and m.role_id is not null
				union
				select a.role_id from user_role_assignments a
				where a.user_id = $2 and a.organization_id = $1 and a.team_id is null
			)
			order by rp.permission_key
		`, orgID, userID)
	} else if teamID, ok := scope.TeamID(); ok {
		rows, err = s.q.QueryContext(ctx, `
			select distinct rp.permission_key
			from role_permissions rp
			where rp.role_id in (
				select m.role_id from team_memberships m
				where m.team_id = $1 and m.user_id = $2 and m.status = 'active' and m.role_id is not null
				union
				select a.role_id from user_role_assignments a
				where a.user_id = $2 and a.team_id = $1
			)
			order by rp.permission_key
		`, teamID, userID)
	} else {
		rows, err = s.q.QueryContext(ctx, `
			select distinct rp.permission_key
			from role_permissions rp
			where rp.role_id in (
				select a.role_id from user_role_assignments a
				where a.user_id = $1 and a.organization_id is null and a.team_id is null
			)
			order by rp.permission_key
		`, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}
