package authz

import (
	"context"
	"errors"
	"strings"

	"authd.dev/internal/ids"
)

// CreateRoleInput describes a new custom role.
type CreateRoleInput struct {
	OrganizationID string
	Name           string
	Description    string
	Scope          RoleScope
	IsDefault      bool
	Permissions    []string
}

// CreateRoleResult carries the created role on success.
type CreateRoleResult struct {
	Result
	Role *Role
}

// CreateRole creates a custom role. Only owners may create roles. The role
// key is slugified from the name with numeric-suffix collision avoidance
// scoped to the organization; making the role default clears the flag from
// its scope siblings first, inside the same transaction.
func (s *Service) CreateRole(ctx context.Context, actorID string, in CreateRoleInput) CreateRoleResult {
	fields := map[string]string{}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		fields["name"] = "Name is required."
	}
	if in.Scope != RoleScopeOrganization && in.Scope != RoleScopeTeam {
		fields["scope"] = "Scope must be organization or team."
	}
	if strings.TrimSpace(in.OrganizationID) == "" {
		fields["organizationId"] = "Organization is required."
	}
	if len(fields) > 0 {
		return CreateRoleResult{Result: Invalid("Role could not be created.", fields)}
	}

	membership, err := s.store.Organizations(ctx).FindMembership(ctx, in.OrganizationID, actorID)
	if err != nil || !IsOwnerMembership(membership) {
		return CreateRoleResult{Result: Denied()}
	}

	role := &Role{
		ID:             ids.New(),
		OrganizationID: in.OrganizationID,
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		Scope:          in.Scope,
		IsDefault:      in.IsDefault,
	}
	err = s.store.WithinTx(ctx, func(tx Store) error {
		roles := tx.Roles(ctx)
		key, err := uniqueRoleKey(ctx, roles, in.OrganizationID, name)
		if err != nil {
			return err
		}
		role.Key = key
		if in.IsDefault {
			if err := roles.ClearDefault(ctx, in.OrganizationID, in.Scope); err != nil {
				return err
			}
		}
		if err := roles.Create(ctx, role); err != nil {
			return err
		}
		return tx.Permissions(ctx).SetForRole(ctx, role.ID, in.Permissions)
	})
	if err != nil {
		return CreateRoleResult{Result: Fail("Role could not be created.")}
	}
	return CreateRoleResult{Result: OK("Role created."), Role: role}
}

// UpdateRoleInput patches a role; nil fields stay untouched.
type UpdateRoleInput struct {
	RoleID      string
	Name        *string
	Description *string
	IsDefault   *bool
	Permissions []string
}

// UpdateRole edits a custom role. The owner role is immutable. The
// permission set, when provided, is replaced wholesale.
func (s *Service) UpdateRole(ctx context.Context, actorID string, in UpdateRoleInput) Result {
	if strings.TrimSpace(in.RoleID) == "" {
		return Invalid("Role could not be updated.", map[string]string{"roleId": "Role is required."})
	}
	role, err := s.store.Roles(ctx).Find(ctx, in.RoleID)
	if err != nil {
		return Denied()
	}
	membership, err := s.store.Organizations(ctx).FindMembership(ctx, role.OrganizationID, actorID)
	if err != nil || !IsOwnerMembership(membership) {
		return Denied()
	}
	if role.Key == OwnerRoleKey {
		return Fail("The owner role cannot be modified.")
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return Invalid("Role could not be updated.", map[string]string{"name": "Name is required."})
	}

	err = s.store.WithinTx(ctx, func(tx Store) error {
		roles := tx.Roles(ctx)
		upd := RoleUpdate{Description: in.Description}
		if in.Name != nil {
			trimmed := strings.TrimSpace(*in.Name)
			upd.Name = &trimmed
		}
		if err := roles.Update(ctx, role.ID, upd); err != nil {
			return err
		}
		if in.IsDefault != nil && *in.IsDefault && !role.IsDefault {
			if err := roles.ClearDefault(ctx, role.OrganizationID, role.Scope); err != nil {
				return err
			}
			if err := roles.SetDefault(ctx, role.ID); err != nil {
				return err
			}
		}
		if in.Permissions != nil {
			return tx.Permissions(ctx).SetForRole(ctx, role.ID, in.Permissions)
		}
		return nil
	})
	if err != nil {
		return Fail("Role could not be updated.")
	}
	return OK("Role updated.")
}

// DeleteRole deletes a custom role. Blocked for the owner role, for the
// scope's current default, and while any membership still references the
// role; callers must reassign or clear members first.
func (s *Service) DeleteRole(ctx context.Context, actorID, roleID string) Result {
	if strings.TrimSpace(roleID) == "" {
		return Invalid("Role could not be deleted.", map[string]string{"roleId": "Role is required."})
	}
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return Denied()
	}
	membership, err := s.store.Organizations(ctx).FindMembership(ctx, role.OrganizationID, actorID)
	if err != nil || !IsOwnerMembership(membership) {
		return Denied()
	}
	if role.Key == OwnerRoleKey {
		return Fail("The owner role cannot be deleted.")
	}
	if role.IsDefault {
		return Fail("The default role cannot be deleted. Choose another default first.")
	}

	var inUse int
	switch role.Scope {
	case RoleScopeTeam:
		inUse, err = s.store.Teams(ctx).CountMembersWithRole(ctx, role.ID)
	default:
		inUse, err = s.store.Organizations(ctx).CountMembershipsWithRole(ctx, role.ID)
	}
	if err != nil {
		return Fail("Role could not be deleted.")
	}
	if inUse > 0 {
		return Fail("This role is still assigned to members. Reassign them first.")
	}

	if err := s.store.Roles(ctx).Delete(ctx, role.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Denied()
		}
		return Fail("Role could not be deleted.")
	}
	return OK("Role deleted.")
}
