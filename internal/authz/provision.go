package authz

import (
	"context"
	"errors"
	"fmt"

	"authd.dev/internal/ids"
)

// Provisioner installs the permission catalog and the canonical role set.
// Both operations are idempotent and safe to run on every authorization
// read; they only fill gaps unless a template refresh is forced.
type Provisioner struct {
	store    Store
	features FeatureConfig
}

// NewProvisioner constructs a provisioner for the configured feature set.
func NewProvisioner(store Store, features FeatureConfig) *Provisioner {
	return &Provisioner{store: store, features: features}
}

// EnsureCatalog upserts every permission definition by key, including the
// provider-derived keys. Never deletes stale keys.
func (p *Provisioner) EnsureCatalog(ctx context.Context) error {
	return p.store.Permissions(ctx).Ensure(ctx, Catalog(p.features))
}

// EnsureOrganizationAuthorization walks the ordered role templates for one
// organization. Missing roles are created with their template permissions.
// With applyTemplate=false (the common path on every authorization read)
// existing roles are left untouched apart from restoring a missing default
// flag; with applyTemplate=true existing roles are refreshed to the
// template, including their permission sets.
func (p *Provisioner) EnsureOrganizationAuthorization(ctx context.Context, orgID string, applyTemplate bool) error {
	if orgID == "" {
		return fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	return p.store.WithinTx(ctx, func(tx Store) error {
		return p.EnsureWithin(ctx, tx, orgID, applyTemplate)
	})
}

// EnsureWithin is EnsureOrganizationAuthorization running inside an already
// open transaction, for callers that provision as one step of a larger
// atomic sequence (organization create).
func (p *Provisioner) EnsureWithin(ctx context.Context, tx Store, orgID string, applyTemplate bool) error {
	roles := tx.Roles(ctx)
	perms := tx.Permissions(ctx)

	for _, tpl := range RoleTemplates(p.features) {
		role, err := roles.FindByKey(ctx, orgID, tpl.Key)
		switch {
		case errors.Is(err, ErrNotFound):
			role = &Role{
				ID:             ids.New(),
				OrganizationID: orgID,
				Key:            tpl.Key,
				Name:           tpl.Name,
				Description:    tpl.Description,
				Scope:          tpl.Scope,
			}
			if err := roles.Create(ctx, role); err != nil {
				return fmt.Errorf("provision role %s: %w", tpl.Key, err)
			}
			if err := perms.SetForRole(ctx, role.ID, tpl.Permissions); err != nil {
				return fmt.Errorf("install permissions for %s: %w", tpl.Key, err)
			}
			if tpl.IsDefault {
				if err := p.ensureDefault(ctx, roles, orgID, role, applyTemplate); err != nil {
					return err
				}
			}
		case err != nil:
			return err
		default:
			if applyTemplate {
				name, desc, scope := tpl.Name, tpl.Description, tpl.Scope
				if err := roles.Update(ctx, role.ID, RoleUpdate{Name: &name, Description: &desc, Scope: &scope}); err != nil {
					return fmt.Errorf("refresh role %s: %w", tpl.Key, err)
				}
				if err := perms.SetForRole(ctx, role.ID, tpl.Permissions); err != nil {
					return fmt.Errorf("sync permissions for %s: %w", tpl.Key, err)
				}
			}
			if tpl.IsDefault {
				if err := p.ensureDefault(ctx, roles, orgID, role, applyTemplate); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ensureDefault restores the scope's default role. Setting a default always
// clears every sibling first, inside the surrounding transaction, so the
// single-default invariant holds even mid-update. Without a forced refresh
// an administrator's explicit default choice is left alone.
func (p *Provisioner) ensureDefault(ctx context.Context, roles RoleStore, orgID string, role *Role, force bool) error {
	current, err := roles.DefaultRole(ctx, orgID, role.Scope)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if current != nil && !force {
		return nil
	}
	if current != nil && current.ID == role.ID {
		return nil
	}
	if err := roles.ClearDefault(ctx, orgID, role.Scope); err != nil {
		return err
	}
	return roles.SetDefault(ctx, role.ID)
}
