package authz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"authd.dev/internal/authz"
	"authd.dev/internal/store/memory"
)

func newProvisioned(t *testing.T, features authz.FeatureConfig) (*memory.Store, *authz.Provisioner) {
	t.Helper()
	store := memory.New()
	p := authz.NewProvisioner(store, features)
	require.NoError(t, p.EnsureCatalog(context.Background()))
	return store, p
}

func TestEnsureOrganizationAuthorizationInstallsTemplates(t *testing.T) {
	ctx := context.Background()
	features := authz.FeatureConfig{Providers: []string{"google"}}
	store, p := newProvisioned(t, features)

	org := &authz.Organization{ID: "org1", Name: "Acme", Slug: "acme"}
	require.NoError(t, store.Organizations(ctx).Create(ctx, org))
	require.NoError(t, p.EnsureOrganizationAuthorization(ctx, org.ID, false))

	roles, err := store.Roles(ctx).ListByOrg(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, roles, len(authz.RoleTemplates(features)))

	owner, err := store.Roles(ctx).FindByKey(ctx, org.ID, authz.OwnerRoleKey)
	require.NoError(t, err)
	keys, err := store.Permissions(ctx).KeysForRole(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, keys, len(authz.Catalog(features)))
	require.Contains(t, keys, "auth:provider:google")

	// Re-running is a no-op, not a duplicate install.
	require.NoError(t, p.EnsureOrganizationAuthorization(ctx, org.ID, false))
	roles, err = store.Roles(ctx).ListByOrg(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, roles, len(authz.RoleTemplates(features)))
}

func TestEnsureOrganizationAuthorizationSingleDefault(t *testing.T) {
	ctx := context.Background()
	store, p := newProvisioned(t, authz.FeatureConfig{})
	require.NoError(t, store.Organizations(ctx).Create(ctx, &authz.Organization{ID: "org1", Name: "Acme", Slug: "acme"}))
	require.NoError(t, p.EnsureOrganizationAuthorization(ctx, "org1", false))

	for _, scope := range []authz.RoleScope{authz.RoleScopeOrganization, authz.RoleScopeTeam} {
		roles, err := store.Roles(ctx).ListByOrg(ctx, "org1")
		require.NoError(t, err)
		defaults := 0
		for _, r := range roles {
			if r.Scope == scope && r.IsDefault {
				defaults++
			}
		}
		require.Equal(t, 1, defaults, "scope %s", scope)
	}
}

func TestEnsureKeepsAdminChosenDefault(t *testing.T) {
	ctx := context.Background()
	store, p := newProvisioned(t, authz.FeatureConfig{})
	require.NoError(t, store.Organizations(ctx).Create(ctx, &authz.Organization{ID: "org1", Name: "Acme", Slug: "acme"}))
	require.NoError(t, p.EnsureOrganizationAuthorization(ctx, "org1", false))

	// An administrator promotes a custom role to default.
	custom := &authz.Role{ID: "r-custom", OrganizationID: "org1", Key: "staff", Name: "Staff", Scope: authz.RoleScopeOrganization}
	require.NoError(t, store.Roles(ctx).Create(ctx, custom))
	require.NoError(t, store.Roles(ctx).ClearDefault(ctx, "org1", authz.RoleScopeOrganization))
	require.NoError(t, store.Roles(ctx).SetDefault(ctx, custom.ID))

	// Gap-fill provisioning leaves the choice alone.
	require.NoError(t, p.EnsureOrganizationAuthorization(ctx, "org1", false))
	def, err := store.Roles(ctx).DefaultRole(ctx, "org1", authz.RoleScopeOrganization)
	require.NoError(t, err)
	require.Equal(t, custom.ID, def.ID)

	// A forced template refresh restores the canonical default.
	require.NoError(t, p.EnsureOrganizationAuthorization(ctx, "org1", true))
	def, err = store.Roles(ctx).DefaultRole(ctx, "org1", authz.RoleScopeOrganization)
	require.NoError(t, err)
	require.Equal(t, "member", def.Key)
}

func TestForcedRefreshResyncsPermissions(t *testing.T) {
	ctx := context.Background()
	features := authz.FeatureConfig{}
	store, p := newProvisioned(t, features)
	require.NoError(t, store.Organizations(ctx).Create(ctx, &authz.Organization{ID: "org1", Name: "Acme", Slug: "acme"}))
	require.NoError(t, p.EnsureOrganizationAuthorization(ctx, "org1", false))

	admin, err := store.Roles(ctx).FindByKey(ctx, "org1", "admin")
	require.NoError(t, err)
	require.NoError(t, store.Permissions(ctx).SetForRole(ctx, admin.ID, []string{authz.PermOrgUpdate}))

	// Gap-fill keeps the drifted set; the forced refresh restores it.
	require.NoError(t, p.EnsureOrganizationAuthorization(ctx, "org1", false))
	keys, err := store.Permissions(ctx).KeysForRole(ctx, admin.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	require.NoError(t, p.EnsureOrganizationAuthorization(ctx, "org1", true))
	keys, err = store.Permissions(ctx).KeysForRole(ctx, admin.ID)
	require.NoError(t, err)
	require.Greater(t, len(keys), 1)
	require.Contains(t, keys, authz.PermSessionRevoke)
}
