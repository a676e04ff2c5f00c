package authz

import (
	"context"
	"sort"
	"sync"

	"authd.dev/internal/obs"
)

// PermissionSet is a materialized set of permission keys.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from keys, dropping duplicates.
func NewPermissionSet(keys ...string) PermissionSet {
	set := make(PermissionSet, len(keys))
	for _, k := range keys {
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// Has reports membership of a single key.
func (s PermissionSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Keys returns the sorted key list.
func (s PermissionSet) Keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Permissions implements PermissionSource for an already-materialized set.
func (s PermissionSet) Permissions(context.Context) (PermissionSet, error) {
	return s, nil
}

// PermissionSource yields a permission set that may or may not have been
// computed yet. HasPermission accepts either a PermissionSet or a Future so
// callers never branch on which they hold.
type PermissionSource interface {
	Permissions(ctx context.Context) (PermissionSet, error)
}

// Future is a permission set still being computed. The computation starts
// immediately and is awaited on first use.
type Future struct {
	done chan struct{}
	set  PermissionSet
	err  error
}

// Go starts computing a permission set in the background.
func Go(ctx context.Context, fn func(context.Context) (PermissionSet, error)) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.set, f.err = fn(ctx)
	}()
	return f
}

// Permissions blocks until the computation finishes or ctx is done.
func (f *Future) Permissions(ctx context.Context) (PermissionSet, error) {
	select {
	case <-f.done:
		return f.set, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HasPermission tests a key against a materialized or pending set.
func HasPermission(ctx context.Context, src PermissionSource, key string) (bool, error) {
	if src == nil {
		return false, nil
	}
	set, err := src.Permissions(ctx)
	if err != nil {
		return false, err
	}
	if set.Has(key) {
		obs.PermissionCheck("granted")
		return true, nil
	}
	obs.PermissionCheck("denied")
	return false, nil
}

// Resolver computes effective permission sets. It holds no cross-request
// state: permission edits must be visible on the next request, so every
// resolve hits the store unless a request-scoped memo is used.
type Resolver struct {
	store       Store
	features    FeatureConfig
	provisioner *Provisioner
}

// NewResolver constructs a resolver. The provisioner self-heals missing
// default roles whenever organization-scoped authorization is read.
func NewResolver(store Store, features FeatureConfig, provisioner *Provisioner) *Resolver {
	return &Resolver{store: store, features: features, provisioner: provisioner}
}

// GetPermissions unions permission keys from the scope-matching membership
// role and every matching direct assignment.
func (r *Resolver) GetPermissions(ctx context.Context, userID string, scope Scope) (PermissionSet, error) {
	if orgID, ok := scope.OrganizationID(); ok && r.provisioner != nil {
		if err := r.provisioner.EnsureOrganizationAuthorization(ctx, orgID, false); err != nil {
			return nil, err
		}
	}
	keys, err := r.store.PermissionKeys(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	return NewPermissionSet(keys...), nil
}

// Memo caches permission sets for the lifetime of one request. It is not
// safe for cross-request reuse; staleness there would be a security defect.
type Memo struct {
	resolver *Resolver

	mu   sync.Mutex
	sets map[string]PermissionSet
}

// ForRequest returns a request-scoped memoizing view of the resolver.
func (r *Resolver) ForRequest() *Memo {
	return &Memo{resolver: r, sets: make(map[string]PermissionSet)}
}

// GetPermissions resolves through the memo, computing each (user, scope)
// pair at most once.
func (m *Memo) GetPermissions(ctx context.Context, userID string, scope Scope) (PermissionSet, error) {
	key := userID + "|" + scope.String()
	m.mu.Lock()
	if set, ok := m.sets[key]; ok {
		m.mu.Unlock()
		return set, nil
	}
	m.mu.Unlock()

	set, err := m.resolver.GetPermissions(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sets[key] = set
	m.mu.Unlock()
	return set, nil
}

// ResolvePrimaryRole picks the key of the first assignment carrying a role
// key. Users without any keyed assignment report FallbackRoleKey.
func ResolvePrimaryRole(assignments []Assignment) string {
	for _, a := range assignments {
		if a.RoleKey != "" {
			return a.RoleKey
		}
	}
	return FallbackRoleKey
}
