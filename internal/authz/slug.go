package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Slugify lowers a display name into a stable machine key: lower-case
// alphanumerics with single dashes.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// uniqueRoleKey slugifies a role name and, on collision within the
// organization, appends the first free numeric suffix.
func uniqueRoleKey(ctx context.Context, roles RoleStore, orgID, name string) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = "role"
	}
	key := base
	for i := 2; ; i++ {
		exists, err := roles.KeyExists(ctx, orgID, key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
		key = fmt.Sprintf("%s-%d", base, i)
	}
}

// uniqueTeamSlug works like uniqueRoleKey for team slugs, unique per
// organization.
func uniqueTeamSlug(ctx context.Context, teams TeamStore, orgID, name string) (string, error) {
	base := Slugify(name)
	if base == "" {
		base = "team"
	}
	slug := base
	for i := 2; ; i++ {
		_, err := teams.FindBySlug(ctx, orgID, slug)
		if errors.Is(err, ErrNotFound) {
			return slug, nil
		}
		if err != nil {
			return "", err
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
