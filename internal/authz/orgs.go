package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"authd.dev/internal/ids"
)

// CreateOrganizationInput names a new organization.
type CreateOrganizationInput struct {
	Name        string
	Slug        string
	Description string
}

// CreateOrganizationResult carries the created organization on success.
type CreateOrganizationResult struct {
	Result
	Organization *Organization
}

// CreateOrganization creates the organization, provisions its canonical
// roles, grants the creator the owner role and marks the new membership as
// the creator's default organization. The whole sequence is one
// transaction: a reader never sees the organization without its owner role
// or a membership without its role.
func (s *Service) CreateOrganization(ctx context.Context, actorID string, in CreateOrganizationInput) CreateOrganizationResult {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return CreateOrganizationResult{Result: Invalid("Organization could not be created.", map[string]string{"name": "Name is required."})}
	}
	slug := Slugify(in.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return CreateOrganizationResult{Result: Invalid("Organization could not be created.", map[string]string{"slug": "Slug is required."})}
	}

	org := &Organization{
		ID:          ids.New(),
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   actorID,
	}
	err := s.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.Organizations(ctx).Create(ctx, org); err != nil {
			return err
		}
		if err := s.provisioner.EnsureWithin(ctx, tx, org.ID, false); err != nil {
			return err
		}
		owner, err := tx.Roles(ctx).FindByKey(ctx, org.ID, OwnerRoleKey)
		if err != nil {
			return fmt.Errorf("owner role missing after provisioning: %w", err)
		}
		orgs := tx.Organizations(ctx)
		if err := orgs.ClearDefaultMemberships(ctx, actorID); err != nil {
			return err
		}
		return orgs.UpsertMembership(ctx, &OrganizationMembership{
			OrganizationID: org.ID,
			UserID:         actorID,
			Status:         StatusActive,
			IsDefault:      true,
			RoleID:         owner.ID,
		})
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return CreateOrganizationResult{Result: Invalid("Organization could not be created.", map[string]string{"slug": "This slug is already taken."})}
		}
		return CreateOrganizationResult{Result: Fail("Organization could not be created.")}
	}
	return CreateOrganizationResult{Result: OK("Organization created."), Organization: org}
}

// DeleteOrganization deletes an organization. Only owners may delete;
// referential ownership cascades to roles, teams and memberships. If the
// actor belongs to another organization afterwards, that membership is
// promoted to default.
func (s *Service) DeleteOrganization(ctx context.Context, actorID, orgID string) Result {
	if strings.TrimSpace(orgID) == "" {
		return Invalid("Organization could not be deleted.", map[string]string{"organizationId": "Organization is required."})
	}
	membership, err := s.store.Organizations(ctx).FindMembership(ctx, orgID, actorID)
	if err != nil || !IsOwnerMembership(membership) {
		return Denied()
	}
	err = s.store.WithinTx(ctx, func(tx Store) error {
		orgs := tx.Organizations(ctx)
		if err := orgs.Delete(ctx, orgID); err != nil {
			return err
		}
		remaining, err := orgs.MembershipsForUser(ctx, actorID)
		if err != nil {
			return err
		}
		for _, m := range remaining {
			if m.OrganizationID == orgID {
				continue
			}
			return orgs.SetDefaultMembership(ctx, m.OrganizationID, actorID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Denied()
		}
		return Fail("Organization could not be deleted.")
	}
	return OK("Organization deleted.")
}
