package authz_test

import (
	"testing"

	"authd.dev/internal/authz"
)

func TestIsOwnerMembership(t *testing.T) {
	cases := []struct {
		name string
		m    *authz.OrganizationMembership
		want bool
	}{
		{"nil", nil, false},
		{"active owner", &authz.OrganizationMembership{Status: authz.StatusActive, RoleKey: authz.OwnerRoleKey}, true},
		{"suspended owner", &authz.OrganizationMembership{Status: authz.StatusSuspended, RoleKey: authz.OwnerRoleKey}, false},
		{"active member", &authz.OrganizationMembership{Status: authz.StatusActive, RoleKey: "member"}, false},
		{"no role", &authz.OrganizationMembership{Status: authz.StatusActive}, false},
	}
	for _, tc := range cases {
		if got := authz.IsOwnerMembership(tc.m); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsActiveTeamManager(t *testing.T) {
	cases := []struct {
		name string
		m    *authz.TeamMembership
		want bool
	}{
		{"nil", nil, false},
		{"active manager", &authz.TeamMembership{Status: authz.StatusActive, IsManager: true}, true},
		{"inactive manager", &authz.TeamMembership{Status: authz.StatusInactive, IsManager: true}, false},
		{"active non-manager", &authz.TeamMembership{Status: authz.StatusActive}, false},
	}
	for _, tc := range cases {
		if got := authz.IsActiveTeamManager(tc.m); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanManageTeamMembers(t *testing.T) {
	owner := &authz.OrganizationMembership{Status: authz.StatusActive, RoleKey: authz.OwnerRoleKey}
	member := &authz.OrganizationMembership{Status: authz.StatusActive, RoleKey: "member"}
	manager := &authz.TeamMembership{Status: authz.StatusActive, IsManager: true}
	plain := &authz.TeamMembership{Status: authz.StatusActive}

	// Owners pass without any team membership at all.
	if !authz.CanManageTeamMembers(owner, nil) {
		t.Fatalf("owner without team membership must manage")
	}
	if !authz.CanManageTeamMembers(member, manager) {
		t.Fatalf("active manager must manage")
	}
	if authz.CanManageTeamMembers(member, plain) {
		t.Fatalf("plain member must not manage")
	}
	if authz.CanManageTeamMembers(nil, nil) {
		t.Fatalf("nobody must not manage")
	}
	if !authz.CanCreateTeam(owner) || authz.CanCreateTeam(member) {
		t.Fatalf("only owners create teams")
	}
}
