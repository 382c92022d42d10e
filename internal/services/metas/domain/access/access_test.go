package access

import (
	"errors"
	"testing"
	"time"
)

func TestParseRoleAcceptsAliases(t *testing.T) {
	tests := []struct {
		raw  string
		want Role
	}{
		{"admin", RoleAdmin},
		{" Manager ", RoleLauncher},
		{"lancamento", RoleLauncher},
		{"visualizacao", RoleViewer},
		{"viewer", RoleViewer},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("parse %q = %q, want %q", tt.raw, got, tt.want)
		}
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Fatal("expected unknown role error")
	}
}

func TestActorValidate(t *testing.T) {
	if err := (Actor{UserID: "u1", Role: RoleViewer}).Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := (Actor{Role: RoleAdmin}).Validate(); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if err := (Actor{UserID: "u1", Role: "root"}).Validate(); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for unknown role, got %v", err)
	}
}

func TestCreateGrantRequiresExactlyOneTarget(t *testing.T) {
	admin := Actor{UserID: "admin-1", Role: RoleAdmin}
	now := func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	ids := func() (string, error) { return "grant-1", nil }

	tests := []struct {
		name  string
		input CreateGrantInput
		want  error
	}{
		{name: "missing user", input: CreateGrantInput{SectorID: "s1"}, want: ErrGrantUserMissing},
		{name: "no target", input: CreateGrantInput{UserID: "u1"}, want: ErrGrantTargetMissing},
		{name: "both targets", input: CreateGrantInput{UserID: "u1", SectorID: "s1", TeamID: "t1"}, want: ErrGrantTargetMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CreateGrant(tt.input, admin, now, ids); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	grant, err := CreateGrant(CreateGrantInput{UserID: "u1", TeamID: "t1"}, admin, now, ids)
	if err != nil {
		t.Fatalf("create grant: %v", err)
	}
	if grant.ID != "grant-1" || !grant.Active || grant.GrantedBy != "admin-1" || grant.Scope() != ScopeTeam {
		t.Fatalf("unexpected grant: %+v", grant)
	}
}

func TestCreateGrantRequiresAdmin(t *testing.T) {
	launcher := Actor{UserID: "l1", Role: RoleLauncher}
	_, err := CreateGrant(CreateGrantInput{UserID: "u1", SectorID: "s1"}, launcher, nil, nil)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want permission denied", err)
	}
}

func TestRequireTeamWrite(t *testing.T) {
	grants := []Grant{
		{UserID: "l1", SectorID: "sales", Active: true},
		{UserID: "l2", TeamID: "north", Active: true},
		{UserID: "l3", SectorID: "sales", Active: false},
	}
	tests := []struct {
		name    string
		actor   Actor
		sector  string
		team    string
		allowed bool
	}{
		{"admin is unscoped", Actor{UserID: "a", Role: RoleAdmin}, "ops", "x", true},
		{"sector grant covers team", Actor{UserID: "l1", Role: RoleLauncher}, "sales", "north", true},
		{"sector grant other sector", Actor{UserID: "l1", Role: RoleLauncher}, "ops", "x", false},
		{"team grant exact team", Actor{UserID: "l2", Role: RoleLauncher}, "sales", "north", true},
		{"team grant other team", Actor{UserID: "l2", Role: RoleLauncher}, "sales", "south", false},
		{"inactive grant", Actor{UserID: "l3", Role: RoleLauncher}, "sales", "north", false},
		{"viewer never writes", Actor{UserID: "l1", Role: RoleViewer}, "sales", "north", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireTeamWrite(tt.actor, grants, tt.sector, tt.team)
			if tt.allowed && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if !tt.allowed && !errors.Is(err, ErrPermissionDenied) {
				t.Fatalf("expected permission denied, got %v", err)
			}
		})
	}
}
