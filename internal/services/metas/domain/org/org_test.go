package org

import (
	"errors"
	"testing"
	"time"
)

var fixedNow = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func fixedID(value string) func() (string, error) {
	return func() (string, error) { return value, nil }
}

func TestCreateSector(t *testing.T) {
	sector, err := CreateSector(SectorInput{Name: "  Sales ", Description: " revenue "}, fixedNow, fixedID("s1"))
	if err != nil {
		t.Fatalf("create sector: %v", err)
	}
	if sector.ID != "s1" || sector.Name != "Sales" || sector.Description != "revenue" || !sector.Active {
		t.Fatalf("unexpected sector: %+v", sector)
	}
	if !sector.CreatedAt.Equal(fixedNow()) {
		t.Fatalf("created at = %v", sector.CreatedAt)
	}

	if _, err := CreateSector(SectorInput{Name: " "}, fixedNow, fixedID("s2")); !errors.Is(err, ErrSectorNameEmpty) {
		t.Fatalf("expected empty name error, got %v", err)
	}
}

func TestUpdateSectorKeepsActiveWhenUnset(t *testing.T) {
	sector := Sector{ID: "s1", Name: "Sales", Active: true}
	updated, err := UpdateSector(sector, SectorInput{Name: "Sales & Ops"}, fixedNow)
	if err != nil {
		t.Fatalf("update sector: %v", err)
	}
	if !updated.Active || updated.Name != "Sales & Ops" {
		t.Fatalf("unexpected sector: %+v", updated)
	}

	inactive := false
	updated, err = UpdateSector(sector, SectorInput{Name: "Sales", Active: &inactive}, fixedNow)
	if err != nil {
		t.Fatalf("update sector: %v", err)
	}
	if updated.Active {
		t.Fatal("expected sector to be deactivated")
	}
}

func TestCreateTeamValidation(t *testing.T) {
	tests := []struct {
		name  string
		input TeamInput
		want  error
	}{
		{name: "missing name", input: TeamInput{SectorID: "s1"}, want: ErrTeamNameEmpty},
		{name: "missing sector", input: TeamInput{Name: "North"}, want: ErrTeamSectorMissing},
		{name: "bad link", input: TeamInput{Name: "North", SectorID: "s1", EvidenceLink: "ftp://files"}, want: ErrEvidenceLinkInvalid},
		{name: "relative link", input: TeamInput{Name: "North", SectorID: "s1", EvidenceLink: "/drive/x"}, want: ErrEvidenceLinkInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CreateTeam(tt.input, fixedNow, fixedID("t1")); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateTeamAndSetEvidenceLink(t *testing.T) {
	team, err := CreateTeam(TeamInput{SectorID: "s1", Name: "North"}, fixedNow, fixedID("t1"))
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	if team.EvidenceLink != "" || !team.Active {
		t.Fatalf("unexpected team: %+v", team)
	}

	team, err = SetEvidenceLink(team, " https://drive.example.com/north ", fixedNow)
	if err != nil {
		t.Fatalf("set link: %v", err)
	}
	if team.EvidenceLink != "https://drive.example.com/north" {
		t.Fatalf("link = %q", team.EvidenceLink)
	}

	team, err = SetEvidenceLink(team, "", fixedNow)
	if err != nil {
		t.Fatalf("clear link: %v", err)
	}
	if team.EvidenceLink != "" {
		t.Fatalf("expected cleared link, got %q", team.EvidenceLink)
	}
}
