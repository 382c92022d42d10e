// Package org models the sector and team hierarchy that owns goals.
package org

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
	"github.com/louisbranch/metas/internal/platform/id"
)

var (
	// ErrSectorNameEmpty indicates a missing sector name.
	ErrSectorNameEmpty = apperrors.New(apperrors.CodeSectorNameEmpty, "sector name is required")
	// ErrSectorInUse indicates a sector still referenced by teams.
	ErrSectorInUse = apperrors.New(apperrors.CodeSectorInUse, "sector is referenced by teams")
	// ErrTeamNameEmpty indicates a missing team name.
	ErrTeamNameEmpty = apperrors.New(apperrors.CodeTeamNameEmpty, "team name is required")
	// ErrTeamSectorMissing indicates a team without a sector.
	ErrTeamSectorMissing = apperrors.New(apperrors.CodeTeamSectorMissing, "team sector is required")
	// ErrEvidenceLinkInvalid indicates a malformed evidence folder link.
	ErrEvidenceLinkInvalid = apperrors.New(apperrors.CodeTeamEvidenceLinkInvalid, "evidence link must be an http(s) url")
)

// Sector groups teams.
type Sector struct {
	ID          string
	Name        string
	Description string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Team executes goals and belongs to exactly one sector.
type Team struct {
	ID          string
	SectorID    string
	Name        string
	Description string
	// EvidenceLink is the external folder where submitters file evidence.
	EvidenceLink string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SectorInput carries the editable sector fields.
type SectorInput struct {
	Name        string
	Description string
	Active      *bool
}

// CreateSector builds an active sector.
func CreateSector(input SectorInput, now func() time.Time, idGenerator func() (string, error)) (Sector, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Sector{}, ErrSectorNameEmpty
	}
	sectorID, err := idGenerator()
	if err != nil {
		return Sector{}, fmt.Errorf("generate sector id: %w", err)
	}
	createdAt := now().UTC()
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	return Sector{
		ID:          sectorID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Active:      active,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// UpdateSector applies input to sector. A nil Active leaves the flag alone.
func UpdateSector(sector Sector, input SectorInput, now func() time.Time) (Sector, error) {
	if now == nil {
		now = time.Now
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Sector{}, ErrSectorNameEmpty
	}
	sector.Name = name
	sector.Description = strings.TrimSpace(input.Description)
	if input.Active != nil {
		sector.Active = *input.Active
	}
	sector.UpdatedAt = now().UTC()
	return sector, nil
}

// TeamInput carries the editable team fields.
type TeamInput struct {
	SectorID     string
	Name         string
	Description  string
	EvidenceLink string
	Active       *bool
}

// CreateTeam builds an active team under a sector.
func CreateTeam(input TeamInput, now func() time.Time, idGenerator func() (string, error)) (Team, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	normalized, err := normalizeTeamInput(input)
	if err != nil {
		return Team{}, err
	}
	teamID, err := idGenerator()
	if err != nil {
		return Team{}, fmt.Errorf("generate team id: %w", err)
	}
	createdAt := now().UTC()
	active := true
	if normalized.Active != nil {
		active = *normalized.Active
	}
	return Team{
		ID:           teamID,
		SectorID:     normalized.SectorID,
		Name:         normalized.Name,
		Description:  normalized.Description,
		EvidenceLink: normalized.EvidenceLink,
		Active:       active,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}, nil
}

// UpdateTeam applies input to team.
func UpdateTeam(team Team, input TeamInput, now func() time.Time) (Team, error) {
	if now == nil {
		now = time.Now
	}
	normalized, err := normalizeTeamInput(input)
	if err != nil {
		return Team{}, err
	}
	team.SectorID = normalized.SectorID
	team.Name = normalized.Name
	team.Description = normalized.Description
	team.EvidenceLink = normalized.EvidenceLink
	if normalized.Active != nil {
		team.Active = *normalized.Active
	}
	team.UpdatedAt = now().UTC()
	return team, nil
}

// SetEvidenceLink replaces the team's evidence folder link. An empty link
// clears it.
func SetEvidenceLink(team Team, link string, now func() time.Time) (Team, error) {
	if now == nil {
		now = time.Now
	}
	normalized, err := NormalizeEvidenceLink(link)
	if err != nil {
		return Team{}, err
	}
	team.EvidenceLink = normalized
	team.UpdatedAt = now().UTC()
	return team, nil
}

// NormalizeEvidenceLink trims link and requires an absolute http(s) URL
// when it is not empty.
func NormalizeEvidenceLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", nil
	}
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" {
		return "", ErrEvidenceLinkInvalid
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return link, nil
	default:
		return "", ErrEvidenceLinkInvalid
	}
}

func normalizeTeamInput(input TeamInput) (TeamInput, error) {
	input.SectorID = strings.TrimSpace(input.SectorID)
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if input.Name == "" {
		return TeamInput{}, ErrTeamNameEmpty
	}
	if input.SectorID == "" {
		return TeamInput{}, ErrTeamSectorMissing
	}
	link, err := NormalizeEvidenceLink(input.EvidenceLink)
	if err != nil {
		return TeamInput{}, err
	}
	input.EvidenceLink = link
	return input, nil
}
