package service

import (
	"context"
	"errors"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/events"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

// CreateSector stores a new sector. Administrators only.
func (s *Service) CreateSector(ctx context.Context, actor access.Actor, input org.SectorInput) (_ org.Sector, err error) {
	ctx, finish, err := s.begin(ctx, "create_sector", actor)
	defer finish(&err)
	if err != nil {
		return org.Sector{}, err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return org.Sector{}, err
	}
	sector, err := org.CreateSector(input, s.now, s.newID)
	if err != nil {
		return org.Sector{}, err
	}
	if err := s.store.CreateSector(ctx, sector); err != nil {
		return org.Sector{}, alreadyExists(err, "sector")
	}
	s.publish(ctx, actor, events.SectorCreated, sector.ID, "", map[string]string{"name": sector.Name})
	return sector, nil
}

// UpdateSector edits a sector. Administrators only.
func (s *Service) UpdateSector(ctx context.Context, actor access.Actor, sectorID string, input org.SectorInput) (_ org.Sector, err error) {
	ctx, finish, err := s.begin(ctx, "update_sector", actor)
	defer finish(&err)
	if err != nil {
		return org.Sector{}, err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return org.Sector{}, err
	}
	current, err := s.store.GetSector(ctx, sectorID)
	if err != nil {
		return org.Sector{}, notFound(err, "sector")
	}
	updated, err := org.UpdateSector(current, input, s.now)
	if err != nil {
		return org.Sector{}, err
	}
	if err := s.store.UpdateSector(ctx, updated); err != nil {
		return org.Sector{}, notFound(err, "sector")
	}
	s.publish(ctx, actor, events.SectorUpdated, updated.ID, "", nil)
	return updated, nil
}

// DeleteSector removes a sector that no team references. Administrators
// only.
func (s *Service) DeleteSector(ctx context.Context, actor access.Actor, sectorID string) (err error) {
	ctx, finish, err := s.begin(ctx, "delete_sector", actor)
	defer finish(&err)
	if err != nil {
		return err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return err
	}
	if err := s.store.DeleteSector(ctx, sectorID); err != nil {
		if errors.Is(err, storage.ErrInUse) {
			return org.ErrSectorInUse
		}
		return notFound(err, "sector")
	}
	s.publish(ctx, actor, events.SectorDeleted, sectorID, "", nil)
	return nil
}

// GetSector returns one sector.
func (s *Service) GetSector(ctx context.Context, actor access.Actor, sectorID string) (_ org.Sector, err error) {
	ctx, finish, err := s.begin(ctx, "get_sector", actor)
	defer finish(&err)
	if err != nil {
		return org.Sector{}, err
	}
	sector, err := s.store.GetSector(ctx, sectorID)
	if err != nil {
		return org.Sector{}, notFound(err, "sector")
	}
	return sector, nil
}

// ListSectors returns every sector.
func (s *Service) ListSectors(ctx context.Context, actor access.Actor) (_ []org.Sector, err error) {
	ctx, finish, err := s.begin(ctx, "list_sectors", actor)
	defer finish(&err)
	if err != nil {
		return nil, err
	}
	return s.store.ListSectors(ctx)
}

// CreateTeam stores a new team under an existing sector. Administrators
// only.
func (s *Service) CreateTeam(ctx context.Context, actor access.Actor, input org.TeamInput) (_ org.Team, err error) {
	ctx, finish, err := s.begin(ctx, "create_team", actor)
	defer finish(&err)
	if err != nil {
		return org.Team{}, err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return org.Team{}, err
	}
	team, err := org.CreateTeam(input, s.now, s.newID)
	if err != nil {
		return org.Team{}, err
	}
	if _, err := s.store.GetSector(ctx, team.SectorID); err != nil {
		return org.Team{}, notFound(err, "sector")
	}
	if err := s.store.CreateTeam(ctx, team); err != nil {
		return org.Team{}, notFound(alreadyExists(err, "team"), "sector")
	}
	s.publish(ctx, actor, events.TeamCreated, team.ID, team.ID, map[string]string{"sector_id": team.SectorID})
	return team, nil
}

// UpdateTeam edits a team. Administrators only.
func (s *Service) UpdateTeam(ctx context.Context, actor access.Actor, teamID string, input org.TeamInput) (_ org.Team, err error) {
	ctx, finish, err := s.begin(ctx, "update_team", actor)
	defer finish(&err)
	if err != nil {
		return org.Team{}, err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return org.Team{}, err
	}
	current, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return org.Team{}, notFound(err, "team")
	}
	updated, err := org.UpdateTeam(current, input, s.now)
	if err != nil {
		return org.Team{}, err
	}
	if updated.SectorID != current.SectorID {
		if _, err := s.store.GetSector(ctx, updated.SectorID); err != nil {
			return org.Team{}, notFound(err, "sector")
		}
	}
	if err := s.store.UpdateTeam(ctx, updated); err != nil {
		return org.Team{}, notFound(err, "team")
	}
	s.publish(ctx, actor, events.TeamUpdated, updated.ID, updated.ID, nil)
	return updated, nil
}

// SetTeamEvidenceLink replaces the team's evidence-folder link.
// Administrators only; an empty link clears it.
func (s *Service) SetTeamEvidenceLink(ctx context.Context, actor access.Actor, teamID, link string) (_ org.Team, err error) {
	ctx, finish, err := s.begin(ctx, "set_team_evidence_link", actor)
	defer finish(&err)
	if err != nil {
		return org.Team{}, err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return org.Team{}, err
	}
	current, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return org.Team{}, notFound(err, "team")
	}
	updated, err := org.SetEvidenceLink(current, link, s.now)
	if err != nil {
		return org.Team{}, err
	}
	if err := s.store.UpdateTeam(ctx, updated); err != nil {
		return org.Team{}, notFound(err, "team")
	}
	s.publish(ctx, actor, events.TeamEvidenceLinkChanged, updated.ID, updated.ID, map[string]string{"evidence_link": updated.EvidenceLink})
	return updated, nil
}

// GetTeam returns one team.
func (s *Service) GetTeam(ctx context.Context, actor access.Actor, teamID string) (_ org.Team, err error) {
	ctx, finish, err := s.begin(ctx, "get_team", actor)
	defer finish(&err)
	if err != nil {
		return org.Team{}, err
	}
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return org.Team{}, notFound(err, "team")
	}
	return team, nil
}

// ListTeams returns every team, or those of sectorID when set.
func (s *Service) ListTeams(ctx context.Context, actor access.Actor, sectorID string) (_ []org.Team, err error) {
	ctx, finish, err := s.begin(ctx, "list_teams", actor)
	defer finish(&err)
	if err != nil {
		return nil, err
	}
	return s.store.ListTeams(ctx, sectorID)
}
