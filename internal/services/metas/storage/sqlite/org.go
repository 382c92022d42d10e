package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

const sectorColumns = `id, name, description, active, created_at, updated_at`

const teamColumns = `id, sector_id, name, description, evidence_link, active, created_at, updated_at`

// CreateSector inserts one sector.
func (s *Store) CreateSector(ctx context.Context, sector org.Sector) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(sector.ID) == "" {
		return fmt.Errorf("sector id is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sectors (`+sectorColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		sector.ID,
		sector.Name,
		sector.Description,
		boolToInt(sector.Active),
		toMillis(sector.CreatedAt),
		toMillis(sector.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create sector: %w", err)
	}
	return nil
}

// UpdateSector replaces the mutable sector fields.
func (s *Store) UpdateSector(ctx context.Context, sector org.Sector) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.execOne(
		ctx,
		"update sector",
		`UPDATE sectors SET name = ?, description = ?, active = ?, updated_at = ? WHERE id = ?`,
		sector.Name,
		sector.Description,
		boolToInt(sector.Active),
		toMillis(sector.UpdatedAt),
		sector.ID,
	)
}

// GetSector returns one sector.
func (s *Store) GetSector(ctx context.Context, sectorID string) (org.Sector, error) {
	if err := s.ready(ctx); err != nil {
		return org.Sector{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+sectorColumns+` FROM sectors WHERE id = ?`, sectorID)
	sector, err := scanSector(row)
	if err != nil {
		return org.Sector{}, notFound(err, "get sector")
	}
	return sector, nil
}

// ListSectors returns every sector ordered by name.
func (s *Store) ListSectors(ctx context.Context) ([]org.Sector, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+sectorColumns+` FROM sectors ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list sectors: %w", err)
	}
	defer rows.Close()

	var sectors []org.Sector
	for rows.Next() {
		sector, err := scanSector(rows)
		if err != nil {
			return nil, fmt.Errorf("list sectors: %w", err)
		}
		sectors = append(sectors, sector)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sectors: %w", err)
	}
	return sectors, nil
}

// DeleteSector removes a sector no team references.
func (s *Store) DeleteSector(ctx context.Context, sectorID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sectors WHERE id = ?`, sectorID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return storage.ErrInUse
		}
		return fmt.Errorf("delete sector: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete sector: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanSector(row scanner) (org.Sector, error) {
	var sector org.Sector
	var active int
	var createdAt, updatedAt int64
	if err := row.Scan(&sector.ID, &sector.Name, &sector.Description, &active, &createdAt, &updatedAt); err != nil {
		return org.Sector{}, err
	}
	sector.Active = active != 0
	sector.CreatedAt = fromMillis(createdAt)
	sector.UpdatedAt = fromMillis(updatedAt)
	return sector, nil
}

// CreateTeam inserts one team. The sector must exist.
func (s *Store) CreateTeam(ctx context.Context, team org.Team) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(team.ID) == "" {
		return fmt.Errorf("team id is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO teams (`+teamColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		team.ID,
		team.SectorID,
		team.Name,
		team.Description,
		team.EvidenceLink,
		boolToInt(team.Active),
		toMillis(team.CreatedAt),
		toMillis(team.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

// UpdateTeam replaces the mutable team fields.
func (s *Store) UpdateTeam(ctx context.Context, team org.Team) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	err := s.execOne(
		ctx,
		"update team",
		`UPDATE teams
		    SET sector_id = ?, name = ?, description = ?, evidence_link = ?, active = ?, updated_at = ?
		  WHERE id = ?`,
		team.SectorID,
		team.Name,
		team.Description,
		team.EvidenceLink,
		boolToInt(team.Active),
		toMillis(team.UpdatedAt),
		team.ID,
	)
	if isForeignKeyViolation(err) {
		return storage.ErrNotFound
	}
	return err
}

// GetTeam returns one team.
func (s *Store) GetTeam(ctx context.Context, teamID string) (org.Team, error) {
	if err := s.ready(ctx); err != nil {
		return org.Team{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = ?`, teamID)
	team, err := scanTeam(row)
	if err != nil {
		return org.Team{}, notFound(err, "get team")
	}
	return team, nil
}

// ListTeams returns teams ordered by name.
func (s *Store) ListTeams(ctx context.Context, sectorID string) ([]org.Team, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+teamColumns+` FROM teams WHERE (? = '' OR sector_id = ?) ORDER BY name, id`,
		sectorID,
		sectorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []org.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("list teams: %w", err)
		}
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

func scanTeam(row scanner) (org.Team, error) {
	var team org.Team
	var active int
	var createdAt, updatedAt int64
	if err := row.Scan(
		&team.ID,
		&team.SectorID,
		&team.Name,
		&team.Description,
		&team.EvidenceLink,
		&active,
		&createdAt,
		&updatedAt,
	); err != nil {
		return org.Team{}, err
	}
	team.Active = active != 0
	team.CreatedAt = fromMillis(createdAt)
	team.UpdatedAt = fromMillis(updatedAt)
	return team, nil
}
