package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

const grantColumns = `id, user_id, sector_id, team_id, granted_by, active, created_at`

// CreateGrant inserts one access grant.
func (s *Store) CreateGrant(ctx context.Context, grant access.Grant) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(grant.ID) == "" {
		return fmt.Errorf("grant id is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO grants (`+grantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		grant.ID,
		grant.UserID,
		grant.SectorID,
		grant.TeamID,
		grant.GrantedBy,
		boolToInt(grant.Active),
		toMillis(grant.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create grant: %w", err)
	}
	return nil
}

// UpdateGrant stores the grant active flag.
func (s *Store) UpdateGrant(ctx context.Context, grant access.Grant) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.execOne(ctx, "update grant", `UPDATE grants SET active = ? WHERE id = ?`, boolToInt(grant.Active), grant.ID)
}

// GetGrant returns one grant.
func (s *Store) GetGrant(ctx context.Context, grantID string) (access.Grant, error) {
	if err := s.ready(ctx); err != nil {
		return access.Grant{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM grants WHERE id = ?`, grantID)
	grant, err := scanGrant(row)
	if err != nil {
		return access.Grant{}, notFound(err, "get grant")
	}
	return grant, nil
}

// ListGrants returns grants for userID, or all grants when userID is empty.
func (s *Store) ListGrants(ctx context.Context, userID string) ([]access.Grant, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+grantColumns+` FROM grants WHERE (? = '' OR user_id = ?) ORDER BY created_at, id`,
		userID,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []access.Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("list grants: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

func scanGrant(row scanner) (access.Grant, error) {
	var grant access.Grant
	var active int
	var createdAt int64
	if err := row.Scan(
		&grant.ID,
		&grant.UserID,
		&grant.SectorID,
		&grant.TeamID,
		&grant.GrantedBy,
		&active,
		&createdAt,
	); err != nil {
		return access.Grant{}, err
	}
	grant.Active = active != 0
	grant.CreatedAt = fromMillis(createdAt)
	return grant, nil
}
