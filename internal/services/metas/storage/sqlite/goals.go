package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

const goalColumns = `id, team_id, period_id, name, description, metric, cadence, weight, target, status, created_by, created_at, updated_at`

// CreateGoal inserts one goal. Team and period must exist.
func (s *Store) CreateGoal(ctx context.Context, g goal.Goal) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("goal id is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID,
		g.TeamID,
		g.PeriodID,
		g.Name,
		g.Description,
		string(g.Metric),
		string(g.Cadence),
		g.Weight,
		g.Target,
		string(g.Status),
		g.CreatedBy,
		toMillis(g.CreatedAt),
		toMillis(g.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("create goal: %w", err)
	}
	return nil
}

// UpdateGoal replaces the editable goal fields and status.
func (s *Store) UpdateGoal(ctx context.Context, g goal.Goal) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.execOne(
		ctx,
		"update goal",
		`UPDATE goals
		    SET name = ?, description = ?, metric = ?, weight = ?, target = ?, status = ?, updated_at = ?
		  WHERE id = ?`,
		g.Name,
		g.Description,
		string(g.Metric),
		g.Weight,
		g.Target,
		string(g.Status),
		toMillis(g.UpdatedAt),
		g.ID,
	)
}

// GetGoal returns one goal.
func (s *Store) GetGoal(ctx context.Context, goalID string) (goal.Goal, error) {
	if err := s.ready(ctx); err != nil {
		return goal.Goal{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, goalID)
	g, err := scanGoal(row)
	if err != nil {
		return goal.Goal{}, notFound(err, "get goal")
	}
	return g, nil
}

// ListGoals returns matching goals ordered by team then name.
func (s *Store) ListGoals(ctx context.Context, f storage.GoalFilter) ([]goal.Goal, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+goalColumns+`
		   FROM goals
		  WHERE (? = '' OR team_id = ?)
		    AND (? = '' OR period_id = ?)
		    AND (? = '' OR status = ?)
		  ORDER BY team_id, name, id`,
		f.TeamID, f.TeamID,
		f.PeriodID, f.PeriodID,
		string(f.Status), string(f.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []goal.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("list goals: %w", err)
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

func scanGoal(row scanner) (goal.Goal, error) {
	var g goal.Goal
	var metric, cadence, status string
	var createdAt, updatedAt int64
	if err := row.Scan(
		&g.ID,
		&g.TeamID,
		&g.PeriodID,
		&g.Name,
		&g.Description,
		&metric,
		&cadence,
		&g.Weight,
		&g.Target,
		&status,
		&g.CreatedBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		return goal.Goal{}, err
	}
	g.Metric = goal.MetricType(metric)
	g.Cadence = period.Cadence(cadence)
	g.Status = goal.Status(status)
	g.CreatedAt = fromMillis(createdAt)
	g.UpdatedAt = fromMillis(updatedAt)
	return g, nil
}
