package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

const periodColumns = `id, name, start_day, end_day, cadence, active, created_at, updated_at`

const windowColumns = `id, period_id, window_key, label, ordinal, start_day, end_day`

// CreatePeriod inserts p and its windows in one transaction.
func (s *Store) CreatePeriod(ctx context.Context, p period.Period, windows []period.Window) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("period id is required")
	}
	if len(windows) == 0 {
		return fmt.Errorf("period needs at least one window")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create period: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO periods (`+periodColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Name,
		toMillis(p.Start),
		toMillis(p.End),
		string(p.Cadence),
		boolToInt(p.Active),
		toMillis(p.CreatedAt),
		toMillis(p.UpdatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create period: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO windows (`+windowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare window insert: %w", err)
	}
	defer stmt.Close()
	for _, w := range windows {
		if w.PeriodID != p.ID {
			return fmt.Errorf("window %s belongs to period %q", w.ID, w.PeriodID)
		}
		if _, err := stmt.ExecContext(
			ctx,
			w.ID,
			w.PeriodID,
			w.Key,
			w.Label,
			w.Ordinal,
			toMillis(w.Start),
			toMillis(w.End),
		); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAlreadyExists
			}
			return fmt.Errorf("create window %s: %w", w.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create period: %w", err)
	}
	return nil
}

// UpdatePeriod replaces the period name and active flag. Range and cadence
// are never rewritten.
func (s *Store) UpdatePeriod(ctx context.Context, p period.Period) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.execOne(
		ctx,
		"update period",
		`UPDATE periods SET name = ?, active = ?, updated_at = ? WHERE id = ?`,
		p.Name,
		boolToInt(p.Active),
		toMillis(p.UpdatedAt),
		p.ID,
	)
}

// GetPeriod returns one period.
func (s *Store) GetPeriod(ctx context.Context, periodID string) (period.Period, error) {
	if err := s.ready(ctx); err != nil {
		return period.Period{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = ?`, periodID)
	p, err := scanPeriod(row)
	if err != nil {
		return period.Period{}, notFound(err, "get period")
	}
	return p, nil
}

// ListPeriods returns every period, most recent start first.
func (s *Store) ListPeriods(ctx context.Context) ([]period.Period, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+periodColumns+` FROM periods ORDER BY start_day DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	defer rows.Close()

	var periods []period.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("list periods: %w", err)
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

// ListWindows returns the windows of periodID in ordinal order.
func (s *Store) ListWindows(ctx context.Context, periodID string) ([]period.Window, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+windowColumns+` FROM windows WHERE period_id = ? ORDER BY ordinal`,
		periodID,
	)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	defer rows.Close()

	var windows []period.Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("list windows: %w", err)
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	return windows, nil
}

// GetWindow returns one window.
func (s *Store) GetWindow(ctx context.Context, windowID string) (period.Window, error) {
	if err := s.ready(ctx); err != nil {
		return period.Window{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+windowColumns+` FROM windows WHERE id = ?`, windowID)
	w, err := scanWindow(row)
	if err != nil {
		return period.Window{}, notFound(err, "get window")
	}
	return w, nil
}

func scanPeriod(row scanner) (period.Period, error) {
	var p period.Period
	var cadence string
	var active int
	var startDay, endDay, createdAt, updatedAt int64
	if err := row.Scan(&p.ID, &p.Name, &startDay, &endDay, &cadence, &active, &createdAt, &updatedAt); err != nil {
		return period.Period{}, err
	}
	p.Start = fromMillis(startDay)
	p.End = fromMillis(endDay)
	p.Cadence = period.Cadence(cadence)
	p.Active = active != 0
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return p, nil
}

func scanWindow(row scanner) (period.Window, error) {
	var w period.Window
	var startDay, endDay int64
	if err := row.Scan(&w.ID, &w.PeriodID, &w.Key, &w.Label, &w.Ordinal, &startDay, &endDay); err != nil {
		return period.Window{}, err
	}
	w.Start = fromMillis(startDay)
	w.End = fromMillis(endDay)
	return w, nil
}
