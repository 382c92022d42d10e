package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/events"
)

// CreatePeriod generates the windows of a new period and stores both in
// one write. Administrators only.
func (s *Service) CreatePeriod(ctx context.Context, actor access.Actor, input period.CreatePeriodInput) (_ period.Period, _ []period.Window, err error) {
	ctx, finish, err := s.begin(ctx, "create_period", actor)
	defer finish(&err)
	if err != nil {
		return period.Period{}, nil, err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return period.Period{}, nil, err
	}
	if strings.TrimSpace(input.Locale) == "" {
		input.Locale = s.locale
	}
	p, windows, err := period.CreatePeriod(input, s.now, s.newID)
	if err != nil {
		return period.Period{}, nil, err
	}
	if err := s.store.CreatePeriod(ctx, p, windows); err != nil {
		return period.Period{}, nil, alreadyExists(err, "period")
	}
	s.publish(ctx, actor, events.PeriodCreated, p.ID, "", map[string]string{
		"cadence": string(p.Cadence),
		"windows": strconv.Itoa(len(windows)),
	})
	return p, windows, nil
}

// UpdatePeriod renames or (de)activates a period. Administrators only.
func (s *Service) UpdatePeriod(ctx context.Context, actor access.Actor, periodID string, input period.UpdatePeriodInput) (_ period.Period, err error) {
	ctx, finish, err := s.begin(ctx, "update_period", actor)
	defer finish(&err)
	if err != nil {
		return period.Period{}, err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return period.Period{}, err
	}
	current, err := s.store.GetPeriod(ctx, periodID)
	if err != nil {
		return period.Period{}, notFound(err, "period")
	}
	updated := period.UpdatePeriod(current, input, s.now)
	if err := s.store.UpdatePeriod(ctx, updated); err != nil {
		return period.Period{}, notFound(err, "period")
	}
	s.publish(ctx, actor, events.PeriodUpdated, updated.ID, "", map[string]string{
		"active": strconv.FormatBool(updated.Active),
	})
	return updated, nil
}

// GetPeriod returns one period.
func (s *Service) GetPeriod(ctx context.Context, actor access.Actor, periodID string) (_ period.Period, err error) {
	ctx, finish, err := s.begin(ctx, "get_period", actor)
	defer finish(&err)
	if err != nil {
		return period.Period{}, err
	}
	p, err := s.store.GetPeriod(ctx, periodID)
	if err != nil {
		return period.Period{}, notFound(err, "period")
	}
	return p, nil
}

// ListPeriods returns every period, most recent first.
func (s *Service) ListPeriods(ctx context.Context, actor access.Actor) (_ []period.Period, err error) {
	ctx, finish, err := s.begin(ctx, "list_periods", actor)
	defer finish(&err)
	if err != nil {
		return nil, err
	}
	return s.store.ListPeriods(ctx)
}

// ListWindows returns the windows of periodID in ordinal order.
func (s *Service) ListWindows(ctx context.Context, actor access.Actor, periodID string) (_ []period.Window, err error) {
	ctx, finish, err := s.begin(ctx, "list_windows", actor)
	defer finish(&err)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetPeriod(ctx, periodID); err != nil {
		return nil, notFound(err, "period")
	}
	return s.store.ListWindows(ctx, periodID)
}

// PreviewWindows runs the window generator without storing anything.
func PreviewWindows(input period.CreatePeriodInput, defaultLocale string) ([]period.Window, error) {
	windows, err := period.GenerateWindows(input.Start, input.End, input.Cadence)
	if err != nil {
		return nil, err
	}
	locale := strings.TrimSpace(input.Locale)
	if locale == "" {
		locale = defaultLocale
	}
	return period.Relabel(windows, locale), nil
}

// PreviewWindows is the authenticated form of the package-level helper.
func (s *Service) PreviewWindows(ctx context.Context, actor access.Actor, input period.CreatePeriodInput) (_ []period.Window, err error) {
	_, finish, err := s.begin(ctx, "preview_windows", actor)
	defer finish(&err)
	if err != nil {
		return nil, err
	}
	return PreviewWindows(input, s.locale)
}
