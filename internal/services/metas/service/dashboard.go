package service

import (
	"context"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/dashboard"
	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

// Dashboard re-reads the store and projects it through f. Every role may
// read it.
func (s *Service) Dashboard(ctx context.Context, actor access.Actor, f dashboard.Filter) (_ dashboard.Dashboard, err error) {
	ctx, finish, err := s.begin(ctx, "dashboard", actor)
	defer finish(&err)
	if err != nil {
		return dashboard.Dashboard{}, err
	}

	sectors, err := s.store.ListSectors(ctx)
	if err != nil {
		return dashboard.Dashboard{}, err
	}
	teams, err := s.store.ListTeams(ctx, f.SectorID)
	if err != nil {
		return dashboard.Dashboard{}, err
	}
	goals, err := s.store.ListGoals(ctx, storage.GoalFilter{
		TeamID:   f.TeamID,
		PeriodID: f.PeriodID,
		Status:   goal.StatusActive,
	})
	if err != nil {
		return dashboard.Dashboard{}, err
	}

	in := dashboard.Input{
		Goals:   goals,
		Windows: map[string][]period.Window{},
		Teams:   make(map[string]org.Team, len(teams)),
		Sectors: make(map[string]org.Sector, len(sectors)),
	}
	for _, sector := range sectors {
		in.Sectors[sector.ID] = sector
	}
	for _, team := range teams {
		in.Teams[team.ID] = team
	}

	goalIDs := make([]string, 0, len(goals))
	for _, g := range goals {
		if _, ok := in.Teams[g.TeamID]; !ok && f.SectorID != "" {
			continue
		}
		goalIDs = append(goalIDs, g.ID)
		if _, ok := in.Windows[g.PeriodID]; ok {
			continue
		}
		windows, err := s.store.ListWindows(ctx, g.PeriodID)
		if err != nil {
			return dashboard.Dashboard{}, err
		}
		in.Windows[g.PeriodID] = windows
	}
	if len(goalIDs) > 0 {
		in.Results, err = s.store.ListResultsForGoals(ctx, goalIDs)
		if err != nil {
			return dashboard.Dashboard{}, err
		}
	}
	return dashboard.Build(in, f), nil
}
