package service

import (
	"context"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/events"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

// CreateGoal registers a goal for a team within a period. Administrators
// create active goals; launchers with a covering grant create suggestions.
func (s *Service) CreateGoal(ctx context.Context, actor access.Actor, input goal.CreateGoalInput) (_ goal.Goal, err error) {
	ctx, finish, err := s.begin(ctx, "create_goal", actor)
	defer finish(&err)
	if err != nil {
		return goal.Goal{}, err
	}
	normalized, err := goal.NormalizeCreateGoalInput(input)
	if err != nil {
		return goal.Goal{}, err
	}
	team, err := s.activeTeam(ctx, normalized.TeamID)
	if err != nil {
		return goal.Goal{}, err
	}
	if err := s.requireTeamWrite(ctx, actor, team.SectorID, team.ID); err != nil {
		return goal.Goal{}, err
	}
	p, err := s.store.GetPeriod(ctx, normalized.PeriodID)
	if err != nil {
		return goal.Goal{}, notFound(err, "period")
	}
	created, err := goal.CreateGoal(normalized, p, actor, s.now, s.newID)
	if err != nil {
		return goal.Goal{}, err
	}
	if err := s.store.CreateGoal(ctx, created); err != nil {
		return goal.Goal{}, notFound(alreadyExists(err, "goal"), "goal")
	}
	s.publish(ctx, actor, events.GoalCreated, created.ID, created.TeamID, map[string]string{
		"period_id": created.PeriodID,
		"status":    string(created.Status),
	})
	return created, nil
}

// UpdateGoal edits the mutable goal fields. Administrators may edit any
// goal; a launcher may edit only their own pending suggestion.
func (s *Service) UpdateGoal(ctx context.Context, actor access.Actor, goalID string, input goal.UpdateGoalInput) (_ goal.Goal, err error) {
	ctx, finish, err := s.begin(ctx, "update_goal", actor)
	defer finish(&err)
	if err != nil {
		return goal.Goal{}, err
	}
	current, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return goal.Goal{}, notFound(err, "goal")
	}
	if !actor.IsAdmin() {
		if current.Status != goal.StatusSuggested || current.CreatedBy != actor.UserID {
			return goal.Goal{}, access.ErrPermissionDenied
		}
		team, err := s.store.GetTeam(ctx, current.TeamID)
		if err != nil {
			return goal.Goal{}, notFound(err, "team")
		}
		if err := s.requireTeamWrite(ctx, actor, team.SectorID, team.ID); err != nil {
			return goal.Goal{}, err
		}
	}
	updated, err := goal.UpdateGoal(current, input, s.now)
	if err != nil {
		return goal.Goal{}, err
	}
	if err := s.store.UpdateGoal(ctx, updated); err != nil {
		return goal.Goal{}, notFound(err, "goal")
	}
	s.publish(ctx, actor, events.GoalUpdated, updated.ID, updated.TeamID, nil)
	return updated, nil
}

// SetGoalStatus moves a goal along its lifecycle. Administrators only.
func (s *Service) SetGoalStatus(ctx context.Context, actor access.Actor, goalID string, to goal.Status) (_ goal.Goal, err error) {
	ctx, finish, err := s.begin(ctx, "set_goal_status", actor)
	defer finish(&err)
	if err != nil {
		return goal.Goal{}, err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return goal.Goal{}, err
	}
	current, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return goal.Goal{}, notFound(err, "goal")
	}
	updated, err := goal.TransitionStatus(current, to, s.now)
	if err != nil {
		return goal.Goal{}, err
	}
	if err := s.store.UpdateGoal(ctx, updated); err != nil {
		return goal.Goal{}, notFound(err, "goal")
	}
	s.metrics.Transition("goal", string(current.Status), string(updated.Status))
	s.publish(ctx, actor, events.GoalStatusChanged, updated.ID, updated.TeamID, map[string]string{
		"from": string(current.Status),
		"to":   string(updated.Status),
	})
	return updated, nil
}

// GetGoal returns one goal.
func (s *Service) GetGoal(ctx context.Context, actor access.Actor, goalID string) (_ goal.Goal, err error) {
	ctx, finish, err := s.begin(ctx, "get_goal", actor)
	defer finish(&err)
	if err != nil {
		return goal.Goal{}, err
	}
	g, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return goal.Goal{}, notFound(err, "goal")
	}
	return g, nil
}

// ListGoals returns the goals matching f.
func (s *Service) ListGoals(ctx context.Context, actor access.Actor, f storage.GoalFilter) (_ []goal.Goal, err error) {
	ctx, finish, err := s.begin(ctx, "list_goals", actor)
	defer finish(&err)
	if err != nil {
		return nil, err
	}
	if f.Status != "" {
		status, err := goal.ParseStatus(string(f.Status))
		if err != nil {
			return nil, err
		}
		f.Status = status
	}
	return s.store.ListGoals(ctx, f)
}

// WeightSummary totals the active goal weights of a team in a period.
func (s *Service) WeightSummary(ctx context.Context, actor access.Actor, teamID, periodID string) (_ goal.WeightSummary, err error) {
	ctx, finish, err := s.begin(ctx, "weight_summary", actor)
	defer finish(&err)
	if err != nil {
		return goal.WeightSummary{}, err
	}
	if teamID == "" {
		return goal.WeightSummary{}, goal.ErrTeamMissing
	}
	if periodID == "" {
		return goal.WeightSummary{}, goal.ErrPeriodMissing
	}
	goals, err := s.store.ListGoals(ctx, storage.GoalFilter{
		TeamID:   teamID,
		PeriodID: periodID,
		Status:   goal.StatusActive,
	})
	if err != nil {
		return goal.WeightSummary{}, err
	}
	return goal.SummarizeWeights(goals, teamID, periodID), nil
}

// activeTeam loads teamID and fails when it is inactive.
func (s *Service) activeTeam(ctx context.Context, teamID string) (org.Team, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return org.Team{}, notFound(err, "team")
	}
	if !team.Active {
		return org.Team{}, ErrTeamInactive
	}
	return team, nil
}
