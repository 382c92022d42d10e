package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/dashboard"
	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/domain/result"
	"github.com/louisbranch/metas/internal/services/metas/service"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

type listView[T any] struct {
	Items []T `json:"items"`
}

func mapList[S, T any](items []S, fn func(S) T) listView[T] {
	out := listView[T]{Items: make([]T, 0, len(items))}
	for _, item := range items {
		out.Items = append(out.Items, fn(item))
	}
	return out
}

// Sectors.

func (s *Server) createSector(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req sectorRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	sector, err := s.svc.CreateSector(ctx, actor, req.input())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, newSectorView(sector), nil
}

func (s *Server) listSectors(ctx context.Context, actor access.Actor, _ http.ResponseWriter, _ *http.Request) (int, any, error) {
	sectors, err := s.svc.ListSectors(ctx, actor)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, mapList(sectors, newSectorView), nil
}

func (s *Server) getSector(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	sector, err := s.svc.GetSector(ctx, actor, r.PathValue("id"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newSectorView(sector), nil
}

func (s *Server) updateSector(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req sectorRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	sector, err := s.svc.UpdateSector(ctx, actor, r.PathValue("id"), req.input())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newSectorView(sector), nil
}

func (s *Server) deleteSector(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	if err := s.svc.DeleteSector(ctx, actor, r.PathValue("id")); err != nil {
		return 0, nil, err
	}
	return http.StatusNoContent, nil, nil
}

// Teams.

func (s *Server) createTeam(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req teamRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	team, err := s.svc.CreateTeam(ctx, actor, req.input())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, newTeamView(team), nil
}

func (s *Server) listTeams(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	teams, err := s.svc.ListTeams(ctx, actor, r.URL.Query().Get("sector_id"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, mapList(teams, newTeamView), nil
}

func (s *Server) getTeam(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	team, err := s.svc.GetTeam(ctx, actor, r.PathValue("id"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newTeamView(team), nil
}

func (s *Server) updateTeam(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req teamRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	team, err := s.svc.UpdateTeam(ctx, actor, r.PathValue("id"), req.input())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newTeamView(team), nil
}

func (s *Server) setTeamEvidenceLink(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req evidenceLinkRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	team, err := s.svc.SetTeamEvidenceLink(ctx, actor, r.PathValue("id"), req.EvidenceLink)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newTeamView(team), nil
}

// Periods.

func (s *Server) createPeriod(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req periodRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	input, err := req.input()
	if err != nil {
		return 0, nil, err
	}
	p, windows, err := s.svc.CreatePeriod(ctx, actor, input)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, newPeriodView(p, windows), nil
}

func (s *Server) previewWindows(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req previewRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	input, err := req.input()
	if err != nil {
		return 0, nil, err
	}
	windows, err := s.svc.PreviewWindows(ctx, actor, input)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, mapList(windows, newWindowView), nil
}

func (s *Server) listPeriods(ctx context.Context, actor access.Actor, _ http.ResponseWriter, _ *http.Request) (int, any, error) {
	periods, err := s.svc.ListPeriods(ctx, actor)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, mapList(periods, func(p period.Period) periodView { return newPeriodView(p, nil) }), nil
}

func (s *Server) getPeriod(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	p, err := s.svc.GetPeriod(ctx, actor, r.PathValue("id"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newPeriodView(p, nil), nil
}

func (s *Server) updatePeriod(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req periodPatchRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	p, err := s.svc.UpdatePeriod(ctx, actor, r.PathValue("id"), period.UpdatePeriodInput{Name: req.Name, Active: req.Active})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newPeriodView(p, nil), nil
}

func (s *Server) listWindows(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	windows, err := s.svc.ListWindows(ctx, actor, r.PathValue("id"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, mapList(windows, newWindowView), nil
}

// Goals.

func (s *Server) createGoal(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req goalRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	input, err := req.input()
	if err != nil {
		return 0, nil, err
	}
	g, err := s.svc.CreateGoal(ctx, actor, input)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, newGoalView(g), nil
}

func (s *Server) listGoals(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	q := r.URL.Query()
	goals, err := s.svc.ListGoals(ctx, actor, storage.GoalFilter{
		TeamID:   q.Get("team_id"),
		PeriodID: q.Get("period_id"),
		Status:   goal.Status(q.Get("status")),
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, mapList(goals, newGoalView), nil
}

func (s *Server) getGoal(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	g, err := s.svc.GetGoal(ctx, actor, r.PathValue("id"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newGoalView(g), nil
}

func (s *Server) updateGoal(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req goalUpdateRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	input, err := req.input()
	if err != nil {
		return 0, nil, err
	}
	g, err := s.svc.UpdateGoal(ctx, actor, r.PathValue("id"), input)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newGoalView(g), nil
}

func (s *Server) setGoalStatus(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req goalStatusRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	status, err := goal.ParseStatus(req.Status)
	if err != nil {
		return 0, nil, err
	}
	g, err := s.svc.SetGoalStatus(ctx, actor, r.PathValue("id"), status)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newGoalView(g), nil
}

func (s *Server) weightSummary(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	q := r.URL.Query()
	summary, err := s.svc.WeightSummary(ctx, actor, q.Get("team_id"), q.Get("period_id"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newWeightSummaryView(summary), nil
}

// Results.

func (s *Server) submitResult(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req submitRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	res, err := s.svc.Submit(ctx, actor, result.SubmitInput{
		GoalID:   req.GoalID,
		WindowID: req.WindowID,
		Content:  req.content(),
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newResultView(res), nil
}

func (s *Server) listResults(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	q := r.URL.Query()
	pageSize := 0
	if raw := strings.TrimSpace(q.Get("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, nil, invalidRequest("page_size", "page_size must be a non-negative integer")
		}
		pageSize = parsed
	}
	page, err := s.svc.ListResults(ctx, actor, service.ListResultsInput{
		Filter:    q.Get("filter"),
		PageSize:  pageSize,
		PageToken: q.Get("page_token"),
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newResultPageView(page), nil
}

func (s *Server) getResult(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	res, err := s.svc.GetResult(ctx, actor, r.PathValue("id"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newResultView(res), nil
}

func (s *Server) amendResult(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req contentRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	res, err := s.svc.Amend(ctx, actor, r.PathValue("id"), req.content())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newResultView(res), nil
}

func (s *Server) approveResult(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req reviewRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			return 0, nil, err
		}
	}
	res, err := s.svc.Approve(ctx, actor, r.PathValue("id"), req.Comment)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newResultView(res), nil
}

func (s *Server) rejectResult(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req rejectRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	res, err := s.svc.Reject(ctx, actor, r.PathValue("id"), req.Reason)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newResultView(res), nil
}

func (s *Server) reopenResult(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	res, err := s.svc.Reopen(ctx, actor, r.PathValue("id"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newResultView(res), nil
}

func (s *Server) attachEvidence(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req evidenceRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	res, err := s.svc.AttachEvidence(ctx, actor, r.PathValue("id"), result.EvidenceFile{Name: req.Name, URL: req.URL, Size: req.Size})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newResultView(res), nil
}

func (s *Server) listPendingApprovals(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	pending, err := s.svc.ListPendingApprovals(ctx, actor, r.URL.Query().Get("sector_id"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, mapList(pending, newPendingApprovalView), nil
}

func (s *Server) submissionContext(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	q := r.URL.Query()
	goalID, windowID := q.Get("goal_id"), q.Get("window_id")
	if goalID == "" || windowID == "" {
		return 0, nil, invalidRequest("goal_id", "goal_id and window_id are required")
	}
	sc, err := s.svc.SubmissionContext(ctx, actor, goalID, windowID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newSubmissionContextView(sc), nil
}

// Grants.

func (s *Server) grantAccess(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error) {
	var req grantRequest
	if err := decode(w, r, &req); err != nil {
		return 0, nil, err
	}
	grant, err := s.svc.GrantAccess(ctx, actor, req.input())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, newGrantView(grant), nil
}

func (s *Server) listGrants(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	grants, err := s.svc.ListGrants(ctx, actor, r.URL.Query().Get("user_id"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, mapList(grants, newGrantView), nil
}

func (s *Server) revokeAccess(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	grant, err := s.svc.RevokeAccess(ctx, actor, r.PathValue("id"))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newGrantView(grant), nil
}

// Dashboard.

func (s *Server) dashboard(ctx context.Context, actor access.Actor, _ http.ResponseWriter, r *http.Request) (int, any, error) {
	q := r.URL.Query()
	f := dashboard.Filter{
		SectorID: q.Get("sector_id"),
		TeamID:   q.Get("team_id"),
		PeriodID: q.Get("period_id"),
	}
	switch state := dashboard.CellState(q.Get("state")); state {
	case "", dashboard.CellLaunched, dashboard.CellPending:
		f.State = state
	default:
		return 0, nil, invalidRequest("state", "state must be launched or pending")
	}
	d, err := s.svc.Dashboard(ctx, actor, f)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, newDashboardView(d), nil
}
