package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/dashboard"
	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/domain/result"
	"github.com/louisbranch/metas/internal/services/metas/events"
	"github.com/louisbranch/metas/internal/services/metas/storage"
	"github.com/louisbranch/metas/internal/services/metas/storage/filter"
)

// submitAttempts bounds how often Submit re-reads a slot that a concurrent
// writer claimed or changed first.
const submitAttempts = 3

// slot is the loaded context of a (goal, window) pair.
type slot struct {
	goal   goal.Goal
	window period.Window
	team   org.Team
}

// loadSlot resolves goalID and windowID and checks that they belong
// together.
func (s *Service) loadSlot(ctx context.Context, goalID, windowID string) (slot, error) {
	g, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return slot{}, notFound(err, "goal")
	}
	w, err := s.store.GetWindow(ctx, windowID)
	if err != nil {
		return slot{}, notFound(err, "window")
	}
	if w.PeriodID != g.PeriodID {
		return slot{}, ErrWindowPeriodMismatch
	}
	team, err := s.store.GetTeam(ctx, g.TeamID)
	if err != nil {
		return slot{}, notFound(err, "team")
	}
	return slot{goal: g, window: w, team: team}, nil
}

// Submit records the result of a goal in a window. A second submission for
// the same pair amends the existing entry instead of creating another.
func (s *Service) Submit(ctx context.Context, actor access.Actor, input result.SubmitInput) (_ result.Result, err error) {
	ctx, finish, err := s.begin(ctx, "submit", actor)
	defer finish(&err)
	if err != nil {
		return result.Result{}, err
	}
	sl, err := s.loadSlot(ctx, input.GoalID, input.WindowID)
	if err != nil {
		return result.Result{}, err
	}
	if sl.goal.Status != goal.StatusActive {
		return result.Result{}, goal.ErrNotActive
	}
	if !sl.team.Active {
		return result.Result{}, ErrTeamInactive
	}
	if err := s.requireTeamWrite(ctx, actor, sl.team.SectorID, sl.team.ID); err != nil {
		return result.Result{}, err
	}
	input.GoalID = sl.goal.ID
	input.WindowID = sl.window.ID

	for attempt := 0; attempt < submitAttempts; attempt++ {
		var existing *result.Result
		current, err := s.store.GetResultBySlot(ctx, sl.goal.ID, sl.window.ID)
		switch {
		case err == nil:
			existing = &current
		case errors.Is(err, storage.ErrNotFound):
		default:
			return result.Result{}, fmt.Errorf("load result slot: %w", err)
		}

		next, changed, err := result.Submit(existing, input, actor, s.policy, s.now, s.newID)
		if err != nil {
			return result.Result{}, err
		}
		if !changed {
			return next, nil
		}

		if existing == nil {
			err = s.store.CreateResult(ctx, next)
			if errors.Is(err, storage.ErrAlreadyExists) {
				continue
			}
			if err != nil {
				return result.Result{}, fmt.Errorf("create result: %w", err)
			}
			s.publishResult(ctx, actor, events.ResultSubmitted, next, sl.team.ID)
			return next, nil
		}

		err = s.store.CompareAndSwapResult(ctx, next, existing.Status)
		if errors.Is(err, storage.ErrPreconditionFailed) {
			continue
		}
		if err != nil {
			return result.Result{}, notFound(err, "result")
		}
		if existing.Status != next.Status {
			s.metrics.Transition("result", string(existing.Status), string(next.Status))
			s.publishResult(ctx, actor, events.ResultReopened, next, sl.team.ID)
		}
		s.publishResult(ctx, actor, events.ResultAmended, next, sl.team.ID)
		return next, nil
	}
	return result.Result{}, result.ErrAlreadyProcessed
}

// Amend replaces the content of an existing result.
func (s *Service) Amend(ctx context.Context, actor access.Actor, resultID string, content result.Content) (_ result.Result, err error) {
	ctx, finish, err := s.begin(ctx, "amend", actor)
	defer finish(&err)
	if err != nil {
		return result.Result{}, err
	}
	current, sl, err := s.loadResultForWrite(ctx, actor, resultID)
	if err != nil {
		return result.Result{}, err
	}
	next, err := result.Amend(current, content, actor, s.now)
	if err != nil {
		return result.Result{}, err
	}
	if err := s.swapResult(ctx, next, current.Status); err != nil {
		return result.Result{}, err
	}
	s.publishResult(ctx, actor, events.ResultAmended, next, sl.team.ID)
	return next, nil
}

// AttachEvidence appends evidence file metadata to a result.
func (s *Service) AttachEvidence(ctx context.Context, actor access.Actor, resultID string, file result.EvidenceFile) (_ result.Result, err error) {
	ctx, finish, err := s.begin(ctx, "attach_evidence", actor)
	defer finish(&err)
	if err != nil {
		return result.Result{}, err
	}
	current, sl, err := s.loadResultForWrite(ctx, actor, resultID)
	if err != nil {
		return result.Result{}, err
	}
	next, err := result.AttachEvidence(current, file, actor, s.now)
	if err != nil {
		return result.Result{}, err
	}
	if err := s.swapResult(ctx, next, current.Status); err != nil {
		return result.Result{}, err
	}
	s.publishResult(ctx, actor, events.ResultEvidenceAttached, next, sl.team.ID)
	return next, nil
}

// Approve finalizes a pending result. Of two concurrent reviews exactly one
// wins; the other gets ErrAlreadyProcessed.
func (s *Service) Approve(ctx context.Context, actor access.Actor, resultID, comment string) (_ result.Result, err error) {
	ctx, finish, err := s.begin(ctx, "approve", actor)
	defer finish(&err)
	if err != nil {
		return result.Result{}, err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return result.Result{}, err
	}
	current, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return result.Result{}, notFound(err, "result")
	}
	next, err := result.Approve(current, actor, comment, s.now)
	if err != nil {
		return result.Result{}, err
	}
	stored, err := s.reviewResult(ctx, next, current.Status)
	if err != nil {
		return result.Result{}, err
	}
	s.metrics.Transition("result", string(current.Status), string(stored.Status))
	s.publishResult(ctx, actor, events.ResultApproved, stored, s.teamOf(ctx, stored.GoalID))
	return stored, nil
}

// Reject finalizes a pending result with a reason.
func (s *Service) Reject(ctx context.Context, actor access.Actor, resultID, reason string) (_ result.Result, err error) {
	ctx, finish, err := s.begin(ctx, "reject", actor)
	defer finish(&err)
	if err != nil {
		return result.Result{}, err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return result.Result{}, err
	}
	current, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return result.Result{}, notFound(err, "result")
	}
	next, err := result.Reject(current, actor, reason, s.now)
	if err != nil {
		return result.Result{}, err
	}
	stored, err := s.reviewResult(ctx, next, current.Status)
	if err != nil {
		return result.Result{}, err
	}
	s.metrics.Transition("result", string(current.Status), string(stored.Status))
	s.publishResult(ctx, actor, events.ResultRejected, stored, s.teamOf(ctx, stored.GoalID))
	return stored, nil
}

// Reopen returns a finalized result to pending when the policy allows it.
func (s *Service) Reopen(ctx context.Context, actor access.Actor, resultID string) (_ result.Result, err error) {
	ctx, finish, err := s.begin(ctx, "reopen", actor)
	defer finish(&err)
	if err != nil {
		return result.Result{}, err
	}
	if err := access.RequireAdmin(actor); err != nil {
		return result.Result{}, err
	}
	current, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return result.Result{}, notFound(err, "result")
	}
	next, err := result.Reopen(current, actor, s.policy, s.now)
	if err != nil {
		return result.Result{}, err
	}
	stored, err := s.reviewResult(ctx, next, current.Status)
	if err != nil {
		return result.Result{}, err
	}
	s.metrics.Transition("result", string(current.Status), string(stored.Status))
	s.publishResult(ctx, actor, events.ResultReopened, stored, s.teamOf(ctx, stored.GoalID))
	return stored, nil
}

// GetResult returns one result.
func (s *Service) GetResult(ctx context.Context, actor access.Actor, resultID string) (_ result.Result, err error) {
	ctx, finish, err := s.begin(ctx, "get_result", actor)
	defer finish(&err)
	if err != nil {
		return result.Result{}, err
	}
	r, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return result.Result{}, notFound(err, "result")
	}
	return r, nil
}

// ListResultsInput selects a page of results.
type ListResultsInput struct {
	// Filter is an AIP-160 expression over goal_id, window_id, status,
	// submitted_by, reviewed_by, create_time and update_time.
	Filter    string
	PageSize  int
	PageToken string
}

// ListResults returns one page of results, oldest first.
func (s *Service) ListResults(ctx context.Context, actor access.Actor, input ListResultsInput) (_ storage.ResultPage, err error) {
	ctx, finish, err := s.begin(ctx, "list_results", actor)
	defer finish(&err)
	if err != nil {
		return storage.ResultPage{}, err
	}
	cond, err := filter.Parse(input.Filter)
	if err != nil {
		return storage.ResultPage{}, err
	}
	page, err := s.store.ListResults(ctx, storage.ResultQuery{
		Filter:    cond,
		PageSize:  pageLimits.Clamp(input.PageSize),
		PageToken: input.PageToken,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidPageToken) {
			return storage.ResultPage{}, ErrPageTokenInvalid
		}
		return storage.ResultPage{}, err
	}
	return page, nil
}

// PendingApproval is a pending result with the names a reviewer needs.
type PendingApproval struct {
	Result      result.Result
	GoalName    string
	GoalTarget  string
	TeamID      string
	TeamName    string
	SectorID    string
	SectorName  string
	WindowKey   string
	WindowLabel string
	// Progress is the value as a percentage of the goal target, nil when
	// either is not numeric.
	Progress *int
}

// ListPendingApprovals returns every pending result, oldest first, limited
// to sectorID when set.
func (s *Service) ListPendingApprovals(ctx context.Context, actor access.Actor, sectorID string) (_ []PendingApproval, err error) {
	ctx, finish, err := s.begin(ctx, "list_pending_approvals", actor)
	defer finish(&err)
	if err != nil {
		return nil, err
	}

	pending := &filter.Condition{Field: filter.FieldStatus, Op: filter.OpEq, Value: string(result.StatusPending)}
	goals := map[string]goal.Goal{}
	teams := map[string]org.Team{}
	sectors := map[string]org.Sector{}
	windows := map[string]period.Window{}

	var out []PendingApproval
	token := ""
	for {
		page, err := s.store.ListResults(ctx, storage.ResultQuery{
			Filter:    pending,
			PageSize:  maxPageSize,
			PageToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list pending results: %w", err)
		}
		for _, r := range page.Results {
			g, ok := goals[r.GoalID]
			if !ok {
				if g, err = s.store.GetGoal(ctx, r.GoalID); err != nil {
					return nil, fmt.Errorf("load goal %s: %w", r.GoalID, err)
				}
				goals[r.GoalID] = g
			}
			team, ok := teams[g.TeamID]
			if !ok {
				if team, err = s.store.GetTeam(ctx, g.TeamID); err != nil {
					return nil, fmt.Errorf("load team %s: %w", g.TeamID, err)
				}
				teams[g.TeamID] = team
			}
			if sectorID != "" && team.SectorID != sectorID {
				continue
			}
			sector, ok := sectors[team.SectorID]
			if !ok {
				if sector, err = s.store.GetSector(ctx, team.SectorID); err != nil {
					return nil, fmt.Errorf("load sector %s: %w", team.SectorID, err)
				}
				sectors[team.SectorID] = sector
			}
			w, ok := windows[r.WindowID]
			if !ok {
				if w, err = s.store.GetWindow(ctx, r.WindowID); err != nil {
					return nil, fmt.Errorf("load window %s: %w", r.WindowID, err)
				}
				windows[r.WindowID] = w
			}
			out = append(out, PendingApproval{
				Result:      r,
				GoalName:    g.Name,
				GoalTarget:  g.Target,
				TeamID:      team.ID,
				TeamName:    team.Name,
				SectorID:    sector.ID,
				SectorName:  sector.Name,
				WindowKey:   w.Key,
				WindowLabel: w.Label,
				Progress:    dashboard.Progress(r.Value, g.Target),
			})
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		token = page.NextPageToken
	}
}

// SubmissionContext is what a submitter sees before filing a result.
type SubmissionContext struct {
	Goal   goal.Goal
	Window period.Window
	Team   org.Team
	// EvidenceFileName is the suggested name for the evidence file.
	EvidenceFileName string
	// Existing is the current entry for the slot, if any.
	Existing *result.Result
	// CanSubmit reports whether actor may submit for the slot now.
	CanSubmit bool
}

// SubmissionContext loads the submission form read model of a slot.
func (s *Service) SubmissionContext(ctx context.Context, actor access.Actor, goalID, windowID string) (_ SubmissionContext, err error) {
	ctx, finish, err := s.begin(ctx, "submission_context", actor)
	defer finish(&err)
	if err != nil {
		return SubmissionContext{}, err
	}
	sl, err := s.loadSlot(ctx, goalID, windowID)
	if err != nil {
		return SubmissionContext{}, err
	}
	out := SubmissionContext{
		Goal:             sl.goal,
		Window:           sl.window,
		Team:             sl.team,
		EvidenceFileName: result.EvidenceFileName(sl.goal.Name, sl.window.Key),
	}
	existing, err := s.store.GetResultBySlot(ctx, sl.goal.ID, sl.window.ID)
	switch {
	case err == nil:
		out.Existing = &existing
	case !errors.Is(err, storage.ErrNotFound):
		return SubmissionContext{}, fmt.Errorf("load result slot: %w", err)
	}

	writable := sl.goal.Status == goal.StatusActive && sl.team.Active &&
		s.requireTeamWrite(ctx, actor, sl.team.SectorID, sl.team.ID) == nil
	if writable && out.Existing != nil && !actor.IsAdmin() {
		writable = !out.Existing.Status.Finalized() && out.Existing.SubmittedBy == actor.UserID
	}
	out.CanSubmit = writable
	return out, nil
}

// loadResultForWrite loads resultID and checks that actor may write on
// behalf of its team.
func (s *Service) loadResultForWrite(ctx context.Context, actor access.Actor, resultID string) (result.Result, slot, error) {
	current, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return result.Result{}, slot{}, notFound(err, "result")
	}
	sl, err := s.loadSlot(ctx, current.GoalID, current.WindowID)
	if err != nil {
		return result.Result{}, slot{}, err
	}
	if err := s.requireTeamWrite(ctx, actor, sl.team.SectorID, sl.team.ID); err != nil {
		return result.Result{}, slot{}, err
	}
	return current, sl, nil
}

// swapResult stores next if the entry still has status expected.
func (s *Service) swapResult(ctx context.Context, next result.Result, expected result.Status) error {
	err := s.store.CompareAndSwapResult(ctx, next, expected)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrPreconditionFailed):
		return result.ErrAlreadyProcessed
	default:
		return notFound(err, "result")
	}
}

// reviewResult stores the review fields of next if the entry still has
// status expected, and returns the stored entry.
func (s *Service) reviewResult(ctx context.Context, next result.Result, expected result.Status) (result.Result, error) {
	stored, err := s.store.ReviewResult(ctx, next, expected)
	switch {
	case err == nil:
		return stored, nil
	case errors.Is(err, storage.ErrPreconditionFailed):
		return result.Result{}, result.ErrAlreadyProcessed
	default:
		return result.Result{}, notFound(err, "result")
	}
}

// teamOf returns the team id of goalID for event routing, or "" when the
// goal cannot be loaded.
func (s *Service) teamOf(ctx context.Context, goalID string) string {
	g, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return ""
	}
	return g.TeamID
}

func (s *Service) publishResult(ctx context.Context, actor access.Actor, eventType events.Type, r result.Result, teamID string) {
	s.publish(ctx, actor, eventType, r.ID, teamID, map[string]string{
		"goal_id":   r.GoalID,
		"window_id": r.WindowID,
		"status":    string(r.Status),
	})
}
