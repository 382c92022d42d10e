// Package storagetest holds the behavior every storage.Store backend must
// share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/domain/result"
	"github.com/louisbranch/metas/internal/services/metas/storage"
	"github.com/louisbranch/metas/internal/services/metas/storage/filter"
)

// Opener returns a fresh, empty store. The store is closed by the suite.
type Opener func(t *testing.T) storage.Store

var baseTime = time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)

// Fixture is the minimal org/period/goal graph results hang off.
type Fixture struct {
	Sector  org.Sector
	Team    org.Team
	Period  period.Period
	Windows []period.Window
	Goal    goal.Goal
}

func sequence(prefix string) func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("%s-%d", prefix, n), nil
	}
}

// Seed stores a sector, team, quarterly period and one active goal.
func Seed(t *testing.T, store storage.Store, suffix string) Fixture {
	t.Helper()
	ctx := context.Background()
	now := func() time.Time { return baseTime }

	sector, err := org.CreateSector(org.SectorInput{Name: "Operations " + suffix}, now, sequence("sector-"+suffix))
	if err != nil {
		t.Fatalf("build sector: %v", err)
	}
	if err := store.CreateSector(ctx, sector); err != nil {
		t.Fatalf("create sector: %v", err)
	}
	team, err := org.CreateTeam(org.TeamInput{SectorID: sector.ID, Name: "Logistics " + suffix}, now, sequence("team-"+suffix))
	if err != nil {
		t.Fatalf("build team: %v", err)
	}
	if err := store.CreateTeam(ctx, team); err != nil {
		t.Fatalf("create team: %v", err)
	}
	p, windows, err := period.CreatePeriod(period.CreatePeriodInput{
		Name:    "2025 " + suffix,
		Start:   time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
		Cadence: period.CadenceQuarterly,
	}, now, sequence("period-"+suffix))
	if err != nil {
		t.Fatalf("build period: %v", err)
	}
	if err := store.CreatePeriod(ctx, p, windows); err != nil {
		t.Fatalf("create period: %v", err)
	}
	admin := access.Actor{UserID: "admin", Role: access.RoleAdmin}
	g, err := goal.CreateGoal(goal.CreateGoalInput{
		Name:     "On-time delivery " + suffix,
		TeamID:   team.ID,
		PeriodID: p.ID,
		Weight:   40,
		Target:   "95",
	}, p, admin, now, sequence("goal-"+suffix))
	if err != nil {
		t.Fatalf("build goal: %v", err)
	}
	if err := store.CreateGoal(ctx, g); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	return Fixture{Sector: sector, Team: team, Period: p, Windows: windows, Goal: g}
}

func pendingResult(id string, g goal.Goal, w period.Window, at time.Time) result.Result {
	return result.Result{
		ID:                id,
		GoalID:            g.ID,
		WindowID:          w.ID,
		Value:             "93",
		Observation:       "two late trucks",
		EvidenceConfirmed: true,
		Status:            result.StatusPending,
		SubmittedBy:       "launcher-1",
		SubmittedAt:       at,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
}

// Run exercises open against the shared storage contract.
func Run(t *testing.T, open Opener) {
	t.Run("org", func(t *testing.T) { testOrg(t, open) })
	t.Run("periods", func(t *testing.T) { testPeriods(t, open) })
	t.Run("goals", func(t *testing.T) { testGoals(t, open) })
	t.Run("results", func(t *testing.T) { testResults(t, open) })
	t.Run("result review", func(t *testing.T) { testResultReview(t, open) })
	t.Run("result pages", func(t *testing.T) { testResultPages(t, open) })
	t.Run("grants", func(t *testing.T) { testGrants(t, open) })
}

func openStore(t *testing.T, open Opener) storage.Store {
	t.Helper()
	store := open(t)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func testOrg(t *testing.T, open Opener) {
	store := openStore(t, open)
	ctx := context.Background()
	fx := Seed(t, store, "a")

	if err := store.CreateSector(ctx, fx.Sector); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate sector error = %v, want %v", err, storage.ErrAlreadyExists)
	}
	got, err := store.GetSector(ctx, fx.Sector.ID)
	if err != nil {
		t.Fatalf("get sector: %v", err)
	}
	if diff := cmp.Diff(fx.Sector, got); diff != "" {
		t.Fatalf("sector mismatch (-want +got):\n%s", diff)
	}

	team := fx.Team
	team.EvidenceLink = "https://drive.example.com/logistics"
	team.UpdatedAt = baseTime.Add(time.Hour)
	if err := store.UpdateTeam(ctx, team); err != nil {
		t.Fatalf("update team: %v", err)
	}
	gotTeam, err := store.GetTeam(ctx, team.ID)
	if err != nil {
		t.Fatalf("get team: %v", err)
	}
	if diff := cmp.Diff(team, gotTeam); diff != "" {
		t.Fatalf("team mismatch (-want +got):\n%s", diff)
	}

	other := Seed(t, store, "b")
	teams, err := store.ListTeams(ctx, other.Sector.ID)
	if err != nil {
		t.Fatalf("list teams: %v", err)
	}
	if len(teams) != 1 || teams[0].ID != other.Team.ID {
		t.Fatalf("teams for sector = %+v", teams)
	}
	all, err := store.ListTeams(ctx, "")
	if err != nil {
		t.Fatalf("list all teams: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all teams len = %d, want 2", len(all))
	}

	if err := store.DeleteSector(ctx, fx.Sector.ID); !errors.Is(err, storage.ErrInUse) {
		t.Fatalf("delete referenced sector error = %v, want %v", err, storage.ErrInUse)
	}
	empty, err := org.CreateSector(org.SectorInput{Name: "Empty"}, func() time.Time { return baseTime }, sequence("empty"))
	if err != nil {
		t.Fatalf("build sector: %v", err)
	}
	if err := store.CreateSector(ctx, empty); err != nil {
		t.Fatalf("create sector: %v", err)
	}
	if err := store.DeleteSector(ctx, empty.ID); err != nil {
		t.Fatalf("delete sector: %v", err)
	}
	if _, err := store.GetSector(ctx, empty.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get deleted sector error = %v, want %v", err, storage.ErrNotFound)
	}
	if err := store.DeleteSector(ctx, empty.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("delete missing sector error = %v, want %v", err, storage.ErrNotFound)
	}
	sectors, err := store.ListSectors(ctx)
	if err != nil {
		t.Fatalf("list sectors: %v", err)
	}
	if len(sectors) != 2 {
		t.Fatalf("sectors len = %d, want 2", len(sectors))
	}
}

func testPeriods(t *testing.T, open Opener) {
	store := openStore(t, open)
	ctx := context.Background()
	fx := Seed(t, store, "a")

	got, err := store.GetPeriod(ctx, fx.Period.ID)
	if err != nil {
		t.Fatalf("get period: %v", err)
	}
	if diff := cmp.Diff(fx.Period, got); diff != "" {
		t.Fatalf("period mismatch (-want +got):\n%s", diff)
	}
	windows, err := store.ListWindows(ctx, fx.Period.ID)
	if err != nil {
		t.Fatalf("list windows: %v", err)
	}
	if diff := cmp.Diff(fx.Windows, windows); diff != "" {
		t.Fatalf("windows mismatch (-want +got):\n%s", diff)
	}
	w, err := store.GetWindow(ctx, fx.Windows[2].ID)
	if err != nil {
		t.Fatalf("get window: %v", err)
	}
	if w.Key != "2025-07" {
		t.Fatalf("window key = %q, want 2025-07", w.Key)
	}

	renamed := fx.Period
	renamed.Name = "Fiscal 2025"
	renamed.Active = false
	renamed.Start = renamed.Start.AddDate(0, 1, 0)
	renamed.UpdatedAt = baseTime.Add(time.Hour)
	if err := store.UpdatePeriod(ctx, renamed); err != nil {
		t.Fatalf("update period: %v", err)
	}
	got, err = store.GetPeriod(ctx, fx.Period.ID)
	if err != nil {
		t.Fatalf("get period: %v", err)
	}
	if got.Name != "Fiscal 2025" || got.Active {
		t.Fatalf("period after update = %+v", got)
	}
	if !got.Start.Equal(fx.Period.Start) {
		t.Fatalf("period start changed to %s", got.Start)
	}

	if err := store.CreatePeriod(ctx, fx.Period, fx.Windows); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate period error = %v, want %v", err, storage.ErrAlreadyExists)
	}
	if _, err := store.GetPeriod(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing period error = %v, want %v", err, storage.ErrNotFound)
	}
	if err := store.UpdatePeriod(ctx, period.Period{ID: "missing", Name: "x"}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update missing period error = %v, want %v", err, storage.ErrNotFound)
	}
}

func testGoals(t *testing.T, open Opener) {
	store := openStore(t, open)
	ctx := context.Background()
	fx := Seed(t, store, "a")

	got, err := store.GetGoal(ctx, fx.Goal.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if diff := cmp.Diff(fx.Goal, got); diff != "" {
		t.Fatalf("goal mismatch (-want +got):\n%s", diff)
	}

	suggested := fx.Goal
	suggested.ID = "goal-suggested"
	suggested.Name = "Fleet utilization"
	suggested.Status = goal.StatusSuggested
	if err := store.CreateGoal(ctx, suggested); err != nil {
		t.Fatalf("create suggested goal: %v", err)
	}
	if err := store.CreateGoal(ctx, suggested); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate goal error = %v, want %v", err, storage.ErrAlreadyExists)
	}

	active, err := store.ListGoals(ctx, storage.GoalFilter{TeamID: fx.Team.ID, Status: goal.StatusActive})
	if err != nil {
		t.Fatalf("list active goals: %v", err)
	}
	if len(active) != 1 || active[0].ID != fx.Goal.ID {
		t.Fatalf("active goals = %+v", active)
	}
	all, err := store.ListGoals(ctx, storage.GoalFilter{PeriodID: fx.Period.ID})
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Fleet utilization" {
		t.Fatalf("goals = %+v", all)
	}

	suggested.Status = goal.StatusActive
	suggested.Weight = 60
	suggested.UpdatedAt = baseTime.Add(time.Hour)
	if err := store.UpdateGoal(ctx, suggested); err != nil {
		t.Fatalf("update goal: %v", err)
	}
	got, err = store.GetGoal(ctx, suggested.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if diff := cmp.Diff(suggested, got); diff != "" {
		t.Fatalf("updated goal mismatch (-want +got):\n%s", diff)
	}
}

func testResults(t *testing.T, open Opener) {
	store := openStore(t, open)
	ctx := context.Background()
	fx := Seed(t, store, "a")

	r := pendingResult("result-1", fx.Goal, fx.Windows[0], baseTime)
	if err := store.CreateResult(ctx, r); err != nil {
		t.Fatalf("create result: %v", err)
	}
	dup := pendingResult("result-2", fx.Goal, fx.Windows[0], baseTime)
	if err := store.CreateResult(ctx, dup); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate slot error = %v, want %v", err, storage.ErrAlreadyExists)
	}

	got, err := store.GetResultBySlot(ctx, fx.Goal.ID, fx.Windows[0].ID)
	if err != nil {
		t.Fatalf("get result by slot: %v", err)
	}
	if diff := cmp.Diff(r, got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	if _, err := store.GetResultBySlot(ctx, fx.Goal.ID, fx.Windows[1].ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("empty slot error = %v, want %v", err, storage.ErrNotFound)
	}

	reviewedAt := baseTime.Add(2 * time.Hour)
	approved := r
	approved.Status = result.StatusApproved
	approved.ReviewedBy = "admin"
	approved.ReviewedAt = &reviewedAt
	approved.ReviewComment = "ok"
	approved.Evidence = []result.EvidenceFile{{
		Name:       "META_On-time_MES_2025-01.pdf",
		URL:        "https://files.example.com/1",
		Size:       2048,
		UploadedBy: "launcher-1",
		UploadedAt: baseTime.Add(time.Hour),
	}}
	approved.UpdatedAt = reviewedAt
	if err := store.CompareAndSwapResult(ctx, approved, result.StatusPending); err != nil {
		t.Fatalf("approve result: %v", err)
	}

	rejected := r
	rejected.Status = result.StatusRejected
	rejected.RejectionReason = "late"
	if err := store.CompareAndSwapResult(ctx, rejected, result.StatusPending); !errors.Is(err, storage.ErrPreconditionFailed) {
		t.Fatalf("second review error = %v, want %v", err, storage.ErrPreconditionFailed)
	}
	got, err = store.GetResult(ctx, r.ID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if diff := cmp.Diff(approved, got); diff != "" {
		t.Fatalf("approved result mismatch (-want +got):\n%s", diff)
	}

	missing := pendingResult("missing", fx.Goal, fx.Windows[1], baseTime)
	if err := store.CompareAndSwapResult(ctx, missing, result.StatusPending); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("swap missing result error = %v, want %v", err, storage.ErrNotFound)
	}

	second := pendingResult("result-3", fx.Goal, fx.Windows[1], baseTime.Add(time.Minute))
	if err := store.CreateResult(ctx, second); err != nil {
		t.Fatalf("create second result: %v", err)
	}
	results, err := store.ListResultsForGoals(ctx, []string{fx.Goal.ID, "other"})
	if err != nil {
		t.Fatalf("list results for goals: %v", err)
	}
	if len(results) != 2 || results[0].ID != r.ID {
		t.Fatalf("results for goals = %+v", results)
	}
	none, err := store.ListResultsForGoals(ctx, nil)
	if err != nil || len(none) != 0 {
		t.Fatalf("list results for no goals = %+v, %v", none, err)
	}
}

func testResultReview(t *testing.T, open Opener) {
	store := openStore(t, open)
	ctx := context.Background()
	fx := Seed(t, store, "a")

	r := pendingResult("result-1", fx.Goal, fx.Windows[0], baseTime)
	if err := store.CreateResult(ctx, r); err != nil {
		t.Fatalf("create result: %v", err)
	}

	editedAt := baseTime.Add(time.Hour)
	amended := r
	amended.Value = "120"
	amended.Observation = "recounted"
	amended.EditedBy = "admin-2"
	amended.EditedAt = &editedAt
	amended.UpdatedAt = editedAt
	if err := store.CompareAndSwapResult(ctx, amended, result.StatusPending); err != nil {
		t.Fatalf("amend result: %v", err)
	}

	// The review is built from the entry as it was before the amend.
	reviewedAt := baseTime.Add(2 * time.Hour)
	review := r
	review.Status = result.StatusApproved
	review.ReviewedBy = "admin"
	review.ReviewedAt = &reviewedAt
	review.ReviewComment = "ok"
	review.UpdatedAt = reviewedAt
	stored, err := store.ReviewResult(ctx, review, result.StatusPending)
	if err != nil {
		t.Fatalf("review result: %v", err)
	}

	want := amended
	want.Status = result.StatusApproved
	want.ReviewedBy = "admin"
	want.ReviewedAt = &reviewedAt
	want.ReviewComment = "ok"
	want.UpdatedAt = reviewedAt
	if diff := cmp.Diff(want, stored); diff != "" {
		t.Fatalf("reviewed result mismatch (-want +got):\n%s", diff)
	}
	got, err := store.GetResult(ctx, r.ID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stored result mismatch (-want +got):\n%s", diff)
	}

	rejected := r
	rejected.Status = result.StatusRejected
	rejected.RejectionReason = "late"
	if _, err := store.ReviewResult(ctx, rejected, result.StatusPending); !errors.Is(err, storage.ErrPreconditionFailed) {
		t.Fatalf("second review error = %v, want %v", err, storage.ErrPreconditionFailed)
	}
	missing := pendingResult("missing", fx.Goal, fx.Windows[1], baseTime)
	missing.Status = result.StatusApproved
	if _, err := store.ReviewResult(ctx, missing, result.StatusPending); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("review missing result error = %v, want %v", err, storage.ErrNotFound)
	}
}

func testResultPages(t *testing.T, open Opener) {
	store := openStore(t, open)
	ctx := context.Background()
	fx := Seed(t, store, "a")

	for i, w := range fx.Windows {
		r := pendingResult(fmt.Sprintf("result-%d", i), fx.Goal, w, baseTime.Add(time.Duration(i)*time.Minute))
		if i == 1 {
			r.Status = result.StatusApproved
		}
		if err := store.CreateResult(ctx, r); err != nil {
			t.Fatalf("create result %d: %v", i, err)
		}
	}

	pending, err := filter.Parse(`status = "pending"`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	pageOne, err := store.ListResults(ctx, storage.ResultQuery{Filter: pending, PageSize: 2})
	if err != nil {
		t.Fatalf("list page one: %v", err)
	}
	if ids := resultIDs(pageOne.Results); !cmp.Equal(ids, []string{"result-0", "result-2"}) {
		t.Fatalf("page one ids = %v", ids)
	}
	if pageOne.NextPageToken == "" {
		t.Fatal("expected page one next token")
	}
	pageTwo, err := store.ListResults(ctx, storage.ResultQuery{Filter: pending, PageSize: 2, PageToken: pageOne.NextPageToken})
	if err != nil {
		t.Fatalf("list page two: %v", err)
	}
	if ids := resultIDs(pageTwo.Results); !cmp.Equal(ids, []string{"result-3"}) {
		t.Fatalf("page two ids = %v", ids)
	}
	if pageTwo.NextPageToken != "" {
		t.Fatalf("page two next token = %q, want empty", pageTwo.NextPageToken)
	}

	recent, err := filter.Parse(`create_time >= timestamp("2025-03-03T12:02:00Z")`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	page, err := store.ListResults(ctx, storage.ResultQuery{Filter: recent, PageSize: 10})
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if ids := resultIDs(page.Results); !cmp.Equal(ids, []string{"result-2", "result-3"}) {
		t.Fatalf("recent ids = %v", ids)
	}

	if _, err := store.ListResults(ctx, storage.ResultQuery{PageSize: 2, PageToken: "nope"}); !errors.Is(err, storage.ErrInvalidPageToken) {
		t.Fatalf("bad token error = %v, want %v", err, storage.ErrInvalidPageToken)
	}
}

func resultIDs(results []result.Result) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	return ids
}

func testGrants(t *testing.T, open Opener) {
	store := openStore(t, open)
	ctx := context.Background()

	grant := access.Grant{
		ID:        "grant-1",
		UserID:    "launcher-1",
		SectorID:  "sector-1",
		GrantedBy: "admin",
		Active:    true,
		CreatedAt: baseTime,
	}
	if err := store.CreateGrant(ctx, grant); err != nil {
		t.Fatalf("create grant: %v", err)
	}
	other := access.Grant{
		ID:        "grant-2",
		UserID:    "launcher-2",
		TeamID:    "team-9",
		GrantedBy: "admin",
		Active:    true,
		CreatedAt: baseTime.Add(time.Minute),
	}
	if err := store.CreateGrant(ctx, other); err != nil {
		t.Fatalf("create grant: %v", err)
	}

	grant.Active = false
	if err := store.UpdateGrant(ctx, grant); err != nil {
		t.Fatalf("revoke grant: %v", err)
	}
	got, err := store.GetGrant(ctx, grant.ID)
	if err != nil {
		t.Fatalf("get grant: %v", err)
	}
	if diff := cmp.Diff(grant, got); diff != "" {
		t.Fatalf("grant mismatch (-want +got):\n%s", diff)
	}

	mine, err := store.ListGrants(ctx, "launcher-2")
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != other.ID {
		t.Fatalf("grants = %+v", mine)
	}
	all, err := store.ListGrants(ctx, "")
	if err != nil {
		t.Fatalf("list all grants: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all grants len = %d, want 2", len(all))
	}
	if _, err := store.GetGrant(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing grant error = %v, want %v", err, storage.ErrNotFound)
	}
}
