package dashboard

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/domain/result"
)

func fixture(goalCount, windowCount int) Input {
	in := Input{
		Windows: map[string][]period.Window{},
		Teams: map[string]org.Team{
			"t1": {ID: "t1", SectorID: "s1", Name: "North"},
			"t2": {ID: "t2", SectorID: "s2", Name: "South"},
		},
		Sectors: map[string]org.Sector{
			"s1": {ID: "s1", Name: "Sales"},
			"s2": {ID: "s2", Name: "Ops"},
		},
	}
	for w := 1; w <= windowCount; w++ {
		in.Windows["p1"] = append(in.Windows["p1"], period.Window{
			ID:       fmt.Sprintf("w%d", w),
			PeriodID: "p1",
			Key:      fmt.Sprintf("2025-%02d", w),
			Ordinal:  w,
		})
	}
	for g := 1; g <= goalCount; g++ {
		team := "t1"
		if g%2 == 0 {
			team = "t2"
		}
		in.Goals = append(in.Goals, goal.Goal{
			ID:       fmt.Sprintf("g%d", g),
			TeamID:   team,
			PeriodID: "p1",
			Name:     fmt.Sprintf("Goal %d", g),
			Status:   goal.StatusActive,
			Target:   "200",
		})
	}
	return in
}

func TestBuildWithoutResultsIsAllPending(t *testing.T) {
	const goals, windows = 3, 4
	got := Build(fixture(goals, windows), Filter{})

	if got.Summary.TotalCells != goals*windows || got.Summary.PendingCells != goals*windows {
		t.Fatalf("unexpected summary: %+v", got.Summary)
	}
	for _, row := range got.Rows {
		if len(row.Cells) != windows {
			t.Fatalf("row %s has %d cells", row.Goal.ID, len(row.Cells))
		}
		for _, cell := range row.Cells {
			if cell.State != CellPending {
				t.Fatalf("cell %s/%s = %s", row.Goal.ID, cell.WindowID, cell.State)
			}
		}
	}
	if got.Summary.ApprovalRate != 0 {
		t.Fatalf("approval rate = %v", got.Summary.ApprovalRate)
	}
}

func TestBuildJoinsResultsAndAggregates(t *testing.T) {
	in := fixture(2, 3)
	in.Goals = append(in.Goals, goal.Goal{ID: "g-inactive", TeamID: "t1", PeriodID: "p1", Status: goal.StatusInactive})
	in.Results = []result.Result{
		{ID: "r1", GoalID: "g1", WindowID: "w1", Value: "150", Status: result.StatusApproved},
		{ID: "r2", GoalID: "g1", WindowID: "w2", Value: "x", Status: result.StatusRejected},
		{ID: "r3", GoalID: "g2", WindowID: "w1", Value: "10", Status: result.StatusPending, Reopened: true},
		{ID: "r4", GoalID: "g2", WindowID: "w2", Value: "10", Status: result.StatusPending},
		{ID: "r5", GoalID: "g-inactive", WindowID: "w1", Status: result.StatusApproved},
	}

	got := Build(in, Filter{})
	want := Summary{
		TotalGoals:       2,
		TotalCells:       6,
		LaunchedCells:    4,
		PendingCells:     2,
		PendingApprovals: 2,
		Approved:         1,
		Rejected:         1,
		ApprovalRate:     33.3,
	}
	if diff := cmp.Diff(want, got.Summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}

	first := got.Rows[0]
	if first.Goal.ID != "g1" || first.TeamName != "North" || first.SectorName != "Sales" {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if p := first.Cells[0].Progress; p == nil || *p != 75 {
		t.Fatalf("progress = %v, want 75", p)
	}
	if first.Cells[1].Progress != nil {
		t.Fatal("non-numeric value must not report progress")
	}
}

func TestBuildFilters(t *testing.T) {
	in := fixture(4, 2)
	in.Results = []result.Result{{ID: "r1", GoalID: "g1", WindowID: "w1", Status: result.StatusPending}}

	bySector := Build(in, Filter{SectorID: "s2"})
	for _, row := range bySector.Rows {
		if row.SectorID != "s2" {
			t.Fatalf("row from sector %s leaked through filter", row.SectorID)
		}
	}
	if bySector.Summary.TotalGoals != 2 {
		t.Fatalf("expected 2 goals in s2, got %d", bySector.Summary.TotalGoals)
	}

	launched := Build(in, Filter{State: CellLaunched})
	if len(launched.Rows) != 1 || len(launched.Rows[0].Cells) != 1 || launched.Summary.TotalCells != 1 {
		t.Fatalf("unexpected launched projection: %+v", launched)
	}

	if none := Build(in, Filter{PeriodID: "p2"}); len(none.Rows) != 0 {
		t.Fatalf("expected no rows for unknown period, got %d", len(none.Rows))
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		value  string
		target string
		want   *int
	}{
		{"50", "200", intPtr(25)},
		{"1.234,5", "1234,5", intPtr(100)},
		{"80%", "100%", intPtr(80)},
		{"abc", "100", nil},
		{"10", "0", nil},
		{"10", "", nil},
	}
	for _, tt := range tests {
		got := Progress(tt.value, tt.target)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Fatalf("Progress(%q, %q) mismatch (-want +got):\n%s", tt.value, tt.target, diff)
		}
	}
}

func TestApprovalRate(t *testing.T) {
	if got := ApprovalRate(3, 1, 0); got != 75 {
		t.Fatalf("rate = %v", got)
	}
	if got := ApprovalRate(0, 0, 0); got != 0 {
		t.Fatalf("rate = %v", got)
	}
}

func intPtr(v int) *int { return &v }
