package goal

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
)

var (
	fixedNow = func() time.Time { return time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC) }
	fixedID  = func() (string, error) { return "goal-1", nil }
	q1       = period.Period{ID: "p1", Name: "2025", Cadence: period.CadenceQuarterly}
	admin    = access.Actor{UserID: "admin-1", Role: access.RoleAdmin}
	launcher = access.Actor{UserID: "launcher-1", Role: access.RoleLauncher}
)

func TestCreateGoalInheritsCadenceAndStatus(t *testing.T) {
	input := CreateGoalInput{Name: " Sales Q1 ", TeamID: "t1", PeriodID: "p1", Weight: 40, Target: "100"}

	created, err := CreateGoal(input, q1, admin, fixedNow, fixedID)
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	want := Goal{
		ID:        "goal-1",
		TeamID:    "t1",
		PeriodID:  "p1",
		Name:      "Sales Q1",
		Metric:    MetricNumeric,
		Cadence:   period.CadenceQuarterly,
		Weight:    40,
		Target:    "100",
		Status:    StatusActive,
		CreatedBy: "admin-1",
		CreatedAt: fixedNow(),
		UpdatedAt: fixedNow(),
	}
	if diff := cmp.Diff(want, created); diff != "" {
		t.Fatalf("goal mismatch (-want +got):\n%s", diff)
	}

	suggested, err := CreateGoal(input, q1, launcher, fixedNow, fixedID)
	if err != nil {
		t.Fatalf("create suggested goal: %v", err)
	}
	if suggested.Status != StatusSuggested {
		t.Fatalf("launcher goal status = %s, want suggested", suggested.Status)
	}
}

func TestCreateGoalValidation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateGoalInput
		want  error
	}{
		{name: "missing name", input: CreateGoalInput{TeamID: "t1", PeriodID: "p1"}, want: ErrNameEmpty},
		{name: "missing team", input: CreateGoalInput{Name: "x", PeriodID: "p1"}, want: ErrTeamMissing},
		{name: "missing period", input: CreateGoalInput{Name: "x", TeamID: "t1"}, want: ErrPeriodMissing},
		{name: "bad metric", input: CreateGoalInput{Name: "x", TeamID: "t1", PeriodID: "p1", Metric: "vibes"}, want: ErrMetricInvalid},
		{name: "negative weight", input: CreateGoalInput{Name: "x", TeamID: "t1", PeriodID: "p1", Weight: -1}, want: ErrWeightInvalid},
		{name: "weight over 100", input: CreateGoalInput{Name: "x", TeamID: "t1", PeriodID: "p1", Weight: 101}, want: ErrWeightInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateGoal(tt.input, q1, admin, fixedNow, fixedID)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !apperrors.IsKind(err, apperrors.KindValidation) {
				t.Fatalf("expected validation kind, got %s", apperrors.KindOf(err))
			}
		})
	}
}

func TestParseMetricTypeAliases(t *testing.T) {
	got, err := ParseMetricType("Monetario")
	if err != nil || got != MetricMonetary {
		t.Fatalf("parse = %q, %v", got, err)
	}
	got, err = ParseMetricType("")
	if err != nil || got != MetricNumeric {
		t.Fatalf("blank metric = %q, %v", got, err)
	}
}

func TestTransitionStatus(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusSuggested, StatusActive, true},
		{StatusSuggested, StatusRejected, true},
		{StatusActive, StatusInactive, true},
		{StatusInactive, StatusActive, true},
		{StatusSuggested, StatusInactive, false},
		{StatusActive, StatusRejected, false},
		{StatusActive, StatusSuggested, false},
		{StatusInactive, StatusRejected, false},
		{StatusRejected, StatusActive, false},
		{StatusActive, StatusActive, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			g := Goal{ID: "g1", Status: tt.from}
			updated, err := TransitionStatus(g, tt.to, fixedNow)
			if tt.allowed {
				if err != nil {
					t.Fatalf("transition: %v", err)
				}
				if updated.Status != tt.to {
					t.Fatalf("status = %s, want %s", updated.Status, tt.to)
				}
				return
			}
			if !apperrors.IsKind(err, apperrors.KindInvalidTransition) {
				t.Fatalf("expected invalid transition, got %v", err)
			}
		})
	}

	if _, err := TransitionStatus(Goal{Status: StatusActive}, Status("archived"), fixedNow); !errors.Is(err, ErrStatusInvalid) {
		t.Fatalf("expected unknown status error, got %v", err)
	}
}

func TestUpdateGoalKeepsOwnership(t *testing.T) {
	g := Goal{ID: "g1", TeamID: "t1", PeriodID: "p1", Name: "old", Cadence: period.CadenceMonthly, Status: StatusActive}
	updated, err := UpdateGoal(g, UpdateGoalInput{Name: "new", Metric: MetricScore, Weight: 25}, fixedNow)
	if err != nil {
		t.Fatalf("update goal: %v", err)
	}
	if updated.TeamID != "t1" || updated.Cadence != period.CadenceMonthly || updated.Status != StatusActive {
		t.Fatalf("ownership changed: %+v", updated)
	}
	if updated.Name != "new" || updated.Metric != MetricScore || updated.Weight != 25 {
		t.Fatalf("fields not applied: %+v", updated)
	}
}

func TestSummarizeWeights(t *testing.T) {
	goals := []Goal{
		{TeamID: "t1", PeriodID: "p1", Weight: 60, Status: StatusActive},
		{TeamID: "t1", PeriodID: "p1", Weight: 40, Status: StatusActive},
		{TeamID: "t1", PeriodID: "p1", Weight: 30, Status: StatusSuggested},
		{TeamID: "t1", PeriodID: "p2", Weight: 10, Status: StatusActive},
		{TeamID: "t2", PeriodID: "p1", Weight: 10, Status: StatusActive},
	}
	got := SummarizeWeights(goals, "t1", "p1")
	want := WeightSummary{TeamID: "t1", PeriodID: "p1", Total: 100, GoalCount: 2, Balanced: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if SummarizeWeights(goals, "t2", "p1").Balanced {
		t.Fatal("expected unbalanced summary")
	}
}
