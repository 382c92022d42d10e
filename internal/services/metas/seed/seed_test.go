package seed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/service"
	"github.com/louisbranch/metas/internal/services/metas/storage"
	"github.com/louisbranch/metas/internal/services/metas/storage/badger"
)

var admin = access.Actor{UserID: "admin-1", Role: access.RoleAdmin}

func newService(t *testing.T) *service.Service {
	t.Helper()
	store, err := badger.Open(badger.InMemoryConfig())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	svc, err := service.New(service.Config{Store: store})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestLoadFile(t *testing.T) {
	f, err := LoadFile("testdata/seed.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Period{Name: "2025", Start: "2025-01-01", End: "2025-12-31", Cadence: "quarterly", Locale: "pt-BR"}
	if diff := cmp.Diff([]Period{want}, f.Periods); diff != "" {
		t.Fatalf("periods mismatch (-want +got):\n%s", diff)
	}
	if len(f.Sectors) != 2 || len(f.Sectors[0].Teams) != 2 || len(f.Goals) != 3 || len(f.Grants) != 2 {
		t.Fatalf("unexpected fixture shape: %+v", f)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "empty", raw: "", want: "empty"},
		{name: "unknown key", raw: "sectors:\n  - name: Ops\n    color: red\n", want: "color"},
		{name: "malformed", raw: "sectors: [", want: "decode seed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.raw))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		f    Fixture
		want string
	}{
		{name: "nothing", f: Fixture{}, want: ErrEmpty.Error()},
		{name: "unnamed team", f: Fixture{Sectors: []Sector{{Name: "Ops", Teams: []Team{{}}}}}, want: "sectors[0].teams[0]"},
		{name: "goal without period", f: Fixture{Goals: []Goal{{Name: "G", Team: "T"}}}, want: "goals[0]"},
		{name: "grant without user", f: Fixture{Grants: []Grant{{Team: "T"}}}, want: "grants[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.f.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	f, err := LoadFile("testdata/seed.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	report, err := Apply(ctx, svc, admin, f, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// 2 sectors + 3 teams + 1 period + 3 goals + 2 grants
	if diff := cmp.Diff(Report{Created: 11}, report); diff != "" {
		t.Fatalf("first report mismatch (-want +got):\n%s", diff)
	}

	report, err = Apply(ctx, svc, admin, f, nil)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if diff := cmp.Diff(Report{Skipped: 11}, report); diff != "" {
		t.Fatalf("second report mismatch (-want +got):\n%s", diff)
	}

	teams, err := svc.ListTeams(ctx, admin, "")
	if err != nil {
		t.Fatalf("list teams: %v", err)
	}
	var logistics string
	for _, team := range teams {
		if team.Name == "Logistics" {
			logistics = team.ID
			if team.EvidenceLink == "" {
				t.Fatal("expected evidence link to be seeded")
			}
		}
	}
	periods, err := svc.ListPeriods(ctx, admin)
	if err != nil || len(periods) != 1 {
		t.Fatalf("list periods: %v (%d)", err, len(periods))
	}
	summary, err := svc.WeightSummary(ctx, admin, logistics, periods[0].ID)
	if err != nil {
		t.Fatalf("weight summary: %v", err)
	}
	if !summary.Balanced || summary.GoalCount != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	goals, err := svc.ListGoals(ctx, admin, storage.GoalFilter{TeamID: logistics})
	if err != nil || len(goals) != 2 {
		t.Fatalf("list goals: %v (%d)", err, len(goals))
	}
}

func TestApplyUnknownReference(t *testing.T) {
	svc := newService(t)
	f := Fixture{
		Sectors: []Sector{{Name: "Ops", Teams: []Team{{Name: "Logistics"}}}},
		Goals:   []Goal{{Name: "G", Team: "Fleet", Period: "2025"}},
	}
	report, err := Apply(context.Background(), svc, admin, f, nil)
	if err == nil || !strings.Contains(err.Error(), `unknown team "Fleet"`) {
		t.Fatalf("err = %v", err)
	}
	if report.Created != 2 {
		t.Fatalf("created = %d, want 2 before the failure", report.Created)
	}
}

func TestApplyRequiresAdmin(t *testing.T) {
	svc := newService(t)
	viewer := access.Actor{UserID: "viewer-1", Role: access.RoleViewer}
	_, err := Apply(context.Background(), svc, viewer, Fixture{Sectors: []Sector{{Name: "Ops"}}}, nil)
	if !errors.Is(err, access.ErrPermissionDenied) {
		t.Fatalf("err = %v, want permission denied", err)
	}
}
