package period

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateWindowsMonthlyHalfYear(t *testing.T) {
	windows, err := GenerateWindows(day(2025, 1, 1), day(2025, 6, 30), CadenceMonthly)
	if err != nil {
		t.Fatalf("generate windows: %v", err)
	}

	var labels []string
	for i, window := range windows {
		if window.Ordinal != i+1 {
			t.Fatalf("window %d ordinal = %d", i, window.Ordinal)
		}
		labels = append(labels, window.Label)
	}
	want := []string{"Jan 2025", "Feb 2025", "Mar 2025", "Apr 2025", "May 2025", "Jun 2025"}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}
	if windows[1].Key != "2025-02" || !windows[1].End.Equal(day(2025, 2, 28)) {
		t.Fatalf("unexpected february window: %+v", windows[1])
	}
}

func TestGenerateWindowsCadences(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Time
		end     time.Time
		cadence Cadence
		labels  []string
		keys    []string
	}{
		{
			name:    "quarterly full year",
			start:   day(2025, 1, 1),
			end:     day(2025, 12, 31),
			cadence: CadenceQuarterly,
			labels:  []string{"Jan–Mar 2025", "Apr–Jun 2025", "Jul–Sep 2025", "Oct–Dec 2025"},
			keys:    []string{"2025-01", "2025-04", "2025-07", "2025-10"},
		},
		{
			name:    "quarterly single window",
			start:   day(2025, 1, 1),
			end:     day(2025, 3, 31),
			cadence: CadenceQuarterly,
			labels:  []string{"Jan–Mar 2025"},
			keys:    []string{"2025-01"},
		},
		{
			name:    "partial final window",
			start:   day(2025, 1, 1),
			end:     day(2025, 4, 15),
			cadence: CadenceQuarterly,
			labels:  []string{"Jan–Mar 2025", "Apr 2025"},
			keys:    []string{"2025-01", "2025-04"},
		},
		{
			name:    "crossing years",
			start:   day(2025, 11, 1),
			end:     day(2026, 4, 30),
			cadence: CadenceQuarterly,
			labels:  []string{"Nov 2025–Jan 2026", "Feb–Apr 2026"},
			keys:    []string{"2025-11", "2026-02"},
		},
		{
			name:    "four-monthly",
			start:   day(2025, 1, 1),
			end:     day(2025, 12, 31),
			cadence: CadenceFourMonthly,
			labels:  []string{"Jan–Apr 2025", "May–Aug 2025", "Sep–Dec 2025"},
			keys:    []string{"2025-01", "2025-05", "2025-09"},
		},
		{
			name:    "annual",
			start:   day(2024, 1, 1),
			end:     day(2025, 12, 31),
			cadence: CadenceAnnual,
			labels:  []string{"Jan–Dec 2024", "Jan–Dec 2025"},
			keys:    []string{"2024-01", "2025-01"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows, err := GenerateWindows(tt.start, tt.end, tt.cadence)
			if err != nil {
				t.Fatalf("generate windows: %v", err)
			}
			var labels, keys []string
			for _, window := range windows {
				labels = append(labels, window.Label)
				keys = append(keys, window.Key)
			}
			if diff := cmp.Diff(tt.labels, labels); diff != "" {
				t.Fatalf("labels mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.keys, keys); diff != "" {
				t.Fatalf("keys mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerateWindowsClampsAnchorDay(t *testing.T) {
	windows, err := GenerateWindows(day(2025, 1, 31), day(2025, 4, 29), CadenceMonthly)
	if err != nil {
		t.Fatalf("generate windows: %v", err)
	}
	starts := []time.Time{day(2025, 1, 31), day(2025, 2, 28), day(2025, 3, 31)}
	ends := []time.Time{day(2025, 2, 27), day(2025, 3, 30), day(2025, 4, 29)}
	if len(windows) != len(starts) {
		t.Fatalf("expected %d windows, got %d", len(starts), len(windows))
	}
	for i, window := range windows {
		if !window.Start.Equal(starts[i]) || !window.End.Equal(ends[i]) {
			t.Fatalf("window %d = %s..%s", i, window.Start.Format(DateLayout), window.End.Format(DateLayout))
		}
	}
}

// Every cadence over a spread of ranges must partition [start, end] exactly.
func TestGenerateWindowsPartitionsRange(t *testing.T) {
	cadences := []Cadence{CadenceMonthly, CadenceBimonthly, CadenceQuarterly, CadenceFourMonthly, CadenceSemiannual, CadenceAnnual}
	starts := []time.Time{day(2024, 1, 1), day(2024, 2, 29), day(2025, 1, 31), day(2025, 7, 15)}
	lengths := []int{1, 27, 45, 180, 365, 800}

	for _, cadence := range cadences {
		for _, start := range starts {
			for _, length := range lengths {
				end := start.AddDate(0, 0, length)
				t.Run(fmt.Sprintf("%s/%s/%d", cadence, start.Format(DateLayout), length), func(t *testing.T) {
					windows, err := GenerateWindows(start, end, cadence)
					if err != nil {
						t.Fatalf("generate windows: %v", err)
					}
					if len(windows) == 0 {
						t.Fatal("expected windows")
					}
					if !windows[0].Start.Equal(start) {
						t.Fatalf("first window starts %v, want %v", windows[0].Start, start)
					}
					if !windows[len(windows)-1].End.Equal(end) {
						t.Fatalf("last window ends %v, want %v", windows[len(windows)-1].End, end)
					}
					keys := map[string]bool{}
					for i, window := range windows {
						if window.Ordinal != i+1 {
							t.Fatalf("ordinal %d at index %d", window.Ordinal, i)
						}
						if window.End.Before(window.Start) {
							t.Fatalf("window %d ends before it starts", i)
						}
						if keys[window.Key] {
							t.Fatalf("duplicate key %s", window.Key)
						}
						keys[window.Key] = true
						if i > 0 && !windows[i-1].End.AddDate(0, 0, 1).Equal(window.Start) {
							t.Fatalf("gap or overlap between window %d and %d", i-1, i)
						}
					}
				})
			}
		}
	}
}

func TestGenerateWindowsRejectsBadInput(t *testing.T) {
	if _, err := GenerateWindows(day(2025, 2, 1), day(2025, 2, 1), CadenceMonthly); !errors.Is(err, ErrRangeInvalid) {
		t.Fatalf("expected range error, got %v", err)
	}
	if _, err := GenerateWindows(day(2025, 3, 1), day(2025, 2, 1), CadenceMonthly); !errors.Is(err, ErrRangeInvalid) {
		t.Fatalf("expected range error, got %v", err)
	}
	if _, err := GenerateWindows(day(2025, 1, 1), day(2025, 2, 1), Cadence("weekly")); !errors.Is(err, ErrCadenceInvalid) {
		t.Fatalf("expected cadence error, got %v", err)
	}
	if _, err := GenerateWindows(day(2000, 1, 1), day(2030, 12, 31), CadenceMonthly); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected too long error, got %v", err)
	}
}

func TestLabelLocales(t *testing.T) {
	if got := Label(day(2025, 1, 1), day(2025, 3, 31), "pt-BR"); got != "jan–mar/2025" {
		t.Fatalf("pt-BR label = %q", got)
	}
	if got := Label(day(2025, 11, 1), day(2026, 1, 31), "pt-BR"); got != "nov/2025–jan/2026" {
		t.Fatalf("pt-BR cross-year label = %q", got)
	}
	if got := Label(day(2025, 5, 1), day(2025, 5, 31), "de-DE"); got != "May 2025" {
		t.Fatalf("fallback label = %q", got)
	}
}

func TestParseCadence(t *testing.T) {
	tests := map[string]Cadence{
		"monthly":       CadenceMonthly,
		"Mensal":        CadenceMonthly,
		"bimestral":     CadenceBimonthly,
		"trimestral":    CadenceQuarterly,
		"four-monthly":  CadenceFourMonthly,
		"quadrimestral": CadenceFourMonthly,
		"semestral":     CadenceSemiannual,
		"anual":         CadenceAnnual,
	}
	for raw, want := range tests {
		got, err := ParseCadence(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q = %q, want %q", raw, got, want)
		}
	}
	if _, err := ParseCadence("weekly"); !errors.Is(err, ErrCadenceInvalid) {
		t.Fatalf("expected cadence error, got %v", err)
	}
	if got := CadenceQuarterly.Label("pt-BR"); got != "Trimestral" {
		t.Fatalf("cadence label = %q", got)
	}
}

func TestCreatePeriodAssignsIDsAndLabels(t *testing.T) {
	next := 0
	ids := func() (string, error) {
		next++
		return fmt.Sprintf("id-%d", next), nil
	}
	now := func() time.Time { return time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC) }

	p, windows, err := CreatePeriod(CreatePeriodInput{
		Name:    " 2025 H1 ",
		Start:   time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC),
		End:     day(2025, 6, 30),
		Cadence: CadenceQuarterly,
		Locale:  "pt-BR",
	}, now, ids)
	if err != nil {
		t.Fatalf("create period: %v", err)
	}
	if p.ID != "id-1" || p.Name != "2025 H1" || !p.Active || !p.Start.Equal(day(2025, 1, 1)) {
		t.Fatalf("unexpected period: %+v", p)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if windows[0].ID != "id-2" || windows[1].ID != "id-3" || windows[1].PeriodID != "id-1" {
		t.Fatalf("unexpected window ids: %+v", windows)
	}
	if windows[1].Label != "abr–jun/2025" {
		t.Fatalf("label = %q", windows[1].Label)
	}

	if _, _, err := CreatePeriod(CreatePeriodInput{Start: day(2025, 1, 1), End: day(2025, 2, 1), Cadence: CadenceMonthly}, now, ids); !errors.Is(err, ErrNameEmpty) {
		t.Fatalf("expected name error, got %v", err)
	}
}

func TestUpdatePeriodOnlyTouchesNameAndActive(t *testing.T) {
	original := Period{ID: "p1", Name: "2025", Start: day(2025, 1, 1), End: day(2025, 12, 31), Cadence: CadenceMonthly, Active: true}
	inactive := false
	updated := UpdatePeriod(original, UpdatePeriodInput{Name: "FY2025", Active: &inactive}, nil)
	if updated.Name != "FY2025" || updated.Active {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if !updated.Start.Equal(original.Start) || updated.Cadence != original.Cadence {
		t.Fatal("range and cadence must not change")
	}
	if kept := UpdatePeriod(original, UpdatePeriodInput{}, nil); kept.Name != "2025" {
		t.Fatalf("blank name should keep current name, got %q", kept.Name)
	}
}

func TestWindowContains(t *testing.T) {
	w := Window{Start: day(2025, 1, 1), End: day(2025, 1, 31)}
	if !w.Contains(time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)) {
		t.Fatal("expected last day inside window")
	}
	if w.Contains(day(2025, 2, 1)) {
		t.Fatal("expected next day outside window")
	}
}
