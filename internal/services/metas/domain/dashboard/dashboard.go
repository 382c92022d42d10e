// Package dashboard projects goals, windows and results into the read-only
// grid shown to every role. Nothing here is persisted.
package dashboard

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/domain/result"
)

// CellState reports whether a result exists for a (goal, window) pair.
type CellState string

const (
	CellLaunched CellState = "launched"
	CellPending  CellState = "pending"
)

// Filter narrows the projection. Empty fields match everything.
type Filter struct {
	SectorID string
	TeamID   string
	PeriodID string
	State    CellState
}

// Input is the state the projection reads.
type Input struct {
	Goals   []goal.Goal
	Windows map[string][]period.Window // keyed by period id
	Results []result.Result
	Teams   map[string]org.Team
	Sectors map[string]org.Sector
}

// Cell is one (goal, window) slot.
type Cell struct {
	WindowID     string
	WindowKey    string
	WindowLabel  string
	Ordinal      int
	State        CellState
	ResultID     string
	ResultStatus result.Status
	Value        string
	// Progress is the value as a rounded percentage of the goal target, when
	// both parse as numbers.
	Progress *int
}

// Row is one active goal with its cells in window order.
type Row struct {
	Goal       goal.Goal
	TeamName   string
	SectorID   string
	SectorName string
	Cells      []Cell
}

// Summary aggregates the rows of a dashboard.
type Summary struct {
	TotalGoals       int
	TotalCells       int
	LaunchedCells    int
	PendingCells     int
	PendingApprovals int
	Approved         int
	Rejected         int
	// ApprovalRate is approved / (approved + rejected + reopened pending), in
	// percent. Zero when nothing was ever reviewed.
	ApprovalRate float64
}

// Dashboard is the full projection.
type Dashboard struct {
	Rows    []Row
	Summary Summary
}

// Build projects in through f. Only active goals are listed; a missing
// result is a pending cell, never an error.
func Build(in Input, f Filter) Dashboard {
	resultsBySlot := make(map[slotKey]result.Result, len(in.Results))
	for _, r := range in.Results {
		resultsBySlot[slotKey{goalID: r.GoalID, windowID: r.WindowID}] = r
	}

	var out Dashboard
	var reopenedPending int
	for _, g := range sortedGoals(in.Goals) {
		if g.Status != goal.StatusActive {
			continue
		}
		team := in.Teams[g.TeamID]
		if f.TeamID != "" && g.TeamID != f.TeamID {
			continue
		}
		if f.SectorID != "" && team.SectorID != f.SectorID {
			continue
		}
		if f.PeriodID != "" && g.PeriodID != f.PeriodID {
			continue
		}

		row := Row{
			Goal:       g,
			TeamName:   team.Name,
			SectorID:   team.SectorID,
			SectorName: in.Sectors[team.SectorID].Name,
		}
		for _, w := range in.Windows[g.PeriodID] {
			cell := Cell{
				WindowID:    w.ID,
				WindowKey:   w.Key,
				WindowLabel: w.Label,
				Ordinal:     w.Ordinal,
				State:       CellPending,
			}
			r, ok := resultsBySlot[slotKey{goalID: g.ID, windowID: w.ID}]
			if ok {
				cell.State = CellLaunched
				cell.ResultID = r.ID
				cell.ResultStatus = r.Status
				cell.Value = r.Value
				cell.Progress = Progress(r.Value, g.Target)
			}
			if f.State != "" && cell.State != f.State {
				continue
			}
			row.Cells = append(row.Cells, cell)

			out.Summary.TotalCells++
			if cell.State == CellLaunched {
				out.Summary.LaunchedCells++
			} else {
				out.Summary.PendingCells++
			}
			if !ok {
				continue
			}
			switch r.Status {
			case result.StatusPending:
				out.Summary.PendingApprovals++
				if r.Reopened {
					reopenedPending++
				}
			case result.StatusApproved:
				out.Summary.Approved++
			case result.StatusRejected:
				out.Summary.Rejected++
			}
		}
		if f.State != "" && len(row.Cells) == 0 {
			continue
		}
		out.Rows = append(out.Rows, row)
	}

	out.Summary.TotalGoals = len(out.Rows)
	out.Summary.ApprovalRate = ApprovalRate(out.Summary.Approved, out.Summary.Rejected, reopenedPending)
	return out
}

type slotKey struct {
	goalID   string
	windowID string
}

func sortedGoals(goals []goal.Goal) []goal.Goal {
	out := append([]goal.Goal(nil), goals...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TeamID != out[j].TeamID {
			return out[i].TeamID < out[j].TeamID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ApprovalRate returns approved / (approved + rejected + reopenedPending) as
// a percentage rounded to one decimal place.
func ApprovalRate(approved, rejected, reopenedPending int) float64 {
	denominator := approved + rejected + reopenedPending
	if denominator == 0 {
		return 0
	}
	return math.Round(float64(approved)/float64(denominator)*1000) / 10
}

// Progress returns round(value/target*100) when both parse as numbers and
// target is not zero. Comma decimals and a trailing percent sign are
// accepted.
func Progress(value, target string) *int {
	v, ok := parseNumber(value)
	if !ok {
		return nil
	}
	tgt, ok := parseNumber(target)
	if !ok || tgt == 0 {
		return nil
	}
	pct := int(math.Round(v / tgt * 100))
	return &pct
}

func parseNumber(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimSuffix(cleaned, "%")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if strings.Contains(cleaned, ",") {
		// 1.234,5 style: dots group thousands, comma is the decimal mark.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	if cleaned == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(parsed, 0) || math.IsNaN(parsed) {
		return 0, false
	}
	return parsed, true
}
