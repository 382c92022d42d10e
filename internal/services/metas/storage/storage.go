// Package storage defines persistence contracts for goal-management state.
package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/domain/result"
	"github.com/louisbranch/metas/internal/services/metas/storage/filter"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrPreconditionFailed indicates a compare-and-swap lost against a
	// concurrent writer.
	ErrPreconditionFailed = errors.New("record changed concurrently")
	// ErrInUse indicates a delete of a record that others still reference.
	ErrInUse = errors.New("record is referenced")
	// ErrInvalidPageToken indicates a page token that does not name a record.
	ErrInvalidPageToken = errors.New("invalid page token")
)

// SectorStore persists sectors.
type SectorStore interface {
	CreateSector(ctx context.Context, sector org.Sector) error
	UpdateSector(ctx context.Context, sector org.Sector) error
	GetSector(ctx context.Context, sectorID string) (org.Sector, error)
	ListSectors(ctx context.Context) ([]org.Sector, error)
	// DeleteSector returns ErrInUse while any team references the sector.
	DeleteSector(ctx context.Context, sectorID string) error
}

// TeamStore persists teams.
type TeamStore interface {
	CreateTeam(ctx context.Context, team org.Team) error
	UpdateTeam(ctx context.Context, team org.Team) error
	GetTeam(ctx context.Context, teamID string) (org.Team, error)
	// ListTeams returns every team, or only those of sectorID when set.
	ListTeams(ctx context.Context, sectorID string) ([]org.Team, error)
}

// PeriodStore persists periods and their generated windows.
type PeriodStore interface {
	// CreatePeriod stores p and windows atomically.
	CreatePeriod(ctx context.Context, p period.Period, windows []period.Window) error
	UpdatePeriod(ctx context.Context, p period.Period) error
	GetPeriod(ctx context.Context, periodID string) (period.Period, error)
	ListPeriods(ctx context.Context) ([]period.Period, error)
	// ListWindows returns the windows of periodID in ordinal order.
	ListWindows(ctx context.Context, periodID string) ([]period.Window, error)
	GetWindow(ctx context.Context, windowID string) (period.Window, error)
}

// GoalFilter narrows goal listings. Empty fields match everything.
type GoalFilter struct {
	TeamID   string
	PeriodID string
	Status   goal.Status
}

// Matches reports whether g passes f.
func (f GoalFilter) Matches(g goal.Goal) bool {
	if f.TeamID != "" && g.TeamID != f.TeamID {
		return false
	}
	if f.PeriodID != "" && g.PeriodID != f.PeriodID {
		return false
	}
	if f.Status != "" && g.Status != f.Status {
		return false
	}
	return true
}

// GoalStore persists goals.
type GoalStore interface {
	CreateGoal(ctx context.Context, g goal.Goal) error
	UpdateGoal(ctx context.Context, g goal.Goal) error
	GetGoal(ctx context.Context, goalID string) (goal.Goal, error)
	// ListGoals returns matching goals ordered by team then name.
	ListGoals(ctx context.Context, f GoalFilter) ([]goal.Goal, error)
}

// ResultQuery selects one page of results, oldest first.
type ResultQuery struct {
	Filter    *filter.Condition
	PageSize  int
	PageToken string
}

// ResultPage stores one page of results.
type ResultPage struct {
	Results       []result.Result
	NextPageToken string
}

// ResultStore persists the submission ledger.
type ResultStore interface {
	// CreateResult returns ErrAlreadyExists when (goal, window) already has
	// an entry.
	CreateResult(ctx context.Context, r result.Result) error
	// CompareAndSwapResult replaces r only while the stored status equals
	// expected; otherwise it returns ErrPreconditionFailed.
	CompareAndSwapResult(ctx context.Context, r result.Result, expected result.Status) error
	// ReviewResult writes only the review fields of r (status, reviewer,
	// comment, rejection reason, reopened flag and update time) while the
	// stored status equals expected, and returns the stored result. Value,
	// observation and evidence are left as stored.
	ReviewResult(ctx context.Context, r result.Result, expected result.Status) (result.Result, error)
	GetResult(ctx context.Context, resultID string) (result.Result, error)
	GetResultBySlot(ctx context.Context, goalID, windowID string) (result.Result, error)
	ListResults(ctx context.Context, query ResultQuery) (ResultPage, error)
	// ListResultsForGoals returns every result recorded against goalIDs.
	ListResultsForGoals(ctx context.Context, goalIDs []string) ([]result.Result, error)
}

// GrantStore persists access grants.
type GrantStore interface {
	CreateGrant(ctx context.Context, grant access.Grant) error
	UpdateGrant(ctx context.Context, grant access.Grant) error
	GetGrant(ctx context.Context, grantID string) (access.Grant, error)
	// ListGrants returns the grants of userID, or every grant when empty.
	ListGrants(ctx context.Context, userID string) ([]access.Grant, error)
}

// Store is the full persistence surface of the service.
type Store interface {
	SectorStore
	TeamStore
	PeriodStore
	GoalStore
	ResultStore
	GrantStore
	Close() error
}

// ResultField exposes r's filterable fields to filter.Condition.Match.
func ResultField(r result.Result) func(field string) (any, bool) {
	return func(field string) (any, bool) {
		switch field {
		case filter.FieldGoalID:
			return r.GoalID, true
		case filter.FieldWindowID:
			return r.WindowID, true
		case filter.FieldStatus:
			return string(r.Status), true
		case filter.FieldSubmittedBy:
			return r.SubmittedBy, true
		case filter.FieldReviewedBy:
			return r.ReviewedBy, r.ReviewedBy != ""
		case filter.FieldCreateTime:
			return r.CreatedAt, true
		case filter.FieldUpdateTime:
			return r.UpdatedAt, true
		default:
			return nil, false
		}
	}
}
