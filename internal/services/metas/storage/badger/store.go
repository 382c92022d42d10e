package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/domain/result"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

// Key prefixes. Documents live under "<kind>/<id>"; slot and window indexes
// map composite keys to document ids.
const (
	prefixSector      = "sector/"
	prefixTeam        = "team/"
	prefixPeriod      = "period/"
	prefixWindow      = "window/"
	prefixWindowIndex = "window-index/"
	prefixGoal        = "goal/"
	prefixResult      = "result/"
	prefixSlot        = "slot/"
	prefixGrant       = "grant/"
)

// conflictRetries bounds how often a transaction is replayed after
// badger.ErrConflict.
const conflictRetries = 3

// Store persists goal-management state in BadgerDB.
type Store struct {
	db *badger.DB
	gc *gcRunner
}

// Open opens a store with cfg.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		store.gc = startGC(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return store, nil
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.gc != nil {
		s.gc.close()
		s.gc = nil
	}
	return s.db.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	var err error
	for range conflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.db.View(fn)
}

func key(prefix, id string) []byte {
	return []byte(prefix + id)
}

func slotKey(goalID, windowID string) []byte {
	return []byte(prefixSlot + goalID + "/" + windowID)
}

func windowIndexKey(periodID string, ordinal int) []byte {
	return []byte(fmt.Sprintf("%s%s/%06d", prefixWindowIndex, periodID, ordinal))
}

func getDoc(txn *badger.Txn, k []byte, out any) error {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", k, err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, out); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		return nil
	})
}

func putDoc(txn *badger.Txn, k []byte, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", k, err)
	}
	return txn.Set(k, data)
}

func exists(txn *badger.Txn, k []byte) (bool, error) {
	_, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", k, err)
	}
	return true, nil
}

func insertDoc(txn *badger.Txn, k []byte, doc any) error {
	found, err := exists(txn, k)
	if err != nil {
		return err
	}
	if found {
		return storage.ErrAlreadyExists
	}
	return putDoc(txn, k, doc)
}

// scan decodes every document under prefix and hands it to fn.
func scan[T any](txn *badger.Txn, prefix string, fn func(T) error) error {
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 64, Prefix: []byte(prefix)})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var doc T
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		}); err != nil {
			return fmt.Errorf("decode %s: %w", item.Key(), err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s id is required", kind)
	}
	return nil
}

// CreateSector inserts one sector.
func (s *Store) CreateSector(ctx context.Context, sector org.Sector) error {
	if err := requireID("sector", sector.ID); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return insertDoc(txn, key(prefixSector, sector.ID), sector)
	})
}

// UpdateSector replaces one sector.
func (s *Store) UpdateSector(ctx context.Context, sector org.Sector) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var current org.Sector
		if err := getDoc(txn, key(prefixSector, sector.ID), &current); err != nil {
			return err
		}
		current.Name = sector.Name
		current.Description = sector.Description
		current.Active = sector.Active
		current.UpdatedAt = sector.UpdatedAt
		return putDoc(txn, key(prefixSector, sector.ID), current)
	})
}

// GetSector returns one sector.
func (s *Store) GetSector(ctx context.Context, sectorID string) (org.Sector, error) {
	var sector org.Sector
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getDoc(txn, key(prefixSector, sectorID), &sector)
	})
	return sector, err
}

// ListSectors returns every sector ordered by name.
func (s *Store) ListSectors(ctx context.Context) ([]org.Sector, error) {
	var sectors []org.Sector
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, prefixSector, func(sector org.Sector) error {
			sectors = append(sectors, sector)
			return nil
		})
	})
	sort.SliceStable(sectors, func(i, j int) bool {
		if sectors[i].Name != sectors[j].Name {
			return sectors[i].Name < sectors[j].Name
		}
		return sectors[i].ID < sectors[j].ID
	})
	return sectors, err
}

// DeleteSector removes a sector no team references.
func (s *Store) DeleteSector(ctx context.Context, sectorID string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		found, err := exists(txn, key(prefixSector, sectorID))
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrNotFound
		}
		if err := scan(txn, prefixTeam, func(team org.Team) error {
			if team.SectorID == sectorID {
				return storage.ErrInUse
			}
			return nil
		}); err != nil {
			return err
		}
		return txn.Delete(key(prefixSector, sectorID))
	})
}

// CreateTeam inserts one team. The sector must exist.
func (s *Store) CreateTeam(ctx context.Context, team org.Team) error {
	if err := requireID("team", team.ID); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		found, err := exists(txn, key(prefixSector, team.SectorID))
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrNotFound
		}
		return insertDoc(txn, key(prefixTeam, team.ID), team)
	})
}

// UpdateTeam replaces one team.
func (s *Store) UpdateTeam(ctx context.Context, team org.Team) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		found, err := exists(txn, key(prefixSector, team.SectorID))
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrNotFound
		}
		var current org.Team
		if err := getDoc(txn, key(prefixTeam, team.ID), &current); err != nil {
			return err
		}
		team.CreatedAt = current.CreatedAt
		return putDoc(txn, key(prefixTeam, team.ID), team)
	})
}

// GetTeam returns one team.
func (s *Store) GetTeam(ctx context.Context, teamID string) (org.Team, error) {
	var team org.Team
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getDoc(txn, key(prefixTeam, teamID), &team)
	})
	return team, err
}

// ListTeams returns teams ordered by name.
func (s *Store) ListTeams(ctx context.Context, sectorID string) ([]org.Team, error) {
	var teams []org.Team
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, prefixTeam, func(team org.Team) error {
			if sectorID == "" || team.SectorID == sectorID {
				teams = append(teams, team)
			}
			return nil
		})
	})
	sort.SliceStable(teams, func(i, j int) bool {
		if teams[i].Name != teams[j].Name {
			return teams[i].Name < teams[j].Name
		}
		return teams[i].ID < teams[j].ID
	})
	return teams, err
}

// CreatePeriod stores p and its windows in one transaction.
func (s *Store) CreatePeriod(ctx context.Context, p period.Period, windows []period.Window) error {
	if err := requireID("period", p.ID); err != nil {
		return err
	}
	if len(windows) == 0 {
		return fmt.Errorf("period needs at least one window")
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := insertDoc(txn, key(prefixPeriod, p.ID), p); err != nil {
			return err
		}
		for _, w := range windows {
			if w.PeriodID != p.ID {
				return fmt.Errorf("window %s belongs to period %q", w.ID, w.PeriodID)
			}
			if err := insertDoc(txn, key(prefixWindow, w.ID), w); err != nil {
				return err
			}
			if err := txn.Set(windowIndexKey(p.ID, w.Ordinal), []byte(w.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdatePeriod stores the period name and active flag.
func (s *Store) UpdatePeriod(ctx context.Context, p period.Period) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var current period.Period
		if err := getDoc(txn, key(prefixPeriod, p.ID), &current); err != nil {
			return err
		}
		current.Name = p.Name
		current.Active = p.Active
		current.UpdatedAt = p.UpdatedAt
		return putDoc(txn, key(prefixPeriod, p.ID), current)
	})
}

// GetPeriod returns one period.
func (s *Store) GetPeriod(ctx context.Context, periodID string) (period.Period, error) {
	var p period.Period
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getDoc(txn, key(prefixPeriod, periodID), &p)
	})
	return p, err
}

// ListPeriods returns every period, most recent start first.
func (s *Store) ListPeriods(ctx context.Context) ([]period.Period, error) {
	var periods []period.Period
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, prefixPeriod, func(p period.Period) error {
			periods = append(periods, p)
			return nil
		})
	})
	sort.SliceStable(periods, func(i, j int) bool {
		if !periods[i].Start.Equal(periods[j].Start) {
			return periods[i].Start.After(periods[j].Start)
		}
		return periods[i].ID < periods[j].ID
	})
	return periods, err
}

// ListWindows returns the windows of periodID in ordinal order.
func (s *Store) ListWindows(ctx context.Context, periodID string) ([]period.Window, error) {
	var windows []period.Window
	err := s.view(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefixWindowIndex + periodID + "/")})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			windowID, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var w period.Window
			if err := getDoc(txn, key(prefixWindow, string(windowID)), &w); err != nil {
				return err
			}
			windows = append(windows, w)
		}
		return nil
	})
	return windows, err
}

// GetWindow returns one window.
func (s *Store) GetWindow(ctx context.Context, windowID string) (period.Window, error) {
	var w period.Window
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getDoc(txn, key(prefixWindow, windowID), &w)
	})
	return w, err
}

// CreateGoal inserts one goal. Team and period must exist.
func (s *Store) CreateGoal(ctx context.Context, g goal.Goal) error {
	if err := requireID("goal", g.ID); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		for _, k := range [][]byte{key(prefixTeam, g.TeamID), key(prefixPeriod, g.PeriodID)} {
			found, err := exists(txn, k)
			if err != nil {
				return err
			}
			if !found {
				return storage.ErrNotFound
			}
		}
		return insertDoc(txn, key(prefixGoal, g.ID), g)
	})
}

// UpdateGoal stores the editable goal fields and status.
func (s *Store) UpdateGoal(ctx context.Context, g goal.Goal) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var current goal.Goal
		if err := getDoc(txn, key(prefixGoal, g.ID), &current); err != nil {
			return err
		}
		current.Name = g.Name
		current.Description = g.Description
		current.Metric = g.Metric
		current.Weight = g.Weight
		current.Target = g.Target
		current.Status = g.Status
		current.UpdatedAt = g.UpdatedAt
		return putDoc(txn, key(prefixGoal, g.ID), current)
	})
}

// GetGoal returns one goal.
func (s *Store) GetGoal(ctx context.Context, goalID string) (goal.Goal, error) {
	var g goal.Goal
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getDoc(txn, key(prefixGoal, goalID), &g)
	})
	return g, err
}

// ListGoals returns matching goals ordered by team then name.
func (s *Store) ListGoals(ctx context.Context, f storage.GoalFilter) ([]goal.Goal, error) {
	var goals []goal.Goal
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, prefixGoal, func(g goal.Goal) error {
			if f.Matches(g) {
				goals = append(goals, g)
			}
			return nil
		})
	})
	sort.SliceStable(goals, func(i, j int) bool {
		a, b := goals[i], goals[j]
		if a.TeamID != b.TeamID {
			return a.TeamID < b.TeamID
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return goals, err
}

// CreateResult inserts the entry for a (goal, window) slot.
func (s *Store) CreateResult(ctx context.Context, r result.Result) error {
	if err := requireID("result", r.ID); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		for _, k := range [][]byte{key(prefixGoal, r.GoalID), key(prefixWindow, r.WindowID)} {
			found, err := exists(txn, k)
			if err != nil {
				return err
			}
			if !found {
				return storage.ErrNotFound
			}
		}
		taken, err := exists(txn, slotKey(r.GoalID, r.WindowID))
		if err != nil {
			return err
		}
		if taken {
			return storage.ErrAlreadyExists
		}
		if err := insertDoc(txn, key(prefixResult, r.ID), r); err != nil {
			return err
		}
		return txn.Set(slotKey(r.GoalID, r.WindowID), []byte(r.ID))
	})
}

// CompareAndSwapResult replaces r while its stored status still equals
// expected.
func (s *Store) CompareAndSwapResult(ctx context.Context, r result.Result, expected result.Status) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		var current result.Result
		if err := getDoc(txn, key(prefixResult, r.ID), &current); err != nil {
			return err
		}
		if current.Status != expected {
			return storage.ErrPreconditionFailed
		}
		r.GoalID = current.GoalID
		r.WindowID = current.WindowID
		r.CreatedAt = current.CreatedAt
		return putDoc(txn, key(prefixResult, r.ID), r)
	})
	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrPreconditionFailed
	}
	return err
}

// ReviewResult copies the review fields of r onto the stored document while
// its status still equals expected, and returns the merged document.
func (s *Store) ReviewResult(ctx context.Context, r result.Result, expected result.Status) (result.Result, error) {
	var stored result.Result
	err := s.update(ctx, func(txn *badger.Txn) error {
		var current result.Result
		if err := getDoc(txn, key(prefixResult, r.ID), &current); err != nil {
			return err
		}
		if current.Status != expected {
			return storage.ErrPreconditionFailed
		}
		current.Status = r.Status
		current.ReviewedBy = r.ReviewedBy
		current.ReviewedAt = r.ReviewedAt
		current.ReviewComment = r.ReviewComment
		current.RejectionReason = r.RejectionReason
		current.Reopened = r.Reopened
		current.UpdatedAt = r.UpdatedAt
		if err := putDoc(txn, key(prefixResult, r.ID), current); err != nil {
			return err
		}
		stored = current
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return result.Result{}, storage.ErrPreconditionFailed
	}
	if err != nil {
		return result.Result{}, err
	}
	return stored, nil
}

// GetResult returns one result by id.
func (s *Store) GetResult(ctx context.Context, resultID string) (result.Result, error) {
	var r result.Result
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getDoc(txn, key(prefixResult, resultID), &r)
	})
	return r, err
}

// GetResultBySlot returns the entry for (goalID, windowID).
func (s *Store) GetResultBySlot(ctx context.Context, goalID, windowID string) (result.Result, error) {
	var r result.Result
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(slotKey(goalID, windowID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		resultID, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getDoc(txn, key(prefixResult, string(resultID)), &r)
	})
	return r, err
}

// ListResults returns one page of results ordered by creation time.
func (s *Store) ListResults(ctx context.Context, query storage.ResultQuery) (storage.ResultPage, error) {
	if query.PageSize <= 0 {
		return storage.ResultPage{}, fmt.Errorf("page size must be greater than zero")
	}
	pageToken := strings.TrimSpace(query.PageToken)

	var (
		matched []result.Result
		cursor  *result.Result
	)
	err := s.view(ctx, func(txn *badger.Txn) error {
		if pageToken != "" {
			var last result.Result
			if err := getDoc(txn, key(prefixResult, pageToken), &last); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return storage.ErrInvalidPageToken
				}
				return err
			}
			cursor = &last
		}
		return scan(txn, prefixResult, func(r result.Result) error {
			if query.Filter.Match(storage.ResultField(r)) {
				matched = append(matched, r)
			}
			return nil
		})
	})
	if err != nil {
		return storage.ResultPage{}, err
	}

	sortResults(matched)
	if cursor != nil {
		start := sort.Search(len(matched), func(i int) bool {
			return resultBefore(*cursor, matched[i])
		})
		matched = matched[start:]
	}

	page := storage.ResultPage{Results: matched}
	if len(matched) > query.PageSize {
		page.Results = matched[:query.PageSize]
		page.NextPageToken = page.Results[query.PageSize-1].ID
	}
	return page, nil
}

// ListResultsForGoals returns every result recorded against goalIDs.
func (s *Store) ListResultsForGoals(ctx context.Context, goalIDs []string) ([]result.Result, error) {
	if len(goalIDs) == 0 {
		return nil, nil
	}
	wanted := make(map[string]struct{}, len(goalIDs))
	for _, goalID := range goalIDs {
		wanted[goalID] = struct{}{}
	}
	var results []result.Result
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, prefixResult, func(r result.Result) error {
			if _, ok := wanted[r.GoalID]; ok {
				results = append(results, r)
			}
			return nil
		})
	})
	sortResults(results)
	return results, err
}

func resultBefore(a, b result.Result) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func sortResults(results []result.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return resultBefore(results[i], results[j])
	})
}

// CreateGrant inserts one access grant.
func (s *Store) CreateGrant(ctx context.Context, grant access.Grant) error {
	if err := requireID("grant", grant.ID); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return insertDoc(txn, key(prefixGrant, grant.ID), grant)
	})
}

// UpdateGrant stores the grant active flag.
func (s *Store) UpdateGrant(ctx context.Context, grant access.Grant) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var current access.Grant
		if err := getDoc(txn, key(prefixGrant, grant.ID), &current); err != nil {
			return err
		}
		current.Active = grant.Active
		return putDoc(txn, key(prefixGrant, grant.ID), current)
	})
}

// GetGrant returns one grant.
func (s *Store) GetGrant(ctx context.Context, grantID string) (access.Grant, error) {
	var grant access.Grant
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getDoc(txn, key(prefixGrant, grantID), &grant)
	})
	return grant, err
}

// ListGrants returns grants for userID, or all grants when userID is empty.
func (s *Store) ListGrants(ctx context.Context, userID string) ([]access.Grant, error) {
	var grants []access.Grant
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, prefixGrant, func(grant access.Grant) error {
			if userID == "" || grant.UserID == userID {
				grants = append(grants, grant)
			}
			return nil
		})
	})
	sort.SliceStable(grants, func(i, j int) bool {
		if !grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].CreatedAt.Before(grants[j].CreatedAt)
		}
		return grants[i].ID < grants[j].ID
	})
	return grants, err
}

var _ storage.Store = (*Store)(nil)
