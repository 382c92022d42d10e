// Package seed loads organization, period and goal fixtures from YAML and
// applies them through the service layer.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/louisbranch/metas/internal/platform/logging"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/service"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

// Fixture is the root of a seed file.
type Fixture struct {
	Sectors []Sector `yaml:"sectors"`
	Periods []Period `yaml:"periods"`
	Goals   []Goal   `yaml:"goals"`
	Grants  []Grant  `yaml:"grants"`
}

// Sector declares a sector and its teams.
type Sector struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Teams       []Team `yaml:"teams"`
}

// Team declares a team inside its sector.
type Team struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	EvidenceLink string `yaml:"evidence_link"`
}

// Period declares an evaluation period. Dates use YYYY-MM-DD.
type Period struct {
	Name    string `yaml:"name"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
	Cadence string `yaml:"cadence"`
	Locale  string `yaml:"locale"`
}

// Goal references its team and period by name.
type Goal struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Team        string `yaml:"team"`
	Period      string `yaml:"period"`
	Metric      string `yaml:"metric"`
	Weight      int    `yaml:"weight"`
	Target      string `yaml:"target"`
}

// Grant gives a user access to a sector or a team, referenced by name.
type Grant struct {
	User   string `yaml:"user"`
	Sector string `yaml:"sector"`
	Team   string `yaml:"team"`
}

// Load decodes a fixture, rejecting unknown keys.
func Load(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Fixture{}, errors.New("seed file is empty")
		}
		return Fixture{}, fmt.Errorf("decode seed: %w", err)
	}
	return f, nil
}

// LoadFile reads and decodes the fixture at path.
func LoadFile(path string) (Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close()
	return Load(file)
}

// Report counts what Apply created and what already existed.
type Report struct {
	Created int
	Skipped int
}

// applier carries the name indexes built while applying a fixture.
type applier struct {
	svc     *service.Service
	actor   access.Actor
	logger  *zap.Logger
	sectors map[string]org.Sector
	teams   map[string]org.Team
	periods map[string]period.Period
	report  Report
}

// Apply creates every record of f that does not exist yet, matching by name.
// Running the same fixture twice creates nothing the second time. actor must
// be an administrator.
func Apply(ctx context.Context, svc *service.Service, actor access.Actor, f Fixture, logger *zap.Logger) (Report, error) {
	if svc == nil {
		return Report{}, errors.New("service is required")
	}
	if err := f.Validate(); err != nil {
		return Report{}, err
	}
	a := &applier{
		svc:     svc,
		actor:   actor,
		logger:  logging.OrNop(logger),
		sectors: make(map[string]org.Sector),
		teams:   make(map[string]org.Team),
		periods: make(map[string]period.Period),
	}
	if err := a.index(ctx); err != nil {
		return Report{}, err
	}
	for _, s := range f.Sectors {
		if err := a.sector(ctx, s); err != nil {
			return a.report, err
		}
	}
	for _, p := range f.Periods {
		if err := a.period(ctx, p); err != nil {
			return a.report, err
		}
	}
	for _, g := range f.Goals {
		if err := a.goal(ctx, g); err != nil {
			return a.report, err
		}
	}
	for _, g := range f.Grants {
		if err := a.grant(ctx, g); err != nil {
			return a.report, err
		}
	}
	return a.report, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (a *applier) index(ctx context.Context) error {
	sectors, err := a.svc.ListSectors(ctx, a.actor)
	if err != nil {
		return fmt.Errorf("list sectors: %w", err)
	}
	for _, s := range sectors {
		a.sectors[nameKey(s.Name)] = s
	}
	teams, err := a.svc.ListTeams(ctx, a.actor, "")
	if err != nil {
		return fmt.Errorf("list teams: %w", err)
	}
	for _, t := range teams {
		a.teams[nameKey(t.Name)] = t
	}
	periods, err := a.svc.ListPeriods(ctx, a.actor)
	if err != nil {
		return fmt.Errorf("list periods: %w", err)
	}
	for _, p := range periods {
		a.periods[nameKey(p.Name)] = p
	}
	return nil
}

func (a *applier) created(kind, name string) {
	a.report.Created++
	a.logger.Info("seed created", zap.String("kind", kind), zap.String("name", name))
}

func (a *applier) skipped(kind, name string) {
	a.report.Skipped++
	a.logger.Debug("seed exists", zap.String("kind", kind), zap.String("name", name))
}

func (a *applier) sector(ctx context.Context, in Sector) error {
	sector, ok := a.sectors[nameKey(in.Name)]
	if ok {
		a.skipped("sector", in.Name)
	} else {
		var err error
		sector, err = a.svc.CreateSector(ctx, a.actor, org.SectorInput{Name: in.Name, Description: in.Description})
		if err != nil {
			return fmt.Errorf("sector %q: %w", in.Name, err)
		}
		a.sectors[nameKey(sector.Name)] = sector
		a.created("sector", sector.Name)
	}

	for _, t := range in.Teams {
		if existing, ok := a.teams[nameKey(t.Name)]; ok {
			if existing.SectorID != sector.ID {
				return fmt.Errorf("team %q already belongs to another sector", t.Name)
			}
			a.skipped("team", t.Name)
			continue
		}
		team, err := a.svc.CreateTeam(ctx, a.actor, org.TeamInput{
			SectorID:     sector.ID,
			Name:         t.Name,
			Description:  t.Description,
			EvidenceLink: t.EvidenceLink,
		})
		if err != nil {
			return fmt.Errorf("team %q: %w", t.Name, err)
		}
		a.teams[nameKey(team.Name)] = team
		a.created("team", team.Name)
	}
	return nil
}

func (a *applier) period(ctx context.Context, in Period) error {
	if _, ok := a.periods[nameKey(in.Name)]; ok {
		a.skipped("period", in.Name)
		return nil
	}
	start, err := period.ParseDate(in.Start)
	if err != nil {
		return fmt.Errorf("period %q start: %w", in.Name, err)
	}
	end, err := period.ParseDate(in.End)
	if err != nil {
		return fmt.Errorf("period %q end: %w", in.Name, err)
	}
	cadence, err := period.ParseCadence(in.Cadence)
	if err != nil {
		return fmt.Errorf("period %q: %w", in.Name, err)
	}
	p, windows, err := a.svc.CreatePeriod(ctx, a.actor, period.CreatePeriodInput{
		Name:    in.Name,
		Start:   start,
		End:     end,
		Cadence: cadence,
		Locale:  in.Locale,
	})
	if err != nil {
		return fmt.Errorf("period %q: %w", in.Name, err)
	}
	a.periods[nameKey(p.Name)] = p
	a.created("period", p.Name)
	a.logger.Debug("seed windows", zap.String("period", p.Name), zap.Int("count", len(windows)))
	return nil
}

func (a *applier) goal(ctx context.Context, in Goal) error {
	team, ok := a.teams[nameKey(in.Team)]
	if !ok {
		return fmt.Errorf("goal %q: unknown team %q", in.Name, in.Team)
	}
	p, ok := a.periods[nameKey(in.Period)]
	if !ok {
		return fmt.Errorf("goal %q: unknown period %q", in.Name, in.Period)
	}
	existing, err := a.svc.ListGoals(ctx, a.actor, storage.GoalFilter{TeamID: team.ID, PeriodID: p.ID})
	if err != nil {
		return fmt.Errorf("goal %q: %w", in.Name, err)
	}
	for _, g := range existing {
		if nameKey(g.Name) == nameKey(in.Name) {
			a.skipped("goal", in.Name)
			return nil
		}
	}
	metric, err := goal.ParseMetricType(in.Metric)
	if err != nil {
		return fmt.Errorf("goal %q: %w", in.Name, err)
	}
	g, err := a.svc.CreateGoal(ctx, a.actor, goal.CreateGoalInput{
		Name:        in.Name,
		Description: in.Description,
		TeamID:      team.ID,
		PeriodID:    p.ID,
		Metric:      metric,
		Weight:      in.Weight,
		Target:      in.Target,
	})
	if err != nil {
		return fmt.Errorf("goal %q: %w", in.Name, err)
	}
	a.created("goal", g.Name)
	return nil
}

func (a *applier) grant(ctx context.Context, in Grant) error {
	input := access.CreateGrantInput{UserID: in.User}
	switch {
	case in.Team != "":
		team, ok := a.teams[nameKey(in.Team)]
		if !ok {
			return fmt.Errorf("grant for %q: unknown team %q", in.User, in.Team)
		}
		input.TeamID = team.ID
	case in.Sector != "":
		sector, ok := a.sectors[nameKey(in.Sector)]
		if !ok {
			return fmt.Errorf("grant for %q: unknown sector %q", in.User, in.Sector)
		}
		input.SectorID = sector.ID
	default:
		return fmt.Errorf("grant for %q: sector or team is required", in.User)
	}

	grants, err := a.svc.ListGrants(ctx, a.actor, in.User)
	if err != nil {
		return fmt.Errorf("grant for %q: %w", in.User, err)
	}
	for _, g := range grants {
		if g.Active && g.SectorID == input.SectorID && g.TeamID == input.TeamID {
			a.skipped("grant", in.User)
			return nil
		}
	}
	if _, err := a.svc.GrantAccess(ctx, a.actor, input); err != nil {
		return fmt.Errorf("grant for %q: %w", in.User, err)
	}
	a.created("grant", in.User)
	return nil
}

// ErrEmpty reports a fixture with nothing to apply.
var ErrEmpty = errors.New("seed fixture declares nothing")

// Validate checks a fixture for records without names before any write.
func (f Fixture) Validate() error {
	if len(f.Sectors) == 0 && len(f.Periods) == 0 && len(f.Goals) == 0 && len(f.Grants) == 0 {
		return ErrEmpty
	}
	for i, s := range f.Sectors {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("sectors[%d]: name is required", i)
		}
		for j, t := range s.Teams {
			if strings.TrimSpace(t.Name) == "" {
				return fmt.Errorf("sectors[%d].teams[%d]: name is required", i, j)
			}
		}
	}
	for i, p := range f.Periods {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("periods[%d]: name is required", i)
		}
	}
	for i, g := range f.Goals {
		if strings.TrimSpace(g.Name) == "" || strings.TrimSpace(g.Team) == "" || strings.TrimSpace(g.Period) == "" {
			return fmt.Errorf("goals[%d]: name, team and period are required", i)
		}
	}
	for i, g := range f.Grants {
		if strings.TrimSpace(g.User) == "" {
			return fmt.Errorf("grants[%d]: user is required", i)
		}
	}
	return nil
}
