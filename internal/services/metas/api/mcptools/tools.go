// Package mcptools exposes read-only goal-management queries as MCP tools so
// agents can inspect dashboards and approval queues.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/dashboard"
	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/service"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

const (
	serverName    = "metas"
	serverVersion = "1.0.0"
)

// Config wires the MCP server.
type Config struct {
	Service *service.Service
	// Actor is the identity every tool call runs as. It must be able to
	// read; write roles gain nothing because every tool is read-only.
	Actor  access.Actor
	Logger *zap.Logger
}

// Server serves the metas tools over an MCP transport.
type Server struct {
	mcpServer *mcp.Server
	logger    *zap.Logger
}

// New registers every tool on a fresh MCP server.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("service is required")
	}
	if err := cfg.Actor.Validate(); err != nil {
		return nil, fmt.Errorf("mcp actor: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	registerTools(server, tools{svc: cfg.Service, actor: cfg.Actor})
	return &Server{mcpServer: server, logger: logger}, nil
}

// Serve runs the server on transport until ctx is canceled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server starting")
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve mcp: %w", err)
	}
	return nil
}

// ServeStdio runs the server over stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, &mcp.StdioTransport{})
}

func registerTools(server *mcp.Server, t tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "dashboard_get",
		Description: "Returns the goal dashboard: one row per active goal with a cell per period window, plus launch and approval totals.",
	}, t.dashboard)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "approvals_pending",
		Description: "Lists results awaiting approval, oldest first, optionally narrowed to one sector.",
	}, t.pendingApprovals)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "goals_list",
		Description: "Lists goals, optionally filtered by team, period and status (suggested, active, inactive, rejected).",
	}, t.goals)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "goal_weights",
		Description: "Sums the weights of a team's active goals in a period and reports whether they total 100.",
	}, t.weights)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "periods_list",
		Description: "Lists evaluation periods with their windows.",
	}, t.periods)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "results_list",
		Description: "Lists submitted results. The filter uses AIP-160 syntax over goal_id, window_id, status and submitted_by.",
	}, t.results)
}

type tools struct {
	svc   *service.Service
	actor access.Actor
}

// DashboardInput narrows the dashboard.
type DashboardInput struct {
	SectorID string `json:"sector_id,omitempty" jsonschema:"optional sector identifier"`
	TeamID   string `json:"team_id,omitempty" jsonschema:"optional team identifier"`
	PeriodID string `json:"period_id,omitempty" jsonschema:"optional period identifier"`
	State    string `json:"state,omitempty" jsonschema:"optional cell state: launched or pending"`
}

// DashboardCell is one goal window.
type DashboardCell struct {
	WindowKey    string `json:"window_key"`
	WindowLabel  string `json:"window_label"`
	State        string `json:"state" jsonschema:"launched or pending"`
	ResultID     string `json:"result_id,omitempty"`
	ResultStatus string `json:"result_status,omitempty"`
	Value        string `json:"value,omitempty"`
	Progress     *int   `json:"progress,omitempty" jsonschema:"percent of target when both are numeric"`
}

// DashboardRow is one goal.
type DashboardRow struct {
	GoalID     string          `json:"goal_id"`
	GoalName   string          `json:"goal_name"`
	Target     string          `json:"target,omitempty"`
	TeamName   string          `json:"team_name"`
	SectorName string          `json:"sector_name"`
	Cells      []DashboardCell `json:"cells"`
}

// DashboardResult is the dashboard projection.
type DashboardResult struct {
	Rows             []DashboardRow `json:"rows"`
	TotalGoals       int            `json:"total_goals"`
	TotalCells       int            `json:"total_cells"`
	LaunchedCells    int            `json:"launched_cells"`
	PendingCells     int            `json:"pending_cells"`
	PendingApprovals int            `json:"pending_approvals"`
	Approved         int            `json:"approved"`
	Rejected         int            `json:"rejected"`
	ApprovalRate     float64        `json:"approval_rate"`
}

func (t tools) dashboard(ctx context.Context, _ *mcp.CallToolRequest, input DashboardInput) (*mcp.CallToolResult, DashboardResult, error) {
	d, err := t.svc.Dashboard(ctx, t.actor, dashboard.Filter{
		SectorID: input.SectorID,
		TeamID:   input.TeamID,
		PeriodID: input.PeriodID,
		State:    dashboard.CellState(input.State),
	})
	if err != nil {
		return nil, DashboardResult{}, fmt.Errorf("dashboard: %w", err)
	}
	out := DashboardResult{
		Rows:             make([]DashboardRow, 0, len(d.Rows)),
		TotalGoals:       d.Summary.TotalGoals,
		TotalCells:       d.Summary.TotalCells,
		LaunchedCells:    d.Summary.LaunchedCells,
		PendingCells:     d.Summary.PendingCells,
		PendingApprovals: d.Summary.PendingApprovals,
		Approved:         d.Summary.Approved,
		Rejected:         d.Summary.Rejected,
		ApprovalRate:     d.Summary.ApprovalRate,
	}
	for _, row := range d.Rows {
		r := DashboardRow{
			GoalID:     row.Goal.ID,
			GoalName:   row.Goal.Name,
			Target:     row.Goal.Target,
			TeamName:   row.TeamName,
			SectorName: row.SectorName,
			Cells:      make([]DashboardCell, 0, len(row.Cells)),
		}
		for _, cell := range row.Cells {
			r.Cells = append(r.Cells, DashboardCell{
				WindowKey:    cell.WindowKey,
				WindowLabel:  cell.WindowLabel,
				State:        string(cell.State),
				ResultID:     cell.ResultID,
				ResultStatus: string(cell.ResultStatus),
				Value:        cell.Value,
				Progress:     cell.Progress,
			})
		}
		out.Rows = append(out.Rows, r)
	}
	return nil, out, nil
}

// PendingApprovalsInput narrows the approval queue.
type PendingApprovalsInput struct {
	SectorID string `json:"sector_id,omitempty" jsonschema:"optional sector identifier"`
}

// PendingApproval is one result awaiting review.
type PendingApproval struct {
	ResultID    string `json:"result_id"`
	GoalName    string `json:"goal_name"`
	GoalTarget  string `json:"goal_target"`
	TeamName    string `json:"team_name"`
	SectorName  string `json:"sector_name"`
	WindowLabel string `json:"window_label"`
	Value       string `json:"value"`
	Progress    *int   `json:"progress,omitempty" jsonschema:"value as a percentage of the target"`
	Observation string `json:"observation"`
	SubmittedBy string `json:"submitted_by"`
	SubmittedAt string `json:"submitted_at" jsonschema:"RFC3339 timestamp"`
}

// PendingApprovalsResult lists the queue.
type PendingApprovalsResult struct {
	Items []PendingApproval `json:"items"`
}

func (t tools) pendingApprovals(ctx context.Context, _ *mcp.CallToolRequest, input PendingApprovalsInput) (*mcp.CallToolResult, PendingApprovalsResult, error) {
	pending, err := t.svc.ListPendingApprovals(ctx, t.actor, input.SectorID)
	if err != nil {
		return nil, PendingApprovalsResult{}, fmt.Errorf("list pending approvals: %w", err)
	}
	out := PendingApprovalsResult{Items: make([]PendingApproval, 0, len(pending))}
	for _, p := range pending {
		out.Items = append(out.Items, PendingApproval{
			ResultID:    p.Result.ID,
			GoalName:    p.GoalName,
			GoalTarget:  p.GoalTarget,
			TeamName:    p.TeamName,
			SectorName:  p.SectorName,
			WindowLabel: p.WindowLabel,
			Value:       p.Result.Value,
			Progress:    p.Progress,
			Observation: p.Result.Observation,
			SubmittedBy: p.Result.SubmittedBy,
			SubmittedAt: formatTime(p.Result.SubmittedAt),
		})
	}
	return nil, out, nil
}

// GoalsInput filters goals.
type GoalsInput struct {
	TeamID   string `json:"team_id,omitempty" jsonschema:"optional team identifier"`
	PeriodID string `json:"period_id,omitempty" jsonschema:"optional period identifier"`
	Status   string `json:"status,omitempty" jsonschema:"optional status: suggested, active, inactive or rejected"`
}

// Goal is a goal summary.
type Goal struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TeamID   string `json:"team_id"`
	PeriodID string `json:"period_id"`
	Metric   string `json:"metric"`
	Weight   int    `json:"weight"`
	Target   string `json:"target,omitempty"`
	Status   string `json:"status"`
}

// GoalsResult lists goals.
type GoalsResult struct {
	Items []Goal `json:"items"`
}

func (t tools) goals(ctx context.Context, _ *mcp.CallToolRequest, input GoalsInput) (*mcp.CallToolResult, GoalsResult, error) {
	goals, err := t.svc.ListGoals(ctx, t.actor, storage.GoalFilter{
		TeamID:   input.TeamID,
		PeriodID: input.PeriodID,
		Status:   goal.Status(input.Status),
	})
	if err != nil {
		return nil, GoalsResult{}, fmt.Errorf("list goals: %w", err)
	}
	out := GoalsResult{Items: make([]Goal, 0, len(goals))}
	for _, g := range goals {
		out.Items = append(out.Items, Goal{
			ID:       g.ID,
			Name:     g.Name,
			TeamID:   g.TeamID,
			PeriodID: g.PeriodID,
			Metric:   string(g.Metric),
			Weight:   g.Weight,
			Target:   g.Target,
			Status:   string(g.Status),
		})
	}
	return nil, out, nil
}

// WeightsInput names the team and period to total.
type WeightsInput struct {
	TeamID   string `json:"team_id" jsonschema:"team identifier"`
	PeriodID string `json:"period_id" jsonschema:"period identifier"`
}

// WeightsResult is the weight total.
type WeightsResult struct {
	Total     int  `json:"total"`
	GoalCount int  `json:"goal_count"`
	Balanced  bool `json:"balanced" jsonschema:"true when the weights total exactly 100"`
}

func (t tools) weights(ctx context.Context, _ *mcp.CallToolRequest, input WeightsInput) (*mcp.CallToolResult, WeightsResult, error) {
	summary, err := t.svc.WeightSummary(ctx, t.actor, input.TeamID, input.PeriodID)
	if err != nil {
		return nil, WeightsResult{}, fmt.Errorf("goal weights: %w", err)
	}
	return nil, WeightsResult{Total: summary.Total, GoalCount: summary.GoalCount, Balanced: summary.Balanced}, nil
}

// PeriodsInput takes no arguments.
type PeriodsInput struct{}

// Window is one period window.
type Window struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Label string `json:"label"`
	Start string `json:"start" jsonschema:"YYYY-MM-DD"`
	End   string `json:"end" jsonschema:"YYYY-MM-DD"`
}

// Period is a period with its windows.
type Period struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Cadence string   `json:"cadence"`
	Start   string   `json:"start" jsonschema:"YYYY-MM-DD"`
	End     string   `json:"end" jsonschema:"YYYY-MM-DD"`
	Active  bool     `json:"active"`
	Windows []Window `json:"windows"`
}

// PeriodsResult lists periods.
type PeriodsResult struct {
	Items []Period `json:"items"`
}

func (t tools) periods(ctx context.Context, _ *mcp.CallToolRequest, _ PeriodsInput) (*mcp.CallToolResult, PeriodsResult, error) {
	periods, err := t.svc.ListPeriods(ctx, t.actor)
	if err != nil {
		return nil, PeriodsResult{}, fmt.Errorf("list periods: %w", err)
	}
	out := PeriodsResult{Items: make([]Period, 0, len(periods))}
	for _, p := range periods {
		windows, err := t.svc.ListWindows(ctx, t.actor, p.ID)
		if err != nil {
			return nil, PeriodsResult{}, fmt.Errorf("list windows for %s: %w", p.ID, err)
		}
		item := Period{
			ID:      p.ID,
			Name:    p.Name,
			Cadence: string(p.Cadence),
			Start:   p.Start.Format(period.DateLayout),
			End:     p.End.Format(period.DateLayout),
			Active:  p.Active,
			Windows: make([]Window, 0, len(windows)),
		}
		for _, w := range windows {
			item.Windows = append(item.Windows, Window{
				ID:    w.ID,
				Key:   w.Key,
				Label: w.Label,
				Start: w.Start.Format(period.DateLayout),
				End:   w.End.Format(period.DateLayout),
			})
		}
		out.Items = append(out.Items, item)
	}
	return nil, out, nil
}

// ResultsInput pages through results.
type ResultsInput struct {
	Filter    string `json:"filter,omitempty" jsonschema:"optional AIP-160 filter, e.g. status = \"pending\""`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"optional page size (default 50, max 200)"`
	PageToken string `json:"page_token,omitempty" jsonschema:"token from a previous call"`
}

// Result is a submitted result.
type Result struct {
	ID          string `json:"id"`
	GoalID      string `json:"goal_id"`
	WindowID    string `json:"window_id"`
	Value       string `json:"value"`
	Observation string `json:"observation"`
	Status      string `json:"status"`
	SubmittedBy string `json:"submitted_by"`
	SubmittedAt string `json:"submitted_at" jsonschema:"RFC3339 timestamp"`
}

// ResultsResult is one page of results.
type ResultsResult struct {
	Items         []Result `json:"items"`
	NextPageToken string   `json:"next_page_token,omitempty"`
}

func (t tools) results(ctx context.Context, _ *mcp.CallToolRequest, input ResultsInput) (*mcp.CallToolResult, ResultsResult, error) {
	page, err := t.svc.ListResults(ctx, t.actor, service.ListResultsInput{
		Filter:    input.Filter,
		PageSize:  input.PageSize,
		PageToken: input.PageToken,
	})
	if err != nil {
		return nil, ResultsResult{}, fmt.Errorf("list results: %w", err)
	}
	out := ResultsResult{Items: make([]Result, 0, len(page.Results)), NextPageToken: page.NextPageToken}
	for _, r := range page.Results {
		out.Items = append(out.Items, Result{
			ID:          r.ID,
			GoalID:      r.GoalID,
			WindowID:    r.WindowID,
			Value:       r.Value,
			Observation: r.Observation,
			Status:      string(r.Status),
			SubmittedBy: r.SubmittedBy,
			SubmittedAt: formatTime(r.SubmittedAt),
		})
	}
	return nil, out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
