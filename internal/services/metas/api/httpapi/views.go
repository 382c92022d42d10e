package httpapi

import (
	"time"

	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/dashboard"
	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/domain/result"
	"github.com/louisbranch/metas/internal/services/metas/service"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

type actorView struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role"`
}

func newActorView(a access.Actor) actorView {
	return actorView{UserID: a.UserID, Name: a.Name, Role: string(a.Role)}
}

type sectorView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newSectorView(s org.Sector) sectorView {
	return sectorView{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Active:      s.Active,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

type teamView struct {
	ID           string    `json:"id"`
	SectorID     string    `json:"sector_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	EvidenceLink string    `json:"evidence_link,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newTeamView(t org.Team) teamView {
	return teamView{
		ID:           t.ID,
		SectorID:     t.SectorID,
		Name:         t.Name,
		Description:  t.Description,
		EvidenceLink: t.EvidenceLink,
		Active:       t.Active,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

type periodView struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Start     string       `json:"start"`
	End       string       `json:"end"`
	Cadence   string       `json:"cadence"`
	Active    bool         `json:"active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Windows   []windowView `json:"windows,omitempty"`
}

func newPeriodView(p period.Period, windows []period.Window) periodView {
	return periodView{
		ID:        p.ID,
		Name:      p.Name,
		Start:     p.Start.Format(period.DateLayout),
		End:       p.End.Format(period.DateLayout),
		Cadence:   string(p.Cadence),
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Windows:   newWindowViews(windows),
	}
}

type windowView struct {
	ID       string `json:"id,omitempty"`
	PeriodID string `json:"period_id,omitempty"`
	Key      string `json:"key"`
	Label    string `json:"label"`
	Ordinal  int    `json:"ordinal"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

func newWindowView(w period.Window) windowView {
	return windowView{
		ID:       w.ID,
		PeriodID: w.PeriodID,
		Key:      w.Key,
		Label:    w.Label,
		Ordinal:  w.Ordinal,
		Start:    w.Start.Format(period.DateLayout),
		End:      w.End.Format(period.DateLayout),
	}
}

func newWindowViews(windows []period.Window) []windowView {
	if windows == nil {
		return nil
	}
	out := make([]windowView, 0, len(windows))
	for _, w := range windows {
		out = append(out, newWindowView(w))
	}
	return out
}

type goalView struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	PeriodID    string    `json:"period_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Metric      string    `json:"metric"`
	Cadence     string    `json:"cadence"`
	Weight      int       `json:"weight"`
	Target      string    `json:"target,omitempty"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newGoalView(g goal.Goal) goalView {
	return goalView{
		ID:          g.ID,
		TeamID:      g.TeamID,
		PeriodID:    g.PeriodID,
		Name:        g.Name,
		Description: g.Description,
		Metric:      string(g.Metric),
		Cadence:     string(g.Cadence),
		Weight:      g.Weight,
		Target:      g.Target,
		Status:      string(g.Status),
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

type weightSummaryView struct {
	TeamID    string `json:"team_id"`
	PeriodID  string `json:"period_id"`
	Total     int    `json:"total"`
	GoalCount int    `json:"goal_count"`
	Balanced  bool   `json:"balanced"`
}

func newWeightSummaryView(s goal.WeightSummary) weightSummaryView {
	return weightSummaryView{
		TeamID:    s.TeamID,
		PeriodID:  s.PeriodID,
		Total:     s.Total,
		GoalCount: s.GoalCount,
		Balanced:  s.Balanced,
	}
}

type evidenceView struct {
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type resultView struct {
	ID                string         `json:"id"`
	GoalID            string         `json:"goal_id"`
	WindowID          string         `json:"window_id"`
	Value             string         `json:"value"`
	Observation       string         `json:"observation"`
	EvidenceConfirmed bool           `json:"evidence_confirmed"`
	Evidence          []evidenceView `json:"evidence,omitempty"`
	Status            string         `json:"status"`
	SubmittedBy       string         `json:"submitted_by"`
	SubmittedAt       time.Time      `json:"submitted_at"`
	EditedBy          string         `json:"edited_by,omitempty"`
	EditedAt          *time.Time     `json:"edited_at,omitempty"`
	ReviewedBy        string         `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time     `json:"reviewed_at,omitempty"`
	ReviewComment     string         `json:"review_comment,omitempty"`
	RejectionReason   string         `json:"rejection_reason,omitempty"`
	Reopened          bool           `json:"reopened"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func newResultView(r result.Result) resultView {
	view := resultView{
		ID:                r.ID,
		GoalID:            r.GoalID,
		WindowID:          r.WindowID,
		Value:             r.Value,
		Observation:       r.Observation,
		EvidenceConfirmed: r.EvidenceConfirmed,
		Status:            string(r.Status),
		SubmittedBy:       r.SubmittedBy,
		SubmittedAt:       r.SubmittedAt,
		EditedBy:          r.EditedBy,
		EditedAt:          r.EditedAt,
		ReviewedBy:        r.ReviewedBy,
		ReviewedAt:        r.ReviewedAt,
		ReviewComment:     r.ReviewComment,
		RejectionReason:   r.RejectionReason,
		Reopened:          r.Reopened,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	for _, file := range r.Evidence {
		view.Evidence = append(view.Evidence, evidenceView(file))
	}
	return view
}

type resultPageView struct {
	Results       []resultView `json:"results"`
	NextPageToken string       `json:"next_page_token,omitempty"`
}

func newResultPageView(page storage.ResultPage) resultPageView {
	view := resultPageView{Results: make([]resultView, 0, len(page.Results)), NextPageToken: page.NextPageToken}
	for _, r := range page.Results {
		view.Results = append(view.Results, newResultView(r))
	}
	return view
}

type pendingApprovalView struct {
	Result      resultView `json:"result"`
	GoalName    string     `json:"goal_name"`
	GoalTarget  string     `json:"goal_target"`
	TeamID      string     `json:"team_id"`
	TeamName    string     `json:"team_name"`
	SectorID    string     `json:"sector_id"`
	SectorName  string     `json:"sector_name"`
	WindowKey   string     `json:"window_key"`
	WindowLabel string     `json:"window_label"`
	Progress    *int       `json:"progress,omitempty"`
}

func newPendingApprovalView(p service.PendingApproval) pendingApprovalView {
	return pendingApprovalView{
		Result:      newResultView(p.Result),
		GoalName:    p.GoalName,
		GoalTarget:  p.GoalTarget,
		TeamID:      p.TeamID,
		TeamName:    p.TeamName,
		SectorID:    p.SectorID,
		SectorName:  p.SectorName,
		WindowKey:   p.WindowKey,
		WindowLabel: p.WindowLabel,
		Progress:    p.Progress,
	}
}

type submissionContextView struct {
	Goal             goalView    `json:"goal"`
	Window           windowView  `json:"window"`
	Team             teamView    `json:"team"`
	EvidenceLink     string      `json:"evidence_link,omitempty"`
	EvidenceFileName string      `json:"evidence_file_name"`
	Existing         *resultView `json:"existing,omitempty"`
	CanSubmit        bool        `json:"can_submit"`
}

func newSubmissionContextView(sc service.SubmissionContext) submissionContextView {
	view := submissionContextView{
		Goal:             newGoalView(sc.Goal),
		Window:           newWindowView(sc.Window),
		Team:             newTeamView(sc.Team),
		EvidenceLink:     sc.Team.EvidenceLink,
		EvidenceFileName: sc.EvidenceFileName,
		CanSubmit:        sc.CanSubmit,
	}
	if sc.Existing != nil {
		existing := newResultView(*sc.Existing)
		view.Existing = &existing
	}
	return view
}

type grantView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Scope     string    `json:"scope"`
	SectorID  string    `json:"sector_id,omitempty"`
	TeamID    string    `json:"team_id,omitempty"`
	GrantedBy string    `json:"granted_by"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func newGrantView(g access.Grant) grantView {
	return grantView{
		ID:        g.ID,
		UserID:    g.UserID,
		Scope:     string(g.Scope()),
		SectorID:  g.SectorID,
		TeamID:    g.TeamID,
		GrantedBy: g.GrantedBy,
		Active:    g.Active,
		CreatedAt: g.CreatedAt,
	}
}

type cellView struct {
	WindowID     string `json:"window_id"`
	WindowKey    string `json:"window_key"`
	WindowLabel  string `json:"window_label"`
	Ordinal      int    `json:"ordinal"`
	State        string `json:"state"`
	ResultID     string `json:"result_id,omitempty"`
	ResultStatus string `json:"result_status,omitempty"`
	Value        string `json:"value,omitempty"`
	Progress     *int   `json:"progress,omitempty"`
}

type rowView struct {
	Goal       goalView   `json:"goal"`
	TeamName   string     `json:"team_name"`
	SectorID   string     `json:"sector_id"`
	SectorName string     `json:"sector_name"`
	Cells      []cellView `json:"cells"`
}

type summaryView struct {
	TotalGoals       int     `json:"total_goals"`
	TotalCells       int     `json:"total_cells"`
	LaunchedCells    int     `json:"launched_cells"`
	PendingCells     int     `json:"pending_cells"`
	PendingApprovals int     `json:"pending_approvals"`
	Approved         int     `json:"approved"`
	Rejected         int     `json:"rejected"`
	ApprovalRate     float64 `json:"approval_rate"`
}

type dashboardView struct {
	Rows    []rowView   `json:"rows"`
	Summary summaryView `json:"summary"`
}

func newDashboardView(d dashboard.Dashboard) dashboardView {
	view := dashboardView{
		Rows:    make([]rowView, 0, len(d.Rows)),
		Summary: summaryView(d.Summary),
	}
	for _, row := range d.Rows {
		rv := rowView{
			Goal:       newGoalView(row.Goal),
			TeamName:   row.TeamName,
			SectorID:   row.SectorID,
			SectorName: row.SectorName,
			Cells:      make([]cellView, 0, len(row.Cells)),
		}
		for _, cell := range row.Cells {
			rv.Cells = append(rv.Cells, cellView{
				WindowID:     cell.WindowID,
				WindowKey:    cell.WindowKey,
				WindowLabel:  cell.WindowLabel,
				Ordinal:      cell.Ordinal,
				State:        string(cell.State),
				ResultID:     cell.ResultID,
				ResultStatus: string(cell.ResultStatus),
				Value:        cell.Value,
				Progress:     cell.Progress,
			})
		}
		view.Rows = append(view.Rows, rv)
	}
	return view
}
