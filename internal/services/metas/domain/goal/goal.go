// Package goal defines goals, their review lifecycle and weight accounting.
package goal

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
	"github.com/louisbranch/metas/internal/platform/id"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
)

// MetricType describes how a goal is measured. It is descriptive only;
// result values are never validated against it.
type MetricType string

const (
	MetricNumeric       MetricType = "numeric"
	MetricMonetary      MetricType = "monetary"
	MetricPercentage    MetricType = "percentage"
	MetricDate          MetricType = "date"
	MetricCount         MetricType = "count"
	MetricScore         MetricType = "score"
	MetricDayDifference MetricType = "day_difference"
)

const (
	defaultMetric = MetricNumeric
	maxWeight     = 100
	balancedTotal = 100
)

var metricAliases = map[string]MetricType{
	"numeric":        MetricNumeric,
	"numero":         MetricNumeric,
	"monetary":       MetricMonetary,
	"monetario":      MetricMonetary,
	"percentage":     MetricPercentage,
	"percentual":     MetricPercentage,
	"date":           MetricDate,
	"data":           MetricDate,
	"count":          MetricCount,
	"quantidade":     MetricCount,
	"score":          MetricScore,
	"pontuacao":      MetricScore,
	"day_difference": MetricDayDifference,
	"diferenca_dias": MetricDayDifference,
}

// Status is the lifecycle state of a goal.
type Status string

const (
	// StatusSuggested marks a launcher proposal awaiting administrator review.
	StatusSuggested Status = "suggested"
	// StatusActive goals accept results and appear on the dashboard.
	StatusActive Status = "active"
	// StatusInactive goals are paused.
	StatusInactive Status = "inactive"
	// StatusRejected marks a declined suggestion. It is terminal.
	StatusRejected Status = "rejected"
)

var (
	// ErrNameEmpty indicates a missing goal name.
	ErrNameEmpty = apperrors.New(apperrors.CodeGoalNameEmpty, "goal name is required")
	// ErrTeamMissing indicates a goal without a team.
	ErrTeamMissing = apperrors.New(apperrors.CodeGoalTeamMissing, "goal team is required")
	// ErrPeriodMissing indicates a goal without a period.
	ErrPeriodMissing = apperrors.New(apperrors.CodeGoalPeriodMissing, "goal period is required")
	// ErrMetricInvalid indicates an unknown metric type.
	ErrMetricInvalid = apperrors.New(apperrors.CodeGoalMetricInvalid, "unknown metric type")
	// ErrWeightInvalid indicates a weight outside 0..100.
	ErrWeightInvalid = apperrors.New(apperrors.CodeGoalWeightInvalid, "goal weight must be within 0..100")
	// ErrStatusInvalid indicates an unknown status.
	ErrStatusInvalid = apperrors.New(apperrors.CodeGoalStatusInvalid, "unknown goal status")
	// ErrNotActive indicates a write that needs an active goal.
	ErrNotActive = apperrors.New(apperrors.CodeGoalNotActive, "goal is not active")
)

// ParseMetricType maps a metric name or alias to a MetricType. Blank input
// selects the numeric metric.
func ParseMetricType(raw string) (MetricType, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return defaultMetric, nil
	}
	metric, ok := metricAliases[trimmed]
	if !ok {
		return "", ErrMetricInvalid
	}
	return metric, nil
}

// ParseStatus maps a status name to a Status.
func ParseStatus(raw string) (Status, error) {
	switch status := Status(strings.ToLower(strings.TrimSpace(raw))); status {
	case StatusSuggested, StatusActive, StatusInactive, StatusRejected:
		return status, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sugerida":
		return StatusSuggested, nil
	case "ativa":
		return StatusActive, nil
	case "inativa":
		return StatusInactive, nil
	case "rejeitada":
		return StatusRejected, nil
	}
	return "", ErrStatusInvalid
}

// Goal is a tracked objective owned by a team within a period.
type Goal struct {
	ID          string
	TeamID      string
	PeriodID    string
	Name        string
	Description string
	Metric      MetricType
	// Cadence is copied from the period at creation and never changes.
	Cadence period.Cadence
	// Weight is the goal's share of its team's period total, in percent.
	Weight    int
	Target    string
	Status    Status
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateGoalInput describes a new goal.
type CreateGoalInput struct {
	Name        string
	Description string
	TeamID      string
	PeriodID    string
	Metric      MetricType
	Weight      int
	Target      string
}

// CreateGoal builds a goal under p. Administrators create active goals;
// anyone else creates a suggestion for review.
func CreateGoal(input CreateGoalInput, p period.Period, creator access.Actor, now func() time.Time, idGenerator func() (string, error)) (Goal, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateGoalInput(input)
	if err != nil {
		return Goal{}, err
	}
	if p.ID != normalized.PeriodID {
		return Goal{}, fmt.Errorf("goal period %q does not match loaded period %q", normalized.PeriodID, p.ID)
	}

	goalID, err := idGenerator()
	if err != nil {
		return Goal{}, fmt.Errorf("generate goal id: %w", err)
	}
	status := StatusSuggested
	if creator.IsAdmin() {
		status = StatusActive
	}
	createdAt := now().UTC()
	return Goal{
		ID:          goalID,
		TeamID:      normalized.TeamID,
		PeriodID:    normalized.PeriodID,
		Name:        normalized.Name,
		Description: normalized.Description,
		Metric:      normalized.Metric,
		Cadence:     p.Cadence,
		Weight:      normalized.Weight,
		Target:      normalized.Target,
		Status:      status,
		CreatedBy:   creator.UserID,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// NormalizeCreateGoalInput trims and validates create input.
func NormalizeCreateGoalInput(input CreateGoalInput) (CreateGoalInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	input.TeamID = strings.TrimSpace(input.TeamID)
	input.PeriodID = strings.TrimSpace(input.PeriodID)
	input.Target = strings.TrimSpace(input.Target)
	if input.Name == "" {
		return CreateGoalInput{}, ErrNameEmpty
	}
	if input.TeamID == "" {
		return CreateGoalInput{}, ErrTeamMissing
	}
	if input.PeriodID == "" {
		return CreateGoalInput{}, ErrPeriodMissing
	}
	metric, err := ParseMetricType(string(input.Metric))
	if err != nil {
		return CreateGoalInput{}, err
	}
	input.Metric = metric
	if input.Weight < 0 || input.Weight > maxWeight {
		return CreateGoalInput{}, ErrWeightInvalid
	}
	return input, nil
}

// UpdateGoalInput carries the editable goal fields. Team, period and
// cadence are fixed once a goal exists.
type UpdateGoalInput struct {
	Name        string
	Description string
	Metric      MetricType
	Weight      int
	Target      string
}

// UpdateGoal applies input to g.
func UpdateGoal(g Goal, input UpdateGoalInput, now func() time.Time) (Goal, error) {
	if now == nil {
		now = time.Now
	}
	normalized, err := NormalizeCreateGoalInput(CreateGoalInput{
		Name:        input.Name,
		Description: input.Description,
		TeamID:      g.TeamID,
		PeriodID:    g.PeriodID,
		Metric:      input.Metric,
		Weight:      input.Weight,
		Target:      input.Target,
	})
	if err != nil {
		return Goal{}, err
	}
	g.Name = normalized.Name
	g.Description = normalized.Description
	g.Metric = normalized.Metric
	g.Weight = normalized.Weight
	g.Target = normalized.Target
	g.UpdatedAt = now().UTC()
	return g, nil
}

// TransitionStatus moves g to status when the lifecycle allows it.
func TransitionStatus(g Goal, to Status, now func() time.Time) (Goal, error) {
	if now == nil {
		now = time.Now
	}
	if _, err := ParseStatus(string(to)); err != nil {
		return Goal{}, err
	}
	if !isStatusTransitionAllowed(g.Status, to) {
		return Goal{}, apperrors.WithMetadata(
			apperrors.CodeGoalInvalidStatusTransition,
			fmt.Sprintf("goal status transition %s -> %s is not allowed", g.Status, to),
			map[string]string{"From": string(g.Status), "To": string(to)},
		)
	}
	g.Status = to
	g.UpdatedAt = now().UTC()
	return g, nil
}

func isStatusTransitionAllowed(from, to Status) bool {
	switch from {
	case StatusSuggested:
		return to == StatusActive || to == StatusRejected
	case StatusActive:
		return to == StatusInactive
	case StatusInactive:
		return to == StatusActive
	default:
		return false
	}
}

// WeightSummary totals the weights of a team's active goals in a period.
type WeightSummary struct {
	TeamID    string
	PeriodID  string
	Total     int
	GoalCount int
	// Balanced is true when the active weights add up to exactly 100.
	Balanced bool
}

// SummarizeWeights totals active goals of teamID in periodID.
func SummarizeWeights(goals []Goal, teamID, periodID string) WeightSummary {
	summary := WeightSummary{TeamID: teamID, PeriodID: periodID}
	for _, g := range goals {
		if g.TeamID != teamID || g.PeriodID != periodID || g.Status != StatusActive {
			continue
		}
		summary.Total += g.Weight
		summary.GoalCount++
	}
	summary.Balanced = summary.Total == balancedTotal
	return summary
}
