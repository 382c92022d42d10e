package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/goal"
	"github.com/louisbranch/metas/internal/services/metas/domain/org"
	"github.com/louisbranch/metas/internal/services/metas/domain/period"
	"github.com/louisbranch/metas/internal/services/metas/domain/result"
)

const maxBodyBytes = 1 << 20

// validate is shared by every request DTO.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("cadence", func(fl validator.FieldLevel) bool {
		_, err := period.ParseCadence(fl.Field().String())
		return err == nil
	})
	return v
}

// decode reads a JSON body into dst and runs its validation tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return invalidRequest("body", "request body is required")
		}
		return invalidRequest("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	return validateStruct(dst)
}

func validateStruct(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return invalidRequest(first.Field(), fmt.Sprintf("%s fails %q", first.Field(), first.Tag()))
	}
	return invalidRequest("body", err.Error())
}

func invalidRequest(field, reason string) error {
	return apperrors.WithMetadata(apperrors.CodeValidationFailed, "invalid request: "+reason, map[string]string{
		"Field":  field,
		"Reason": reason,
	})
}

type sectorRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Active      *bool  `json:"active"`
}

func (req sectorRequest) input() org.SectorInput {
	return org.SectorInput{Name: req.Name, Description: req.Description, Active: req.Active}
}

type teamRequest struct {
	SectorID     string `json:"sector_id" validate:"required"`
	Name         string `json:"name" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=2000"`
	EvidenceLink string `json:"evidence_link" validate:"omitempty,url"`
	Active       *bool  `json:"active"`
}

func (req teamRequest) input() org.TeamInput {
	return org.TeamInput{
		SectorID:     req.SectorID,
		Name:         req.Name,
		Description:  req.Description,
		EvidenceLink: req.EvidenceLink,
		Active:       req.Active,
	}
}

type evidenceLinkRequest struct {
	EvidenceLink string `json:"evidence_link" validate:"omitempty,url"`
}

type periodRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Start   string `json:"start" validate:"required,datetime=2006-01-02"`
	End     string `json:"end" validate:"required,datetime=2006-01-02"`
	Cadence string `json:"cadence" validate:"required,cadence"`
	Locale  string `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

func (req periodRequest) input() (period.CreatePeriodInput, error) {
	start, err := period.ParseDate(req.Start)
	if err != nil {
		return period.CreatePeriodInput{}, err
	}
	end, err := period.ParseDate(req.End)
	if err != nil {
		return period.CreatePeriodInput{}, err
	}
	cadence, err := period.ParseCadence(req.Cadence)
	if err != nil {
		return period.CreatePeriodInput{}, err
	}
	return period.CreatePeriodInput{Name: req.Name, Start: start, End: end, Cadence: cadence, Locale: req.Locale}, nil
}

// previewRequest is a period request without a name.
type previewRequest struct {
	Start   string `json:"start" validate:"required,datetime=2006-01-02"`
	End     string `json:"end" validate:"required,datetime=2006-01-02"`
	Cadence string `json:"cadence" validate:"required,cadence"`
	Locale  string `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

func (req previewRequest) input() (period.CreatePeriodInput, error) {
	return periodRequest{Name: "preview", Start: req.Start, End: req.End, Cadence: req.Cadence, Locale: req.Locale}.input()
}

type periodPatchRequest struct {
	Name   string `json:"name" validate:"max=200"`
	Active *bool  `json:"active"`
}

type goalRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	TeamID      string `json:"team_id" validate:"required"`
	PeriodID    string `json:"period_id" validate:"required"`
	Metric      string `json:"metric"`
	Weight      int    `json:"weight" validate:"min=0,max=100"`
	Target      string `json:"target" validate:"max=200"`
}

func (req goalRequest) input() (goal.CreateGoalInput, error) {
	metric, err := goal.ParseMetricType(req.Metric)
	if err != nil {
		return goal.CreateGoalInput{}, err
	}
	return goal.CreateGoalInput{
		Name:        req.Name,
		Description: req.Description,
		TeamID:      req.TeamID,
		PeriodID:    req.PeriodID,
		Metric:      metric,
		Weight:      req.Weight,
		Target:      req.Target,
	}, nil
}

type goalUpdateRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Metric      string `json:"metric"`
	Weight      int    `json:"weight" validate:"min=0,max=100"`
	Target      string `json:"target" validate:"max=200"`
}

func (req goalUpdateRequest) input() (goal.UpdateGoalInput, error) {
	metric, err := goal.ParseMetricType(req.Metric)
	if err != nil {
		return goal.UpdateGoalInput{}, err
	}
	return goal.UpdateGoalInput{
		Name:        req.Name,
		Description: req.Description,
		Metric:      metric,
		Weight:      req.Weight,
		Target:      req.Target,
	}, nil
}

type goalStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type contentRequest struct {
	Value             string `json:"value" validate:"max=2000"`
	Observation       string `json:"observation" validate:"max=4000"`
	EvidenceConfirmed bool   `json:"evidence_confirmed"`
}

func (req contentRequest) content() result.Content {
	return result.Content{Value: req.Value, Observation: req.Observation, EvidenceConfirmed: req.EvidenceConfirmed}
}

type submitRequest struct {
	GoalID   string `json:"goal_id" validate:"required"`
	WindowID string `json:"window_id" validate:"required"`
	contentRequest
}

type reviewRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type evidenceRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	URL  string `json:"url" validate:"required,url"`
	Size int64  `json:"size" validate:"min=0"`
}

type grantRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	SectorID string `json:"sector_id" validate:"required_without=TeamID,excluded_with=TeamID"`
	TeamID   string `json:"team_id"`
}

func (req grantRequest) input() access.CreateGrantInput {
	return access.CreateGrantInput{UserID: req.UserID, SectorID: req.SectorID, TeamID: req.TeamID}
}
