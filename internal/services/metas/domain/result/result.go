// Package result implements the submission ledger and the approval state
// machine for goal results.
//
// A result is unique per (goal, window). Submitting again for the same pair
// amends the existing entry. Every entry starts pending and is finalized only
// by an explicit administrator approve or reject.
package result

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
	"github.com/louisbranch/metas/internal/platform/id"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
)

// Status is the approval state of a result.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Finalized reports whether s is a terminal approval state.
func (s Status) Finalized() bool {
	return s == StatusApproved || s == StatusRejected
}

var (
	// ErrValueEmpty indicates a submission without a result value.
	ErrValueEmpty = apperrors.New(apperrors.CodeResultValueEmpty, "result value is required")
	// ErrObservationEmpty indicates a submission without an observation.
	ErrObservationEmpty = apperrors.New(apperrors.CodeResultObservationEmpty, "observation is required")
	// ErrEvidenceUnconfirmed indicates a non-administrator submission without
	// evidence confirmation.
	ErrEvidenceUnconfirmed = apperrors.New(apperrors.CodeResultEvidenceUnconfirmed, "evidence must be confirmed")
	// ErrRejectionReasonEmpty indicates a reject without a reason.
	ErrRejectionReasonEmpty = apperrors.New(apperrors.CodeResultRejectionReasonEmpty, "rejection reason is required")
	// ErrEvidenceFileInvalid indicates malformed evidence file metadata.
	ErrEvidenceFileInvalid = apperrors.New(apperrors.CodeResultEvidenceFileInvalid, "evidence file needs a name and an http(s) url")
	// ErrAlreadyProcessed indicates an approve or reject on a result that is
	// no longer pending.
	ErrAlreadyProcessed = apperrors.New(apperrors.CodeResultAlreadyProcessed, "result already processed")
	// ErrFinalized indicates a non-administrator write on a finalized result.
	ErrFinalized = apperrors.New(apperrors.CodeResultFinalized, "result is finalized")
	// ErrNotFinalized indicates a reopen on a pending result.
	ErrNotFinalized = apperrors.New(apperrors.CodeResultNotFinalized, "result is not finalized")
	// ErrReopenDisabled indicates a reopen while the policy forbids it.
	ErrReopenDisabled = apperrors.New(apperrors.CodeResultReopenDisabled, "reopening finalized results is disabled")
)

// Policy holds the configurable workflow rules.
type Policy struct {
	// AllowReopen lets administrators move finalized results back to pending.
	AllowReopen bool
}

// EvidenceFile is metadata returned by the external blob store.
type EvidenceFile struct {
	Name       string
	URL        string
	Size       int64
	UploadedBy string
	UploadedAt time.Time
}

// Result is one ledger entry for a (goal, window) pair.
type Result struct {
	ID                string
	GoalID            string
	WindowID          string
	Value             string
	Observation       string
	EvidenceConfirmed bool
	Evidence          []EvidenceFile
	Status            Status

	SubmittedBy string
	SubmittedAt time.Time
	// EditedBy is set when someone other than the submitter changed the entry.
	EditedBy string
	EditedAt *time.Time

	ReviewedBy      string
	ReviewedAt      *time.Time
	ReviewComment   string
	RejectionReason string
	// Reopened is true once a finalized entry has been returned to pending.
	Reopened bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Content is the submitter-provided part of a result.
type Content struct {
	Value             string
	Observation       string
	EvidenceConfirmed bool
}

func (c Content) normalize() Content {
	c.Value = strings.TrimSpace(c.Value)
	c.Observation = strings.TrimSpace(c.Observation)
	return c
}

// ValidateContent checks required fields. Administrators may skip the
// evidence confirmation.
func ValidateContent(content Content, actor access.Actor) error {
	content = content.normalize()
	if content.Value == "" {
		return ErrValueEmpty
	}
	if content.Observation == "" {
		return ErrObservationEmpty
	}
	if !content.EvidenceConfirmed && !actor.IsAdmin() {
		return ErrEvidenceUnconfirmed
	}
	return nil
}

func (r Result) content() Content {
	return Content{Value: r.Value, Observation: r.Observation, EvidenceConfirmed: r.EvidenceConfirmed}
}

// SubmitInput identifies the ledger slot and its content.
type SubmitInput struct {
	GoalID   string
	WindowID string
	Content
}

// Submit creates the entry for (goal, window) or amends the existing one.
//
// The returned flag is false when the submission left existing unchanged:
// an identical re-submit on a pending entry is a no-op. Re-submitting on a
// finalized entry is reserved to administrators and needs policy.AllowReopen;
// it resets the entry to pending.
func Submit(existing *Result, input SubmitInput, actor access.Actor, policy Policy, now func() time.Time, idGenerator func() (string, error)) (Result, bool, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	if err := ValidateContent(input.Content, actor); err != nil {
		return Result{}, false, err
	}
	content := input.Content.normalize()
	at := now().UTC()

	if existing == nil {
		resultID, err := idGenerator()
		if err != nil {
			return Result{}, false, fmt.Errorf("generate result id: %w", err)
		}
		return Result{
			ID:                resultID,
			GoalID:            strings.TrimSpace(input.GoalID),
			WindowID:          strings.TrimSpace(input.WindowID),
			Value:             content.Value,
			Observation:       content.Observation,
			EvidenceConfirmed: content.EvidenceConfirmed,
			Status:            StatusPending,
			SubmittedBy:       actor.UserID,
			SubmittedAt:       at,
			CreatedAt:         at,
			UpdatedAt:         at,
		}, true, nil
	}

	current := *existing
	if current.Status.Finalized() {
		if !actor.IsAdmin() {
			return Result{}, false, ErrFinalized
		}
		if !policy.AllowReopen {
			return Result{}, false, ErrReopenDisabled
		}
		current = reopen(current, at)
	} else {
		if !actor.IsAdmin() && actor.UserID != current.SubmittedBy {
			return Result{}, false, access.ErrPermissionDenied
		}
		if current.content() == content {
			return current, false, nil
		}
	}
	return applyContent(current, content, actor, at), true, nil
}

// Amend changes the content of r. Administrators may amend at any status;
// the original submitter may amend only while r is pending.
func Amend(r Result, content Content, editor access.Actor, now func() time.Time) (Result, error) {
	if now == nil {
		now = time.Now
	}
	if err := ValidateContent(content, editor); err != nil {
		return Result{}, err
	}
	if !editor.IsAdmin() {
		if editor.UserID != r.SubmittedBy {
			return Result{}, access.ErrPermissionDenied
		}
		if r.Status.Finalized() {
			return Result{}, ErrFinalized
		}
	}
	return applyContent(r, content.normalize(), editor, now().UTC()), nil
}

func applyContent(r Result, content Content, editor access.Actor, at time.Time) Result {
	r.Value = content.Value
	r.Observation = content.Observation
	r.EvidenceConfirmed = content.EvidenceConfirmed
	if editor.UserID != r.SubmittedBy {
		r.EditedBy = editor.UserID
		r.EditedAt = &at
	}
	r.UpdatedAt = at
	return r
}

// Approve finalizes a pending result as approved.
func Approve(r Result, approver access.Actor, comment string, now func() time.Time) (Result, error) {
	if now == nil {
		now = time.Now
	}
	if err := access.RequireAdmin(approver); err != nil {
		return Result{}, err
	}
	if r.Status != StatusPending {
		return Result{}, ErrAlreadyProcessed
	}
	at := now().UTC()
	r.Status = StatusApproved
	r.ReviewedBy = approver.UserID
	r.ReviewedAt = &at
	r.ReviewComment = strings.TrimSpace(comment)
	r.RejectionReason = ""
	r.UpdatedAt = at
	return r, nil
}

// Reject finalizes a pending result as rejected. The reason is validated
// before the state so an empty reason never reaches the store.
func Reject(r Result, approver access.Actor, reason string, now func() time.Time) (Result, error) {
	if now == nil {
		now = time.Now
	}
	if err := access.RequireAdmin(approver); err != nil {
		return Result{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Result{}, ErrRejectionReasonEmpty
	}
	if r.Status != StatusPending {
		return Result{}, ErrAlreadyProcessed
	}
	at := now().UTC()
	r.Status = StatusRejected
	r.ReviewedBy = approver.UserID
	r.ReviewedAt = &at
	r.ReviewComment = ""
	r.RejectionReason = reason
	r.UpdatedAt = at
	return r, nil
}

// Reopen returns a finalized result to pending when policy allows it.
func Reopen(r Result, actor access.Actor, policy Policy, now func() time.Time) (Result, error) {
	if now == nil {
		now = time.Now
	}
	if err := access.RequireAdmin(actor); err != nil {
		return Result{}, err
	}
	if !policy.AllowReopen {
		return Result{}, ErrReopenDisabled
	}
	if !r.Status.Finalized() {
		return Result{}, ErrNotFinalized
	}
	return reopen(r, now().UTC()), nil
}

func reopen(r Result, at time.Time) Result {
	r.Status = StatusPending
	r.Reopened = true
	r.ReviewedBy = ""
	r.ReviewedAt = nil
	r.ReviewComment = ""
	r.RejectionReason = ""
	r.UpdatedAt = at
	return r
}

// AttachEvidence appends file metadata to r. Same permission rules as Amend.
func AttachEvidence(r Result, file EvidenceFile, actor access.Actor, now func() time.Time) (Result, error) {
	if now == nil {
		now = time.Now
	}
	file.Name = strings.TrimSpace(file.Name)
	file.URL = strings.TrimSpace(file.URL)
	if file.Name == "" || file.Size < 0 || !isHTTPURL(file.URL) {
		return Result{}, ErrEvidenceFileInvalid
	}
	if !actor.IsAdmin() {
		if actor.UserID != r.SubmittedBy {
			return Result{}, access.ErrPermissionDenied
		}
		if r.Status.Finalized() {
			return Result{}, ErrFinalized
		}
	}
	at := now().UTC()
	file.UploadedBy = actor.UserID
	file.UploadedAt = at
	r.Evidence = append(append([]EvidenceFile(nil), r.Evidence...), file)
	r.UpdatedAt = at
	return r, nil
}

func isHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}

// EvidenceFileName suggests the name a submitter should give the evidence
// file for goalName in the window identified by windowKey.
func EvidenceFileName(goalName, windowKey string) string {
	name := strings.Join(strings.Fields(goalName), "_")
	if name == "" {
		name = "GOAL"
	}
	key := strings.TrimSpace(windowKey)
	if key == "" {
		key = "YYYY-MM"
	}
	return "META_" + name + "_MES_" + key
}
