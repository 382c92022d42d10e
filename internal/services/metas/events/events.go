// Package events fans goal-management changes out to in-process subscribers
// and, optionally, NATS.
package events

import (
	"context"
	"errors"
	"time"
)

// Type names a change.
type Type string

const (
	SectorCreated           Type = "sector.created"
	SectorUpdated           Type = "sector.updated"
	SectorDeleted           Type = "sector.deleted"
	TeamCreated             Type = "team.created"
	TeamUpdated             Type = "team.updated"
	TeamEvidenceLinkChanged Type = "team.evidence_link_changed"
	PeriodCreated           Type = "period.created"
	PeriodUpdated           Type = "period.updated"
	GoalCreated             Type = "goal.created"
	GoalUpdated             Type = "goal.updated"
	GoalStatusChanged       Type = "goal.status_changed"
	ResultSubmitted         Type = "result.submitted"
	ResultAmended           Type = "result.amended"
	ResultEvidenceAttached  Type = "result.evidence_attached"
	ResultApproved          Type = "result.approved"
	ResultRejected          Type = "result.rejected"
	ResultReopened          Type = "result.reopened"
	GrantCreated            Type = "grant.created"
	GrantRevoked            Type = "grant.revoked"
)

// Event is one published change.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	SubjectID  string            `json:"subject_id"`
	ActorID    string            `json:"actor_id"`
	TeamID     string            `json:"team_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Fanout publishes to every member and joins their errors.
type Fanout []Publisher

// Publish delivers event to each publisher in order.
func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, Event) error { return nil }
