// Package service implements the goal-management operations on top of the
// domain packages and a storage.Store. Every operation authenticates the
// actor, authorizes it, persists through the store, and publishes a
// best-effort event.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
	"github.com/louisbranch/metas/internal/platform/i18n/catalog"
	"github.com/louisbranch/metas/internal/platform/id"
	"github.com/louisbranch/metas/internal/platform/metrics"
	"github.com/louisbranch/metas/internal/platform/pagination"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/result"
	"github.com/louisbranch/metas/internal/services/metas/events"
	"github.com/louisbranch/metas/internal/services/metas/storage"
)

const maxPageSize = 200

var pageLimits = pagination.Limits{Default: 50, Max: maxPageSize}

var tracer = otel.Tracer("github.com/louisbranch/metas/internal/services/metas/service")

var (
	// ErrWindowPeriodMismatch indicates a window outside the goal's period.
	ErrWindowPeriodMismatch = apperrors.New(apperrors.CodeWindowPeriodMismatch, "window does not belong to the goal period")
	// ErrTeamInactive indicates a write against an inactive team.
	ErrTeamInactive = apperrors.New(apperrors.CodeTeamInactive, "team is inactive")
	// ErrPageTokenInvalid indicates a page token the store does not know.
	ErrPageTokenInvalid = apperrors.New(apperrors.CodePageTokenInvalid, "page token is invalid")
)

// Config wires a Service.
type Config struct {
	Store  storage.Store
	Events events.Publisher
	Policy result.Policy
	// Locale selects the language of generated window labels.
	Locale  string
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Clock and IDGenerator default to time.Now and id.NewID.
	Clock       func() time.Time
	IDGenerator func() (string, error)
}

// Service runs goal-management operations.
type Service struct {
	store   storage.Store
	events  events.Publisher
	policy  result.Policy
	locale  string
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() (string, error)
}

// New validates cfg and builds a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	svc := &Service{
		store:   cfg.Store,
		events:  cfg.Events,
		policy:  cfg.Policy,
		locale:  cfg.Locale,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Clock,
		newID:   cfg.IDGenerator,
	}
	if svc.events == nil {
		svc.events = events.Discard{}
	}
	if svc.locale == "" {
		svc.locale = catalog.BaseLocale
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.newID == nil {
		svc.newID = id.NewID
	}
	return svc, nil
}

// Policy returns the workflow policy in force.
func (s *Service) Policy() result.Policy {
	return s.policy
}

// begin opens the span for operation and authenticates actor. The returned
// finish func records the outcome; call it with the operation's final error.
func (s *Service) begin(ctx context.Context, operation string, actor access.Actor) (context.Context, func(*error), error) {
	ctx, span := tracer.Start(ctx, "metas."+operation, trace.WithAttributes(
		attribute.String("metas.actor_id", actor.UserID),
		attribute.String("metas.actor_role", string(actor.Role)),
	))
	finish := func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		outcome := "ok"
		if err != nil {
			kind := apperrors.KindOf(err)
			outcome = string(kind)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if kind == apperrors.KindInternal {
				s.logger.Error("operation failed",
					zap.String("operation", operation),
					zap.String("actor_id", actor.UserID),
					zap.Error(err),
				)
			} else {
				s.logger.Debug("operation refused",
					zap.String("operation", operation),
					zap.String("actor_id", actor.UserID),
					zap.String("code", string(apperrors.CodeOf(err))),
				)
			}
		}
		s.metrics.Operation(operation, outcome)
		span.End()
	}
	if err := actor.Validate(); err != nil {
		return ctx, finish, err
	}
	return ctx, finish, nil
}

// publish emits an event. Failures are logged and never returned.
func (s *Service) publish(ctx context.Context, actor access.Actor, eventType events.Type, subjectID, teamID string, data map[string]string) {
	eventID, err := s.newID()
	if err != nil {
		s.logger.Warn("event id generation failed", zap.Error(err))
		return
	}
	event := events.Event{
		ID:         eventID,
		Type:       eventType,
		SubjectID:  subjectID,
		ActorID:    actor.UserID,
		TeamID:     teamID,
		OccurredAt: s.now().UTC(),
		Data:       data,
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("event_type", string(eventType)),
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
	}
}

// notFound converts storage.ErrNotFound into a localized NOT_FOUND error for
// resource and passes everything else through.
func notFound(err error, resource string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.WithMetadata(
			apperrors.CodeNotFound,
			resource+" not found",
			map[string]string{"Resource": resource},
		)
	}
	return err
}

func alreadyExists(err error, resource string) error {
	if errors.Is(err, storage.ErrAlreadyExists) {
		return apperrors.WithMetadata(
			apperrors.CodeAlreadyExists,
			resource+" already exists",
			map[string]string{"Resource": resource},
		)
	}
	return err
}

// grantsFor loads the active grants of actor. Administrators and viewers
// never need them.
func (s *Service) grantsFor(ctx context.Context, actor access.Actor) ([]access.Grant, error) {
	if actor.Role != access.RoleLauncher {
		return nil, nil
	}
	grants, err := s.store.ListGrants(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	active := grants[:0]
	for _, g := range grants {
		if g.Active {
			active = append(active, g)
		}
	}
	return active, nil
}

// requireTeamWrite checks that actor may write on behalf of teamID.
func (s *Service) requireTeamWrite(ctx context.Context, actor access.Actor, sectorID, teamID string) error {
	if actor.IsAdmin() {
		return nil
	}
	grants, err := s.grantsFor(ctx, actor)
	if err != nil {
		return err
	}
	return access.RequireTeamWrite(actor, grants, sectorID, teamID)
}
