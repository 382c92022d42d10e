// Package httpapi exposes the goal-management service as JSON over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/louisbranch/metas/internal/platform/httpx"
	"github.com/louisbranch/metas/internal/platform/i18n/catalog"
	"github.com/louisbranch/metas/internal/platform/metrics"
	"github.com/louisbranch/metas/internal/platform/requestctx"
	"github.com/louisbranch/metas/internal/platform/timeouts"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/events"
	"github.com/louisbranch/metas/internal/services/metas/service"
)

// Authenticator resolves a bearer token to an actor.
type Authenticator interface {
	Verify(token string) (access.Actor, error)
}

// Config wires a Server.
type Config struct {
	Service       *service.Service
	Authenticator Authenticator
	// Broker feeds the websocket event stream. Nil disables the stream.
	Broker  *events.Broker
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// Locales lists the supported response locales; the first is the
	// default.
	Locales []string
	// AllowedOrigins lists the origins ("https://metas.example.com") that
	// may open the event stream. Empty accepts any origin.
	AllowedOrigins []string
}

// Server routes HTTP requests to the service.
type Server struct {
	svc     *service.Service
	auth    Authenticator
	broker  *events.Broker
	metrics *metrics.Metrics
	logger  *zap.Logger
	locales []string
	origins map[string]bool
}

// New validates cfg and builds a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("service is required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	locales := cfg.Locales
	if len(locales) == 0 {
		locales = []string{catalog.BaseLocale}
		for _, locale := range catalog.Default().Locales() {
			if locale != catalog.BaseLocale {
				locales = append(locales, locale)
			}
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var origins map[string]bool
	for _, origin := range cfg.AllowedOrigins {
		origin = normalizeOrigin(origin)
		if origin == "" {
			continue
		}
		if origins == nil {
			origins = make(map[string]bool)
		}
		origins[origin] = true
	}
	return &Server{
		svc:     cfg.Service,
		auth:    cfg.Authenticator,
		broker:  cfg.Broker,
		metrics: cfg.Metrics,
		logger:  logger,
		locales: locales,
		origins: origins,
	}, nil
}

// Handler returns the full route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.Handle("GET /v1/me", s.handle(s.me))

	mux.Handle("POST /v1/sectors", s.handle(s.createSector))
	mux.Handle("GET /v1/sectors", s.handle(s.listSectors))
	mux.Handle("GET /v1/sectors/{id}", s.handle(s.getSector))
	mux.Handle("PUT /v1/sectors/{id}", s.handle(s.updateSector))
	mux.Handle("DELETE /v1/sectors/{id}", s.handle(s.deleteSector))

	mux.Handle("POST /v1/teams", s.handle(s.createTeam))
	mux.Handle("GET /v1/teams", s.handle(s.listTeams))
	mux.Handle("GET /v1/teams/{id}", s.handle(s.getTeam))
	mux.Handle("PUT /v1/teams/{id}", s.handle(s.updateTeam))
	mux.Handle("PUT /v1/teams/{id}/evidence-link", s.handle(s.setTeamEvidenceLink))

	mux.Handle("POST /v1/periods", s.handle(s.createPeriod))
	mux.Handle("GET /v1/periods", s.handle(s.listPeriods))
	mux.Handle("POST /v1/periods:preview", s.handle(s.previewWindows))
	mux.Handle("GET /v1/periods/{id}", s.handle(s.getPeriod))
	mux.Handle("PATCH /v1/periods/{id}", s.handle(s.updatePeriod))
	mux.Handle("GET /v1/periods/{id}/windows", s.handle(s.listWindows))

	mux.Handle("POST /v1/goals", s.handle(s.createGoal))
	mux.Handle("GET /v1/goals", s.handle(s.listGoals))
	mux.Handle("GET /v1/goals/{id}", s.handle(s.getGoal))
	mux.Handle("PUT /v1/goals/{id}", s.handle(s.updateGoal))
	mux.Handle("POST /v1/goals/{id}/status", s.handle(s.setGoalStatus))
	mux.Handle("GET /v1/goal-weights", s.handle(s.weightSummary))

	mux.Handle("POST /v1/results", s.handle(s.submitResult))
	mux.Handle("GET /v1/results", s.handle(s.listResults))
	mux.Handle("GET /v1/results/{id}", s.handle(s.getResult))
	mux.Handle("PUT /v1/results/{id}", s.handle(s.amendResult))
	mux.Handle("POST /v1/results/{id}/approve", s.handle(s.approveResult))
	mux.Handle("POST /v1/results/{id}/reject", s.handle(s.rejectResult))
	mux.Handle("POST /v1/results/{id}/reopen", s.handle(s.reopenResult))
	mux.Handle("POST /v1/results/{id}/evidence", s.handle(s.attachEvidence))
	mux.Handle("GET /v1/approvals", s.handle(s.listPendingApprovals))
	mux.Handle("GET /v1/submission-context", s.handle(s.submissionContext))

	mux.Handle("POST /v1/grants", s.handle(s.grantAccess))
	mux.Handle("GET /v1/grants", s.handle(s.listGrants))
	mux.Handle("DELETE /v1/grants/{id}", s.handle(s.revokeAccess))

	mux.Handle("GET /v1/dashboard", s.handle(s.dashboard))

	if s.broker != nil {
		mux.Handle("GET /v1/events/ws", s.eventStream())
	}

	return httpx.Chain(mux,
		httpx.RequestID(),
		httpx.Locale(s.locales),
		httpx.RecoverPanic(s.logger),
		httpx.AccessLog(s.logger, s.metrics),
	)
}

// endpoint runs one authenticated operation and returns the status and
// payload to write.
type endpoint func(ctx context.Context, actor access.Actor, w http.ResponseWriter, r *http.Request) (int, any, error)

// handle authenticates the request and writes the endpoint outcome.
func (s *Server) handle(fn endpoint) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="metas"`)
			httpx.WriteError(w, r, err)
			return
		}
		ctx, cancel := context.WithTimeout(requestctx.WithUserID(r.Context(), actor.UserID), timeouts.Request)
		defer cancel()
		r = r.WithContext(ctx)

		status, payload, err := fn(ctx, actor, w, r)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		if payload == nil {
			w.WriteHeader(status)
			return
		}
		if err := httpx.WriteJSON(w, status, payload); err != nil {
			s.logger.Warn("write response", zap.Error(err))
		}
	})
}

func (s *Server) authenticate(r *http.Request) (access.Actor, error) {
	return s.auth.Verify(bearerToken(r))
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter that websocket clients use.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func (s *Server) me(_ context.Context, actor access.Actor, _ http.ResponseWriter, _ *http.Request) (int, any, error) {
	return http.StatusOK, newActorView(actor), nil
}
