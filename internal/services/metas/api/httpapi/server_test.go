package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/websocket"

	"github.com/louisbranch/metas/internal/platform/metrics"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
	"github.com/louisbranch/metas/internal/services/metas/domain/result"
	"github.com/louisbranch/metas/internal/services/metas/events"
	"github.com/louisbranch/metas/internal/services/metas/identity"
	"github.com/louisbranch/metas/internal/services/metas/service"
	"github.com/louisbranch/metas/internal/services/metas/storage/badger"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type testServer struct {
	*httptest.Server
	issuer *identity.Issuer
	broker *events.Broker
}

// newTestServer starts the API; origins, when given, restrict the event
// stream.
func newTestServer(t *testing.T, origins ...string) *testServer {
	t.Helper()
	store, err := badger.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	broker := events.NewBroker()
	t.Cleanup(broker.Close)

	logger := zaptest.NewLogger(t)
	m := metrics.New()
	svc, err := service.New(service.Config{
		Store:   store,
		Events:  broker,
		Policy:  result.Policy{AllowReopen: true},
		Logger:  logger,
		Metrics: m,
	})
	require.NoError(t, err)

	idCfg := identity.Config{SigningKey: testKey, Issuer: "metas", Audience: "metas-api"}
	verifier, err := identity.NewVerifier(idCfg)
	require.NoError(t, err)
	issuer, err := identity.NewIssuer(idCfg)
	require.NoError(t, err)

	srv, err := New(Config{
		Service:        svc,
		Authenticator:  verifier,
		Broker:         broker,
		Metrics:        m,
		Logger:         logger,
		AllowedOrigins: origins,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, issuer: issuer, broker: broker}
}

func (ts *testServer) token(t *testing.T, actor access.Actor) string {
	t.Helper()
	token, err := ts.issuer.Issue(actor, time.Hour)
	require.NoError(t, err)
	return token
}

// call sends body as JSON and decodes the response into out when non-nil.
func (ts *testServer) call(t *testing.T, actor access.Actor, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if actor.UserID != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, actor))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type errorBody struct {
	Error struct {
		Code      string            `json:"code"`
		Kind      string            `json:"kind"`
		Message   string            `json:"message"`
		Metadata  map[string]string `json:"metadata"`
		RequestID string            `json:"request_id"`
	} `json:"error"`
}

var (
	admin    = access.Actor{UserID: "admin-1", Name: "Ana", Role: access.RoleAdmin}
	launcher = access.Actor{UserID: "launcher-1", Name: "Lia", Role: access.RoleLauncher}
	viewer   = access.Actor{UserID: "viewer-1", Role: access.RoleViewer}
)

// fixture creates a sector, a team, a quarterly period and an active goal.
type fixture struct {
	sector sectorView
	team   teamView
	period periodView
	goal   goalView
}

func (ts *testServer) seed(t *testing.T) fixture {
	t.Helper()
	var f fixture
	require.Equal(t, http.StatusCreated, ts.call(t, admin, http.MethodPost, "/v1/sectors", map[string]any{"name": "Operations"}, &f.sector))
	require.Equal(t, http.StatusCreated, ts.call(t, admin, http.MethodPost, "/v1/teams", map[string]any{
		"sector_id": f.sector.ID,
		"name":      "Logistics",
	}, &f.team))
	require.Equal(t, http.StatusCreated, ts.call(t, admin, http.MethodPost, "/v1/periods", map[string]any{
		"name":    "2025",
		"start":   "2025-01-01",
		"end":     "2025-12-31",
		"cadence": "quarterly",
	}, &f.period))
	require.Len(t, f.period.Windows, 4)
	require.Equal(t, http.StatusCreated, ts.call(t, admin, http.MethodPost, "/v1/goals", map[string]any{
		"name":      "On-time delivery",
		"team_id":   f.team.ID,
		"period_id": f.period.ID,
		"metric":    "percentage",
		"weight":    40,
		"target":    "95",
	}, &f.goal))
	require.Equal(t, "active", f.goal.Status)
	return f
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.call(t, admin, http.MethodGet, "/v1/me", nil, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "metas_http_requests_total")
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/v1/me")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

		var body errorBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "UNAUTHENTICATED", body.Error.Code)
		assert.NotEmpty(t, body.Error.RequestID)
	})

	t.Run("query token", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/v1/me?access_token=" + ts.token(t, launcher))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var me actorView
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
		assert.Equal(t, actorView{UserID: "launcher-1", Name: "Lia", Role: "launcher"}, me)
	})
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name  string
		body  string
		field string
	}{
		{name: "empty body", body: "", field: "body"},
		{name: "unknown field", body: `{"name":"Ops","color":"red"}`, field: "body"},
		{name: "missing name", body: `{"description":"x"}`, field: "name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/sectors", strings.NewReader(tc.body))
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+ts.token(t, admin))
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
			assert.Equal(t, tc.field, body.Error.Metadata["Field"])
		})
	}

	t.Run("bad cadence", func(t *testing.T) {
		var body errorBody
		status := ts.call(t, admin, http.MethodPost, "/v1/periods", map[string]any{
			"name": "2025", "start": "2025-01-01", "end": "2025-12-31", "cadence": "weekly",
		}, &body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "cadence", body.Error.Metadata["Field"])
	})
}

func TestViewerCannotWrite(t *testing.T) {
	ts := newTestServer(t)
	var body errorBody
	status := ts.call(t, viewer, http.MethodPost, "/v1/sectors", map[string]any{"name": "Operations"}, &body)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PERMISSION_DENIED", body.Error.Code)
}

func TestLocalizedErrors(t *testing.T) {
	ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/sectors/missing", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ts.token(t, viewer))
	req.Header.Set("Accept-Language", "pt-BR")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, body.Error.Message)
}

func TestPreviewWindows(t *testing.T) {
	ts := newTestServer(t)
	var out listView[windowView]
	status := ts.call(t, viewer, http.MethodPost, "/v1/periods:preview", map[string]any{
		"start": "2025-01-01", "end": "2025-06-30", "cadence": "bimonthly",
	}, &out)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out.Items, 3)

	var periods listView[periodView]
	ts.call(t, viewer, http.MethodGet, "/v1/periods", nil, &periods)
	assert.Empty(t, periods.Items)
}

func TestSubmitApproveFlow(t *testing.T) {
	ts := newTestServer(t)
	f := ts.seed(t)
	window := f.period.Windows[0]

	var grant grantView
	require.Equal(t, http.StatusCreated, ts.call(t, admin, http.MethodPost, "/v1/grants", map[string]any{
		"user_id": launcher.UserID,
		"team_id": f.team.ID,
	}, &grant))

	var submitted resultView
	require.Equal(t, http.StatusOK, ts.call(t, launcher, http.MethodPost, "/v1/results", map[string]any{
		"goal_id":            f.goal.ID,
		"window_id":          window.ID,
		"value":              "76",
		"observation":        "carrier strike",
		"evidence_confirmed": true,
	}, &submitted))
	assert.Equal(t, "pending", submitted.Status)

	var amended resultView
	require.Equal(t, http.StatusOK, ts.call(t, launcher, http.MethodPut, "/v1/results/"+submitted.ID, map[string]any{
		"value":              "77",
		"observation":        "carrier strike",
		"evidence_confirmed": true,
	}, &amended))
	assert.Equal(t, "77", amended.Value)

	var pending listView[pendingApprovalView]
	require.Equal(t, http.StatusOK, ts.call(t, admin, http.MethodGet, "/v1/approvals", nil, &pending))
	require.Len(t, pending.Items, 1)
	assert.Equal(t, "Logistics", pending.Items[0].TeamName)
	assert.Equal(t, "95", pending.Items[0].GoalTarget)
	require.NotNil(t, pending.Items[0].Progress)
	assert.Equal(t, 81, *pending.Items[0].Progress)

	var approved resultView
	require.Equal(t, http.StatusOK, ts.call(t, admin, http.MethodPost, "/v1/results/"+submitted.ID+"/approve", map[string]any{
		"comment": "ok",
	}, &approved))
	assert.Equal(t, "approved", approved.Status)
	assert.Equal(t, admin.UserID, approved.ReviewedBy)

	var again errorBody
	assert.Equal(t, http.StatusConflict, ts.call(t, admin, http.MethodPost, "/v1/results/"+submitted.ID+"/reject", map[string]any{
		"reason": "late",
	}, &again))
	assert.Equal(t, "RESULT_ALREADY_PROCESSED", again.Error.Code)

	var reopened resultView
	require.Equal(t, http.StatusOK, ts.call(t, admin, http.MethodPost, "/v1/results/"+submitted.ID+"/reopen", nil, &reopened))
	assert.Equal(t, "pending", reopened.Status)

	var page resultPageView
	require.Equal(t, http.StatusOK, ts.call(t, viewer, http.MethodGet, `/v1/results?filter=status%20%3D%20%22pending%22`, nil, &page))
	require.Len(t, page.Results, 1)

	var dash dashboardView
	require.Equal(t, http.StatusOK, ts.call(t, viewer, http.MethodGet, "/v1/dashboard?period_id="+f.period.ID, nil, &dash))
	require.Len(t, dash.Rows, 1)
	assert.Len(t, dash.Rows[0].Cells, 4)
}

func TestApproveWithoutBody(t *testing.T) {
	ts := newTestServer(t)
	f := ts.seed(t)
	var submitted resultView
	require.Equal(t, http.StatusOK, ts.call(t, admin, http.MethodPost, "/v1/results", map[string]any{
		"goal_id":            f.goal.ID,
		"window_id":          f.period.Windows[1].ID,
		"value":              "90",
		"observation":        "steady",
		"evidence_confirmed": true,
	}, &submitted))

	var approved resultView
	assert.Equal(t, http.StatusOK, ts.call(t, admin, http.MethodPost, "/v1/results/"+submitted.ID+"/approve", nil, &approved))
	assert.Equal(t, "approved", approved.Status)
}

func TestInvalidQueryParameters(t *testing.T) {
	ts := newTestServer(t)

	var body errorBody
	assert.Equal(t, http.StatusBadRequest, ts.call(t, viewer, http.MethodGet, "/v1/results?page_size=abc", nil, &body))
	assert.Equal(t, "page_size", body.Error.Metadata["Field"])

	body = errorBody{}
	assert.Equal(t, http.StatusBadRequest, ts.call(t, viewer, http.MethodGet, "/v1/dashboard?state=late", nil, &body))
	assert.Equal(t, "state", body.Error.Metadata["Field"])

	body = errorBody{}
	assert.Equal(t, http.StatusBadRequest, ts.call(t, viewer, http.MethodGet, "/v1/submission-context?goal_id=g", nil, &body))
}

func TestDeleteSectorInUse(t *testing.T) {
	ts := newTestServer(t)
	f := ts.seed(t)

	var body errorBody
	assert.Equal(t, http.StatusConflict, ts.call(t, admin, http.MethodDelete, "/v1/sectors/"+f.sector.ID, nil, &body))
	assert.Equal(t, "SECTOR_IN_USE", body.Error.Code)

	var empty sectorView
	require.Equal(t, http.StatusCreated, ts.call(t, admin, http.MethodPost, "/v1/sectors", map[string]any{"name": "Finance"}, &empty))
	assert.Equal(t, http.StatusNoContent, ts.call(t, admin, http.MethodDelete, "/v1/sectors/"+empty.ID, nil, nil))
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t)
	f := ts.seed(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events/ws?team_id=" + f.team.ID + "&access_token=" + ts.token(t, viewer)
	conn, err := websocket.Dial(wsURL, "", ts.URL)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ts.broker.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	// Events for other teams are filtered out.
	require.NoError(t, ts.broker.Publish(context.Background(), events.Event{Type: events.TeamUpdated, TeamID: "elsewhere"}))
	require.Equal(t, http.StatusOK, ts.call(t, admin, http.MethodPut, "/v1/teams/"+f.team.ID+"/evidence-link", map[string]any{
		"evidence_link": "https://drive.example.com/logistics",
	}, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got events.Event
	require.NoError(t, websocket.JSON.Receive(conn, &got))
	assert.Equal(t, events.TeamEvidenceLinkChanged, got.Type)
	assert.Equal(t, f.team.ID, got.TeamID)
}

func TestEventStreamChecksOrigin(t *testing.T) {
	ts := newTestServer(t, "https://metas.example.com/")
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events/ws?access_token=" + ts.token(t, viewer)

	_, err := websocket.Dial(wsURL, "", "https://attacker.example.net")
	assert.Error(t, err)
	_, err = websocket.Dial(wsURL, "", ts.URL)
	assert.Error(t, err)

	conn, err := websocket.Dial(wsURL, "", "https://Metas.example.com")
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestEventStreamRequiresToken(t *testing.T) {
	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events/ws"
	_, err := websocket.Dial(wsURL, "", ts.URL)
	assert.Error(t, err)
}
