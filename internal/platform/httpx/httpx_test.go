package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
	"github.com/louisbranch/metas/internal/platform/requestctx"
)

func TestChainAppliesInDeclarationOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("a"), nil, mark("b"))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestctx.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "given")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "given", seen)
}

func TestLocaleNegotiation(t *testing.T) {
	var seen string
	handler := Locale([]string{"en-US", "pt-BR"})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestctx.LocaleFromContext(r.Context())
	}))

	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: "en-US"},
		{header: "pt-BR,pt;q=0.9", want: "pt-BR"},
		{header: "pt", want: "pt-BR"},
		{header: "fr-FR", want: "en-US"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Language", tt.header)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, tt.want, seen, "Accept-Language %q", tt.header)
	}
}

func TestRecoverPanicReturns500(t *testing.T) {
	handler := RecoverPanic(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type observation struct {
	route  string
	status int
}

type recordingObserver struct {
	seen []observation
}

func (o *recordingObserver) ObserveHTTP(_ string, route string, status int, _ time.Duration) {
	o.seen = append(o.seen, observation{route: route, status: status})
}

func TestAccessLogReportsPatternAndStatus(t *testing.T) {
	observer := &recordingObserver{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/goals/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := Chain(mux, AccessLog(nil, observer))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/goals/abc", nil))
	require.Len(t, observer.seen, 1)
	assert.Equal(t, http.StatusTeapot, observer.seen[0].status)
}

func TestWriteErrorLocalizesMessage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(requestctx.WithLocale(req.Context(), "pt-BR"))
	rec := httptest.NewRecorder()

	WriteError(rec, req, apperrors.New(apperrors.CodeResultRejectionReasonEmpty, "reason required"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "RESULT_REJECTION_REASON_EMPTY", body.Error.Code)
	assert.Equal(t, "validation", body.Error.Kind)
	assert.Equal(t, "Informe o motivo da rejeição.", body.Error.Message)
}
