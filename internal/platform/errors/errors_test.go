package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeResultValueEmpty, "result value is required")
	wrapped := fmt.Errorf("submit: %w", New(CodeResultValueEmpty, "other message"))

	if !stderrors.Is(wrapped, sentinel) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(wrapped, New(CodeResultObservationEmpty, "x")) {
		t.Fatal("expected different codes not to match")
	}
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeUnknown, "write failed", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
}

func TestKindAndHTTPStatus(t *testing.T) {
	tests := []struct {
		code   Code
		kind   Kind
		status int
	}{
		{CodeResultValueEmpty, KindValidation, http.StatusBadRequest},
		{CodeGoalInvalidStatusTransition, KindInvalidTransition, http.StatusConflict},
		{CodeResultAlreadyProcessed, KindState, http.StatusConflict},
		{CodePermissionDenied, KindAuthorization, http.StatusForbidden},
		{CodeNotFound, KindNotFound, http.StatusNotFound},
		{CodeUnauthenticated, KindUnauthenticated, http.StatusUnauthorized},
		{CodeUnknown, KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.Kind(); got != tt.kind {
				t.Fatalf("kind = %q, want %q", got, tt.kind)
			}
			if got := tt.code.HTTPStatus(); got != tt.status {
				t.Fatalf("status = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestHTTPStatusForPlainError(t *testing.T) {
	if got := HTTPStatus(stderrors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", got)
	}
	if got := HTTPStatus(nil); got != http.StatusOK {
		t.Fatalf("status = %d, want 200", got)
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("approve: %w", New(CodeResultAlreadyProcessed, "already processed"))
	if !IsKind(err, KindState) {
		t.Fatal("expected state kind")
	}
	if IsKind(nil, KindState) {
		t.Fatal("nil error must not match a kind")
	}
}

func TestLocalizedMessage(t *testing.T) {
	err := New(CodeResultRejectionReasonEmpty, "rejection reason is required")

	if got := LocalizedMessage(err, "en-US"); got != "A rejection reason is required." {
		t.Fatalf("en-US message = %q", got)
	}
	if got := LocalizedMessage(err, "pt-BR"); got != "Informe o motivo da rejeição." {
		t.Fatalf("pt-BR message = %q", got)
	}
}

func TestLocalizedMessageHidesInternalErrors(t *testing.T) {
	got := LocalizedMessage(stderrors.New("sql: connection refused"), "en-US")
	if got != "Something went wrong. Please try again." {
		t.Fatalf("message = %q", got)
	}
}
