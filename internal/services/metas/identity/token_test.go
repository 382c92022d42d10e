package identity

import (
	"strings"
	"testing"
	"time"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func testConfig(now time.Time) Config {
	return Config{
		SigningKey: testKey,
		Issuer:     "metas",
		Audience:   "metas-api",
		Now:        func() time.Time { return now },
	}
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	issuer, err := NewIssuer(testConfig(now))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	verifier, err := NewVerifier(testConfig(now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := issuer.Issue(access.Actor{UserID: "u-1", Name: "Ana", Role: access.RoleLauncher}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	actor, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if actor.UserID != "u-1" || actor.Name != "Ana" || actor.Role != access.RoleLauncher {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	issuer, err := NewIssuer(testConfig(now))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, err := issuer.Issue(access.Actor{UserID: "u-1", Role: access.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	otherKey := testConfig(now)
	otherKey.SigningKey = []byte(strings.Repeat("z", 32))
	otherAudience := testConfig(now)
	otherAudience.Audience = "someone-else"

	tests := []struct {
		name  string
		cfg   Config
		token string
		field string
	}{
		{name: "empty", cfg: testConfig(now), token: "", field: ""},
		{name: "garbage", cfg: testConfig(now), token: "not.a.jwt", field: "token"},
		{name: "expired", cfg: testConfig(now.Add(2 * time.Hour)), token: token, field: "exp"},
		{name: "wrong key", cfg: otherKey, token: token, field: "signature"},
		{name: "wrong audience", cfg: otherAudience, token: token, field: "aud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier, err := NewVerifier(tt.cfg)
			if err != nil {
				t.Fatalf("new verifier: %v", err)
			}
			_, err = verifier.Verify(tt.token)
			if apperrors.CodeOf(err) != apperrors.CodeUnauthenticated {
				t.Fatalf("error = %v, want UNAUTHENTICATED", err)
			}
			if tt.field == "" {
				return
			}
			domainErr, _ := apperrors.As(err)
			if got := domainErr.Metadata["Field"]; got != tt.field {
				t.Fatalf("field = %q, want %q", got, tt.field)
			}
		})
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := NewVerifier(Config{SigningKey: []byte("short"), Issuer: "metas", Audience: "api"}); err == nil {
		t.Fatal("expected short key error")
	}
	if _, err := NewIssuer(Config{SigningKey: testKey, Audience: "api"}); err == nil {
		t.Fatal("expected missing issuer error")
	}
}

func TestIssueRejectsAnonymousActor(t *testing.T) {
	issuer, err := NewIssuer(testConfig(time.Now()))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	if _, err := issuer.Issue(access.Actor{Role: access.RoleViewer}, time.Hour); err == nil {
		t.Fatal("expected error for actor without id")
	}
}
