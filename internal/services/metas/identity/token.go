// Package identity issues and verifies the bearer tokens that carry an
// actor's identity and role claim.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/metas/internal/platform/errors"
	"github.com/louisbranch/metas/internal/platform/id"
	"github.com/louisbranch/metas/internal/services/metas/domain/access"
)

const minKeyBytes = 32

// Config holds the shared HMAC key and the expected issuer and audience.
type Config struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c Config) validate() error {
	if len(c.SigningKey) < minKeyBytes {
		return fmt.Errorf("signing key must be at least %d bytes", minKeyBytes)
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return errors.New("issuer is required")
	}
	if strings.TrimSpace(c.Audience) == "" {
		return errors.New("audience is required")
	}
	return nil
}

// claims is the JWT payload.
type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

// Verifier turns bearer tokens into actors.
type Verifier struct {
	cfg Config
}

// NewVerifier validates cfg and builds a Verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{cfg: cfg}, nil
}

// Verify checks the token signature, issuer, audience and lifetime and
// returns the actor it names.
func (v *Verifier) Verify(token string) (access.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return access.Actor{}, access.ErrUnauthenticated
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.cfg.Now),
	)
	if err != nil {
		return access.Actor{}, mapJWTError(err)
	}

	role, err := access.ParseRole(parsed.Role)
	if err != nil {
		return access.Actor{}, unauthenticated("role claim is invalid", "role")
	}
	actor := access.Actor{
		UserID: strings.TrimSpace(parsed.Subject),
		Name:   strings.TrimSpace(parsed.Name),
		Role:   role,
	}
	if err := actor.Validate(); err != nil {
		return access.Actor{}, err
	}
	return actor, nil
}

// Issuer mints tokens for operators and tests.
type Issuer struct {
	cfg   Config
	newID func() (string, error)
}

// NewIssuer validates cfg and builds an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Issuer{cfg: cfg, newID: id.NewID}, nil
}

// Issue signs a token for actor valid for ttl.
func (i *Issuer) Issue(actor access.Actor, ttl time.Duration) (string, error) {
	if err := actor.Validate(); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	jti, err := i.newID()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	now := i.cfg.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    i.cfg.Issuer,
			Subject:   actor.UserID,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
		Name: actor.Name,
	})
	signed, err := token.SignedString(i.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return unauthenticated("token is expired", "exp")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return unauthenticated("token signature is invalid", "signature")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return unauthenticated("token issuer mismatch", "iss")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return unauthenticated("token audience mismatch", "aud")
	default:
		return unauthenticated("token is invalid", "token")
	}
}

func unauthenticated(message, field string) error {
	return apperrors.WithMetadata(apperrors.CodeUnauthenticated, message, map[string]string{"Field": field})
}
