// Package auth verifies bearer tokens and carries the resulting identity
// through request contexts.
package auth

import (
	"context"
	"fmt"
	"strings"

	"bookgate/config"
	"bookgate/pkg/models"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller. An empty UserID never reaches
// handlers; anonymous requests carry no Identity at all.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// Verifier turns a raw bearer token into an Identity
type Verifier interface {
	Verify(ctx context.Context, raw string) (*Identity, error)
	Mode() string
}

// NewVerifier selects the verifier for auth.mode
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (Verifier, error) {
	switch strings.ToLower(cfg.Mode) {
	case "", "none":
		return InsecureVerifier{}, nil
	case "jwt":
		return NewJWTVerifier(cfg.JWT)
	case "oidc":
		return NewOIDCVerifier(ctx, cfg.OIDC)
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

// ExtractBearerToken pulls the token from an Authorization header value.
// An empty header yields "" and no error.
func ExtractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", unauthorized("invalid authorization format", nil)
	}
	return strings.TrimSpace(token), nil
}

type identityKey struct{}

// WithIdentity stores id on ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the caller identity, or nil for anonymous requests
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// UserID returns the caller's user id or "" when anonymous
func UserID(ctx context.Context) string {
	if id := FromContext(ctx); id != nil {
		return id.UserID
	}
	return ""
}

// subjectClaims is the claim set shared by the JWT and OIDC verifiers
type subjectClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	ClientID          string `json:"client_id"`
	AuthorizedParty   string `json:"azp"`
	jwt.RegisteredClaims
}

func (c *subjectClaims) identity() (*Identity, error) {
	sub := c.Subject
	if sub == "" {
		switch {
		case c.PreferredUsername != "":
			sub = c.PreferredUsername
		case c.Email != "":
			sub = c.Email
		case c.ClientID != "":
			sub = c.ClientID
		case c.AuthorizedParty != "":
			sub = c.AuthorizedParty
		default:
			return nil, unauthorized("missing subject claim", nil)
		}
	}
	return &Identity{UserID: sub, Email: c.Email}, nil
}

// InsecureVerifier accepts any token without checking a signature. A JWT's
// subject becomes the user id; any other token is used as the user id
// itself. Production configs reject auth.mode none.
type InsecureVerifier struct{}

func (InsecureVerifier) Mode() string { return "none" }

func (InsecureVerifier) Verify(_ context.Context, raw string) (*Identity, error) {
	if raw == "" {
		return nil, unauthorized("empty token", nil)
	}
	var claims subjectClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return &Identity{UserID: raw}, nil
	}
	return claims.identity()
}

func unauthorized(msg string, err error) error {
	if err == nil {
		err = models.ErrUnauthorized
	} else {
		err = fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}
	return &models.Error{Code: models.ErrCodeAuthFailed, Message: msg, Err: err}
}
