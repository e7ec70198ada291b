package auth

import (
	"context"
	"fmt"
	"time"

	"bookgate/config"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier checks HS256 tokens signed with a shared secret
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier builds a verifier enforcing expiry and, when configured,
// issuer and audience.
func NewJWTVerifier(cfg config.JWTConfig) (*JWTVerifier, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &JWTVerifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

func (v *JWTVerifier) Mode() string { return "jwt" }

func (v *JWTVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	start := time.Now()

	var claims subjectClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		recordTokenValidation(ctx, v.Mode(), time.Since(start), "invalid")
		return nil, unauthorized("invalid token", err)
	}

	id, err := claims.identity()
	if err != nil {
		recordTokenValidation(ctx, v.Mode(), time.Since(start), "no_subject")
		return nil, err
	}
	recordTokenValidation(ctx, v.Mode(), time.Since(start), "success")
	return id, nil
}

// SignHS256 issues a token for userID. Used by the CLI for local testing
// against a jwt-mode server.
func SignHS256(secret, userID, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
