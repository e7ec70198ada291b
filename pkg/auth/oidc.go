package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bookgate/config"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCVerifier validates ID tokens against a discovered OIDC provider
type OIDCVerifier struct {
	verifier   *oidc.IDTokenVerifier
	cfg        config.OIDCConfig
	httpClient *http.Client
}

// NewOIDCVerifier runs provider discovery once; key sets are refreshed by
// go-oidc as tokens arrive.
func NewOIDCVerifier(ctx context.Context, cfg config.OIDCConfig) (*OIDCVerifier, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: newInstrumentedTransport(nil),
	}
	// go-oidc keeps this client for later JWKS fetches
	providerCtx := oidc.ClientContext(ctx, httpClient)
	if cfg.AllowInsecureIssuer {
		providerCtx = oidc.InsecureIssuerURLContext(providerCtx, cfg.IssuerURL)
	}

	provider, err := oidc.NewProvider(providerCtx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	verifier := provider.VerifierContext(providerCtx, &oidc.Config{
		ClientID:          cfg.ClientID,
		SkipIssuerCheck:   cfg.AllowInsecureIssuer,
		SkipClientIDCheck: cfg.SkipClientIDCheck,
	})

	return &OIDCVerifier{verifier: verifier, cfg: cfg, httpClient: httpClient}, nil
}

func (v *OIDCVerifier) Mode() string { return "oidc" }

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	start := time.Now()

	verifyCtx := oidc.ClientContext(ctx, v.httpClient)
	if v.cfg.AllowInsecureIssuer {
		verifyCtx = oidc.InsecureIssuerURLContext(verifyCtx, v.cfg.IssuerURL)
	}

	idToken, err := v.verifier.Verify(verifyCtx, raw)
	if err != nil {
		recordTokenValidation(ctx, v.Mode(), time.Since(start), "invalid")
		return nil, unauthorized("invalid token", err)
	}

	var claims subjectClaims
	if err := idToken.Claims(&claims); err != nil {
		recordTokenValidation(ctx, v.Mode(), time.Since(start), "bad_claims")
		return nil, unauthorized("failed to extract claims", err)
	}
	if claims.Subject == "" {
		claims.Subject = idToken.Subject
	}

	id, err := claims.identity()
	if err != nil {
		recordTokenValidation(ctx, v.Mode(), time.Since(start), "no_subject")
		return nil, err
	}
	recordTokenValidation(ctx, v.Mode(), time.Since(start), "success")
	return id, nil
}
