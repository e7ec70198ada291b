package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// PasswordGrantConfig configures the CLI's login against an OIDC provider
type PasswordGrantConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	Scopes       []string
	// TokenFile caches tokens between runs (default: ~/.bookgate/token.json)
	TokenFile string
}

// tokenStore is the on-disk token cache
type tokenStore struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Issuer       string    `json:"issuer"`
}

// bearer prefers the ID token, which is what OIDC-mode servers verify
func (s *tokenStore) bearer() string {
	if s.IDToken != "" {
		return s.IDToken
	}
	return s.AccessToken
}

func (s *tokenStore) valid(now time.Time) bool {
	return s != nil && s.bearer() != "" && now.Before(s.ExpiresAt.Add(-time.Minute))
}

// PasswordTokenSource yields bearer tokens from a cached token, a refresh
// grant or a password grant, in that order.
type PasswordTokenSource struct {
	mu        sync.Mutex
	ctx       context.Context
	oauth     *oauth2.Config
	issuer    string
	username  string
	password  string
	tokenFile string
	store     *tokenStore
	now       func() time.Time
}

var _ oauth2.TokenSource = (*PasswordTokenSource)(nil)

// NewPasswordTokenSource discovers the provider's token endpoint
func NewPasswordTokenSource(ctx context.Context, cfg PasswordGrantConfig) (*PasswordTokenSource, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer url is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client id is required")
	}

	tokenFile := cfg.TokenFile
	if tokenFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		tokenFile = filepath.Join(home, ".bookgate", "token.json")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &PasswordTokenSource{
		ctx: ctx,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       append([]string{oidc.ScopeOpenID}, cfg.Scopes...),
		},
		issuer:    cfg.IssuerURL,
		username:  cfg.Username,
		password:  cfg.Password,
		tokenFile: tokenFile,
		now:       time.Now,
	}, nil
}

// Token implements oauth2.TokenSource
func (s *PasswordTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		if store, err := s.loadToken(); err == nil && store.Issuer == s.issuer {
			s.store = store
		}
	}
	if s.store.valid(s.now()) {
		return s.oauthToken(), nil
	}

	if s.store != nil && s.store.RefreshToken != "" {
		tok, err := s.oauth.TokenSource(s.ctx, &oauth2.Token{RefreshToken: s.store.RefreshToken}).Token()
		if err == nil {
			return s.keep(tok), nil
		}
	}

	if s.username == "" || s.password == "" {
		return nil, errors.New("username and password are required to log in")
	}

	tok, err := s.oauth.PasswordCredentialsToken(s.ctx, s.username, s.password)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return s.keep(tok), nil
}

func (s *PasswordTokenSource) keep(tok *oauth2.Token) *oauth2.Token {
	store := &tokenStore{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Issuer:       s.issuer,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		store.IDToken = id
	}
	if store.RefreshToken == "" && s.store != nil {
		store.RefreshToken = s.store.RefreshToken
	}
	s.store = store

	// a failed save only costs a fresh login next run
	_ = s.saveToken()
	return s.oauthToken()
}

func (s *PasswordTokenSource) oauthToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: s.store.bearer(),
		TokenType:   "Bearer",
		Expiry:      s.store.ExpiresAt,
	}
}

// Logout forgets the cached token
func (s *PasswordTokenSource) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = nil
	if err := os.Remove(s.tokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *PasswordTokenSource) loadToken() (*tokenStore, error) {
	data, err := os.ReadFile(s.tokenFile)
	if err != nil {
		return nil, err
	}
	var store tokenStore
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, err
	}
	return &store, nil
}

func (s *PasswordTokenSource) saveToken() error {
	if err := os.MkdirAll(filepath.Dir(s.tokenFile), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.tokenFile, data, 0o600)
}
