// internal/service/token/token_service.go
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rgavrysh/renovator-app-sub001/internal/config"
	"github.com/rgavrysh/renovator-app-sub001/internal/domain/auth"
	xerrors "github.com/rgavrysh/renovator-app-sub001/internal/pkg/errors"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Service is the only component that knows the authorization-server wire
// protocol. Everything it returns is already translated into domain types
// and the xerrors taxonomy; raw provider payloads never leave this package.
type Service struct {
	cfg        config.OAuthConfig
	oauth      *oauth2.Config
	httpClient *http.Client
	verifier   *oidc.IDTokenVerifier
	logger     *zap.Logger
}

// discoveryClaims are the extra endpoints we read from the OIDC discovery
// document beyond what go-oidc surfaces directly.
type discoveryClaims struct {
	IntrospectionEndpoint string `json:"introspection_endpoint"`
	RevocationEndpoint    string `json:"revocation_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
}

// NewService builds a token service from static endpoint configuration,
// optionally filling gaps via OIDC discovery when an issuer URL is set.
func NewService(ctx context.Context, cfg config.OAuthConfig, logger *zap.Logger) (*Service, error) {
	s := &Service{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}

	if cfg.IssuerURL != "" {
		provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery failed: %w", err)
		}

		var claims discoveryClaims
		if err := provider.Claims(&claims); err != nil {
			return nil, fmt.Errorf("failed to read discovery document: %w", err)
		}

		endpoint := provider.Endpoint()
		if cfg.AuthURL == "" {
			cfg.AuthURL = endpoint.AuthURL
		}
		if cfg.TokenURL == "" {
			cfg.TokenURL = endpoint.TokenURL
		}
		if cfg.UserInfoURL == "" {
			cfg.UserInfoURL = claims.UserInfoEndpoint
		}
		if cfg.IntrospectionURL == "" {
			cfg.IntrospectionURL = claims.IntrospectionEndpoint
		}
		if cfg.RevocationURL == "" {
			cfg.RevocationURL = claims.RevocationEndpoint
		}
		s.cfg = cfg

		s.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	}

	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("authorization and token endpoints must be configured")
	}

	s.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}

	return s, nil
}

// callContext bounds a provider call with the configured timeout and routes
// the oauth2 package through our HTTP client.
func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient), cancel
}

// ========== Authorization URL ==========

// AuthorizationURL deterministically builds the provider's authorization
// endpoint URL for the given redirect URI and optional CSRF state.
func (s *Service) AuthorizationURL(redirectURI, state string) (string, error) {
	if err := validateRedirectURI(redirectURI); err != nil {
		return "", err
	}

	cfg := *s.oauth
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state), nil
}

func validateRedirectURI(redirectURI string) error {
	u, err := url.Parse(redirectURI)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: malformed redirect_uri", xerrors.ErrInvalidRequest)
	}
	return nil
}

// ========== Grants ==========

// ExchangeCode performs the authorization_code grant. Codes are single-use;
// a rejected exchange must not be retried with the same code.
func (s *Service) ExchangeCode(ctx context.Context, code, redirectURI string) (*auth.TokenSet, string, error) {
	if err := validateRedirectURI(redirectURI); err != nil {
		return nil, "", err
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	cfg := *s.oauth
	cfg.RedirectURL = redirectURI

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, "", s.translate("exchange", err, xerrors.ErrAuthenticationFailed)
	}

	rawIDToken, _ := tok.Extra("id_token").(string)
	return tokenSetFrom(tok), rawIDToken, nil
}

// Refresh performs the refresh_token grant. When the provider does not
// rotate refresh tokens the old token is carried into the new set.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*auth.TokenSet, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh token", xerrors.ErrInvalidRequest)
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	src := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, s.translate("refresh", err, xerrors.ErrRefreshFailed)
	}

	ts := tokenSetFrom(tok)
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

// ========== Introspection / UserInfo / Revocation ==========

// introspectionResponse mirrors RFC 7662. Only active is required; everything
// else is optional and validated here so callers never see untyped data.
type introspectionResponse struct {
	Active  bool   `json:"active"`
	Subject string `json:"sub"`
	Exp     int64  `json:"exp"`
	Scope   string `json:"scope"`
}

// Introspect reports whether the token is currently active at the provider.
// An inactive token is a normal result, not an error.
func (s *Service) Introspect(ctx context.Context, accessToken string) (*auth.Introspection, error) {
	if s.cfg.IntrospectionURL == "" {
		return nil, fmt.Errorf("%w: no introspection endpoint configured", xerrors.ErrProviderUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	form := url.Values{
		"token":           {accessToken},
		"token_type_hint": {"access_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.IntrospectionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: introspection: %v", xerrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: introspection returned status %d", xerrors.ErrProviderUnavailable, resp.StatusCode)
	}

	var payload introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: malformed introspection response: %v", xerrors.ErrProviderUnavailable, err)
	}

	result := &auth.Introspection{
		Active:  payload.Active,
		Subject: payload.Subject,
	}
	if payload.Exp > 0 {
		result.ExpiresAt = time.Unix(payload.Exp, 0)
	}
	if payload.Scope != "" {
		result.Scopes = strings.Fields(payload.Scope)
	}

	return result, nil
}

// FetchUserInfo calls the provider's user-info endpoint with the given
// access token and validates the payload at this boundary.
func (s *Service) FetchUserInfo(ctx context.Context, accessToken string) (*auth.UserInfo, error) {
	if s.cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("%w: no userinfo endpoint configured", xerrors.ErrProviderUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo: %v", xerrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: userinfo rejected token", xerrors.ErrAuthenticationFailed)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo returned status %d", xerrors.ErrProviderUnavailable, resp.StatusCode)
	}

	var info auth.UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: malformed userinfo response: %v", xerrors.ErrProviderUnavailable, err)
	}

	if info.ExternalID == "" || info.Email == "" {
		return nil, fmt.Errorf("%w: userinfo missing sub or email", xerrors.ErrAuthenticationFailed)
	}

	return &info, nil
}

// Revoke asks the provider to revoke the access token. Best-effort: callers
// treat a failure here as non-fatal to logout. A missing revocation endpoint
// is a silent no-op.
func (s *Service) Revoke(ctx context.Context, accessToken string) error {
	if s.cfg.RevocationURL == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	form := url.Values{
		"token":           {accessToken},
		"token_type_hint": {"access_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RevocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrRevokeFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrRevokeFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: revocation returned status %d", xerrors.ErrRevokeFailed, resp.StatusCode)
	}

	return nil
}

// ========== ID token verification ==========

// IDTokenClaims are the claims the callback cares about after signature
// verification.
type IDTokenClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Nonce   string `json:"nonce"`
}

// VerifyIDToken verifies the ID token's signature and audience against the
// discovered provider keys. Returns ErrProviderUnavailable when discovery
// was not configured, so callers can decide whether verification is required.
func (s *Service) VerifyIDToken(ctx context.Context, rawIDToken string) (*IDTokenClaims, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("%w: id token verification requires oidc discovery", xerrors.ErrProviderUnavailable)
	}

	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: id token verification failed", xerrors.ErrAuthenticationFailed)
	}

	var claims IDTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: malformed id token claims", xerrors.ErrAuthenticationFailed)
	}

	return &claims, nil
}

// ========== Error translation ==========

// translate maps transport-level and provider-level failures onto the error
// taxonomy. Timeouts carry both the operation kind and ErrProviderUnavailable
// so callers can distinguish retryable transport faults from rejections.
func (s *Service) translate(op string, err error, kind error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		desc := retrieveErr.ErrorDescription
		if desc == "" {
			desc = retrieveErr.ErrorCode
		}
		if desc == "" {
			desc = "provider rejected the request"
		}
		s.logger.Warn("provider rejected grant",
			zap.String("operation", op),
			zap.String("provider_error", retrieveErr.ErrorCode),
		)
		return fmt.Errorf("%w: %s", kind, desc)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", kind, xerrors.ErrProviderUnavailable)
	}

	s.logger.Warn("provider call failed",
		zap.String("operation", op),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %w", kind, xerrors.ErrProviderUnavailable)
}

func tokenSetFrom(tok *oauth2.Token) *auth.TokenSet {
	expiresIn := tok.ExpiresIn
	if expiresIn == 0 && !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Seconds())
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &auth.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
		TokenType:    tokenType,
	}
}
