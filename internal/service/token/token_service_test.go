package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rgavrysh/renovator-app-sub001/internal/config"
	xerrors "github.com/rgavrysh/renovator-app-sub001/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testClientID     = "renovator-app"
	testClientSecret = "s3cret"
	testRedirectURI  = "http://localhost:3000/cb"
)

// providerStub scripts the authorization server's token, introspection,
// userinfo and revocation endpoints.
type providerStub struct {
	server *httptest.Server

	tokenStatus int
	tokenBody   map[string]any
	tokenDelay  time.Duration
	tokenCalls  int

	introspectBody map[string]any
	userinfoStatus int
	userinfoBody   map[string]any
	revokeStatus   int

	lastTokenForm url.Values
}

func newProviderStub(t *testing.T) *providerStub {
	t.Helper()

	stub := &providerStub{
		tokenStatus:    http.StatusOK,
		userinfoStatus: http.StatusOK,
		revokeStatus:   http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		stub.tokenCalls++
		if stub.tokenDelay > 0 {
			time.Sleep(stub.tokenDelay)
		}
		require.NoError(t, r.ParseForm())
		stub.lastTokenForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stub.tokenStatus)
		json.NewEncoder(w).Encode(stub.tokenBody)
	})
	mux.HandleFunc("/oauth/introspect", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stub.introspectBody)
	})
	mux.HandleFunc("/oauth/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stub.userinfoStatus)
		json.NewEncoder(w).Encode(stub.userinfoBody)
	})
	mux.HandleFunc("/oauth/revoke", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(stub.revokeStatus)
	})

	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)
	return stub
}

func (p *providerStub) config() config.OAuthConfig {
	return config.OAuthConfig{
		AuthURL:          p.server.URL + "/oauth/authorize",
		TokenURL:         p.server.URL + "/oauth/token",
		UserInfoURL:      p.server.URL + "/oauth/userinfo",
		IntrospectionURL: p.server.URL + "/oauth/introspect",
		RevocationURL:    p.server.URL + "/oauth/revoke",
		ClientID:         testClientID,
		ClientSecret:     testClientSecret,
		Scopes:           []string{"openid", "profile", "email"},
		RequestTimeout:   2 * time.Second,
	}
}

func newTestService(t *testing.T, cfg config.OAuthConfig) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	return svc
}

// ========== Authorization URL ==========

func TestAuthorizationURL(t *testing.T) {
	stub := newProviderStub(t)
	svc := newTestService(t, stub.config())

	rawURL, err := svc.AuthorizationURL(testRedirectURI, "xyz")
	require.NoError(t, err)

	assert.Contains(t, rawURL, "response_type=code")
	assert.Contains(t, rawURL, "state=xyz")
	assert.Contains(t, rawURL, "client_id="+testClientID)
	assert.Contains(t, rawURL, "scope=openid+profile+email")
	assert.Contains(t, rawURL, "redirect_uri="+url.QueryEscape(testRedirectURI))

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	assert.Equal(t, "/oauth/authorize", parsed.Path)
	assert.Equal(t, testRedirectURI, parsed.Query().Get("redirect_uri"))
}

func TestAuthorizationURL_MalformedRedirect(t *testing.T) {
	stub := newProviderStub(t)
	svc := newTestService(t, stub.config())

	_, err := svc.AuthorizationURL("not a url", "xyz")
	assert.ErrorIs(t, err, xerrors.ErrInvalidRequest)

	_, err = svc.AuthorizationURL("/relative/path", "xyz")
	assert.ErrorIs(t, err, xerrors.ErrInvalidRequest)
}

// ========== Exchange ==========

func TestExchangeCode_Success(t *testing.T) {
	stub := newProviderStub(t)
	stub.tokenBody = map[string]any{
		"access_token":  "at-1",
		"refresh_token": "rt-1",
		"expires_in":    3600,
		"token_type":    "Bearer",
		"id_token":      "raw-id-token",
	}
	svc := newTestService(t, stub.config())

	ts, rawIDToken, err := svc.ExchangeCode(context.Background(), "good-code", testRedirectURI)
	require.NoError(t, err)

	assert.Equal(t, "at-1", ts.AccessToken)
	assert.Equal(t, "rt-1", ts.RefreshToken)
	assert.Equal(t, int64(3600), ts.ExpiresIn)
	assert.Equal(t, "Bearer", ts.TokenType)
	assert.Equal(t, "raw-id-token", rawIDToken)

	assert.Equal(t, "authorization_code", stub.lastTokenForm.Get("grant_type"))
	assert.Equal(t, "good-code", stub.lastTokenForm.Get("code"))
	assert.Equal(t, testRedirectURI, stub.lastTokenForm.Get("redirect_uri"))
}

func TestExchangeCode_InvalidGrant(t *testing.T) {
	stub := newProviderStub(t)
	stub.tokenStatus = http.StatusBadRequest
	stub.tokenBody = map[string]any{
		"error":             "invalid_grant",
		"error_description": "Code not valid",
	}
	svc := newTestService(t, stub.config())

	_, _, err := svc.ExchangeCode(context.Background(), "bad-code", testRedirectURI)
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrAuthenticationFailed)
	assert.Contains(t, err.Error(), "Code not valid")
}

// ========== Refresh ==========

func TestRefresh_Success(t *testing.T) {
	stub := newProviderStub(t)
	stub.tokenBody = map[string]any{
		"access_token":  "at-2",
		"refresh_token": "rt-2",
		"expires_in":    1800,
		"token_type":    "Bearer",
	}
	svc := newTestService(t, stub.config())

	ts, err := svc.Refresh(context.Background(), "rt-1")
	require.NoError(t, err)

	assert.Equal(t, "at-2", ts.AccessToken)
	assert.Equal(t, "rt-2", ts.RefreshToken)
	assert.Equal(t, "refresh_token", stub.lastTokenForm.Get("grant_type"))
	assert.Equal(t, "rt-1", stub.lastTokenForm.Get("refresh_token"))
}

func TestRefresh_KeepsOldTokenWithoutRotation(t *testing.T) {
	stub := newProviderStub(t)
	stub.tokenBody = map[string]any{
		"access_token": "at-2",
		"expires_in":   1800,
		"token_type":   "Bearer",
	}
	svc := newTestService(t, stub.config())

	ts, err := svc.Refresh(context.Background(), "rt-1")
	require.NoError(t, err)
	assert.Equal(t, "rt-1", ts.RefreshToken)
}

func TestRefresh_Rejected(t *testing.T) {
	stub := newProviderStub(t)
	stub.tokenStatus = http.StatusBadRequest
	stub.tokenBody = map[string]any{
		"error":             "invalid_grant",
		"error_description": "Refresh token revoked",
	}
	svc := newTestService(t, stub.config())

	_, err := svc.Refresh(context.Background(), "revoked-rt")
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrRefreshFailed)
	assert.Contains(t, err.Error(), "Refresh token revoked")
}

func TestRefresh_Timeout(t *testing.T) {
	stub := newProviderStub(t)
	stub.tokenDelay = 300 * time.Millisecond
	stub.tokenBody = map[string]any{"access_token": "late"}

	cfg := stub.config()
	cfg.RequestTimeout = 50 * time.Millisecond
	svc := newTestService(t, cfg)

	_, err := svc.Refresh(context.Background(), "rt-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrRefreshFailed)
	assert.ErrorIs(t, err, xerrors.ErrProviderUnavailable)
}

func TestRefresh_MissingToken(t *testing.T) {
	stub := newProviderStub(t)
	svc := newTestService(t, stub.config())

	_, err := svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, xerrors.ErrInvalidRequest)
	assert.Zero(t, stub.tokenCalls)
}

// ========== Introspection ==========

func TestIntrospect_Active(t *testing.T) {
	stub := newProviderStub(t)
	stub.introspectBody = map[string]any{
		"active": true,
		"sub":    "ext-123",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scope":  "openid profile email",
	}
	svc := newTestService(t, stub.config())

	intro, err := svc.Introspect(context.Background(), "at-1")
	require.NoError(t, err)

	assert.True(t, intro.Active)
	assert.Equal(t, "ext-123", intro.Subject)
	assert.Equal(t, []string{"openid", "profile", "email"}, intro.Scopes)
	assert.WithinDuration(t, time.Now().Add(time.Hour), intro.ExpiresAt, 5*time.Second)
}

func TestIntrospect_InactiveIsNotAnError(t *testing.T) {
	stub := newProviderStub(t)
	stub.introspectBody = map[string]any{"active": false}
	svc := newTestService(t, stub.config())

	intro, err := svc.Introspect(context.Background(), "stale-token")
	require.NoError(t, err)
	assert.False(t, intro.Active)
}

// ========== UserInfo ==========

func TestFetchUserInfo(t *testing.T) {
	stub := newProviderStub(t)
	stub.userinfoBody = map[string]any{
		"sub":         "ext-123",
		"email":       "jane@example.com",
		"given_name":  "Jane",
		"family_name": "Doe",
	}
	svc := newTestService(t, stub.config())

	info, err := svc.FetchUserInfo(context.Background(), "at-1")
	require.NoError(t, err)

	assert.Equal(t, "ext-123", info.ExternalID)
	assert.Equal(t, "jane@example.com", info.Email)
	assert.Equal(t, "Jane", info.GivenName)
	assert.Equal(t, "Doe", info.FamilyName)
}

func TestFetchUserInfo_RejectedToken(t *testing.T) {
	stub := newProviderStub(t)
	stub.userinfoStatus = http.StatusUnauthorized
	svc := newTestService(t, stub.config())

	_, err := svc.FetchUserInfo(context.Background(), "bad-token")
	assert.ErrorIs(t, err, xerrors.ErrAuthenticationFailed)
}

func TestFetchUserInfo_MissingRequiredFields(t *testing.T) {
	stub := newProviderStub(t)
	stub.userinfoBody = map[string]any{"sub": "ext-123"} // no email
	svc := newTestService(t, stub.config())

	_, err := svc.FetchUserInfo(context.Background(), "at-1")
	assert.ErrorIs(t, err, xerrors.ErrAuthenticationFailed)
}

// ========== Revocation ==========

func TestRevoke(t *testing.T) {
	stub := newProviderStub(t)
	svc := newTestService(t, stub.config())

	assert.NoError(t, svc.Revoke(context.Background(), "at-1"))
}

func TestRevoke_ProviderError(t *testing.T) {
	stub := newProviderStub(t)
	stub.revokeStatus = http.StatusServiceUnavailable
	svc := newTestService(t, stub.config())

	err := svc.Revoke(context.Background(), "at-1")
	assert.ErrorIs(t, err, xerrors.ErrRevokeFailed)
}

func TestRevoke_NoEndpointIsNoop(t *testing.T) {
	stub := newProviderStub(t)
	cfg := stub.config()
	cfg.RevocationURL = ""
	svc := newTestService(t, cfg)

	assert.NoError(t, svc.Revoke(context.Background(), "at-1"))
}

// ========== Expiry hint ==========

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ext-123",
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func TestExpiryHint(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	hint, ok := ExpiryHint(signedJWT(t, exp))
	require.True(t, ok)
	assert.Equal(t, exp.Unix(), hint.Unix())
}

func TestExpiryHint_OpaqueToken(t *testing.T) {
	_, ok := ExpiryHint("not-a-jwt")
	assert.False(t, ok)

	_, ok = ExpiryHint(strings.Repeat("x.", 2) + "x")
	assert.False(t, ok)
}
