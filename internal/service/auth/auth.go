// internal/service/auth/auth.go
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/rgavrysh/renovator-app-sub001/internal/domain/auth"
	"github.com/rgavrysh/renovator-app-sub001/internal/metrics"
	xerrors "github.com/rgavrysh/renovator-app-sub001/internal/pkg/errors"
	"github.com/rgavrysh/renovator-app-sub001/internal/service/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenProvider is the slice of the token service the controller consumes.
type TokenProvider interface {
	AuthorizationURL(redirectURI, state string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (*auth.TokenSet, string, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenSet, error)
	Introspect(ctx context.Context, accessToken string) (*auth.Introspection, error)
	FetchUserInfo(ctx context.Context, accessToken string) (*auth.UserInfo, error)
	Revoke(ctx context.Context, accessToken string) error
	VerifyIDToken(ctx context.Context, rawIDToken string) (*token.IDTokenClaims, error)
}

// SessionStore owns session persistence. Point lookups return nil, nil on
// absence; Delete is idempotent.
type SessionStore interface {
	Create(ctx context.Context, userID int64, ts *auth.TokenSet) (*auth.Session, error)
	GetByID(ctx context.Context, id string) (*auth.Session, error)
	GetByAccessToken(ctx context.Context, accessToken string) (*auth.Session, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*auth.Session, error)
	Update(ctx context.Context, id string, ts *auth.TokenSet) (*auth.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context) (int64, error)
	IsExpired(session *auth.Session) bool
}

// UserStore is the identity collaborator; the controller only needs
// find-or-create-by-email semantics.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*auth.User, error)
	FindByID(ctx context.Context, id int64) (*auth.User, error)
	Create(ctx context.Context, info *auth.UserInfo) (*auth.User, error)
	Update(ctx context.Context, id int64, info *auth.UserInfo) (*auth.User, error)
}

// StateStore holds single-use login-state records for CSRF binding.
type StateStore interface {
	Issue(ctx context.Context, ls *auth.LoginState) error
	Consume(ctx context.Context, state string) (*auth.LoginState, error)
}

// RateLimiter throttles login redirects and refresh grants per address.
type RateLimiter interface {
	CheckLoginAttempt(ctx context.Context, ip string) (bool, int64, error)
	CheckRefreshAttempt(ctx context.Context, ip string) (bool, error)
}

// SessionNotifier pushes session lifecycle events to connected clients.
type SessionNotifier interface {
	ForceLogout(userID int64, sessionID, reason string)
}

type AuthService struct {
	tokens   TokenProvider
	sessions SessionStore
	users    UserStore
	states   StateStore
	limiter  RateLimiter
	hub      SessionNotifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewAuthService(
	tokens TokenProvider,
	sessions SessionStore,
	users UserStore,
	states StateStore,
	limiter RateLimiter,
	hub SessionNotifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		tokens:   tokens,
		sessions: sessions,
		users:    users,
		states:   states,
		limiter:  limiter,
		hub:      hub,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// ========== Login ==========

// Login builds the provider authorization URL and mints a single-use state
// record binding the redirect URI (and the caller's intended destination)
// to the upcoming callback.
func (s *AuthService) Login(ctx context.Context, req *auth.LoginRequest) (*auth.LoginRedirect, error) {
	if req.RedirectURI == "" {
		return nil, fmt.Errorf("%w: missing redirect_uri", xerrors.ErrInvalidRequest)
	}

	if req.IPAddress != "" {
		allowed, _, err := s.limiter.CheckLoginAttempt(ctx, req.IPAddress)
		if err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}
		if !allowed {
			return nil, xerrors.ErrRateLimited
		}
	}

	state := req.State
	if state == "" {
		state = uuid.NewString()
	}

	authURL, err := s.tokens.AuthorizationURL(req.RedirectURI, state)
	if err != nil {
		s.metrics.Observe("login", err)
		return nil, err
	}

	ls := &auth.LoginState{
		State:       state,
		Nonce:       uuid.NewString(),
		RedirectURI: req.RedirectURI,
		ReturnTo:    req.ReturnTo,
		CreatedAt:   s.now(),
	}
	if err := s.states.Issue(ctx, ls); err != nil {
		s.metrics.Observe("login", err)
		return nil, fmt.Errorf("failed to issue login state: %w", err)
	}

	s.metrics.Observe("login", nil)
	return &auth.LoginRedirect{AuthorizationURL: authURL, State: state}, nil
}

// ========== Callback ==========

// Callback completes the code flow: exchange, user-info fetch, identity
// upsert, session creation.
//
// The upsert is keyed by email rather than by the provider's subject id.
// This is deliberate: some identity providers reassign internal ids across
// account migrations, and email is the stable correlation key for this
// application. The latest external id and name fields always win.
func (s *AuthService) Callback(ctx context.Context, req *auth.CallbackRequest) (*auth.LoginResponse, error) {
	resp, err := s.callback(ctx, req)
	s.metrics.Observe("callback", err)
	return resp, err
}

func (s *AuthService) callback(ctx context.Context, req *auth.CallbackRequest) (*auth.LoginResponse, error) {
	if req.Code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", xerrors.ErrInvalidRequest)
	}

	var loginState *auth.LoginState
	if req.State != "" {
		ls, err := s.states.Consume(ctx, req.State)
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown or replayed state", xerrors.ErrInvalidRequest)
		}
		if err != nil {
			return nil, err
		}
		if ls.RedirectURI != req.RedirectURI {
			return nil, fmt.Errorf("%w: redirect_uri does not match login request", xerrors.ErrInvalidRequest)
		}
		loginState = ls
	}

	ts, rawIDToken, err := s.tokens.ExchangeCode(ctx, req.Code, req.RedirectURI)
	if err != nil {
		return nil, err
	}

	// Verify the ID token when both the token and a discovery-backed
	// verifier are available; the nonce binds it to our login state.
	if rawIDToken != "" {
		claims, err := s.tokens.VerifyIDToken(ctx, rawIDToken)
		switch {
		case xerrors.Is(err, xerrors.ErrProviderUnavailable):
			// no discovery configured; verification not possible
		case err != nil:
			return nil, err
		case loginState != nil && claims.Nonce != loginState.Nonce:
			return nil, fmt.Errorf("%w: nonce mismatch", xerrors.ErrAuthenticationFailed)
		}
	}

	info, err := s.tokens.FetchUserInfo(ctx, ts.AccessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.upsertUser(ctx, info)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Create(ctx, user.ID, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("user logged in",
		zap.Int64("user_id", user.ID),
		zap.String("email", user.Email),
		zap.String("session_id", session.ID),
	)

	resp := &auth.LoginResponse{
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		TokenType:    ts.TokenType,
		ExpiresIn:    ts.ExpiresIn,
		ExpiresAt:    session.ExpiresAt,
		SessionID:    session.ID,
		User:         auth.ProfileFromUser(user),
	}
	if loginState != nil {
		resp.ReturnTo = loginState.ReturnTo
	}
	return resp, nil
}

func (s *AuthService) upsertUser(ctx context.Context, info *auth.UserInfo) (*auth.User, error) {
	existing, err := s.users.FindByEmail(ctx, info.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if existing == nil {
		user, err := s.users.Create(ctx, info)
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		return user, nil
	}

	user, err := s.users.Update(ctx, existing.ID, info)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// ========== Refresh ==========

// Refresh exchanges a refresh token for a fresh pair and updates the owning
// session in place. A missing session is not fatal: the caller still gets
// fresh tokens, the session row simply no longer exists to update.
func (s *AuthService) Refresh(ctx context.Context, req *auth.RefreshRequest) (*auth.RefreshResponse, error) {
	resp, err := s.refresh(ctx, req)
	s.metrics.Observe("refresh", err)
	return resp, err
}

func (s *AuthService) refresh(ctx context.Context, req *auth.RefreshRequest) (*auth.RefreshResponse, error) {
	if req.RefreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh_token", xerrors.ErrInvalidRequest)
	}

	if req.IPAddress != "" {
		allowed, err := s.limiter.CheckRefreshAttempt(ctx, req.IPAddress)
		if err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}
		if !allowed {
			return nil, xerrors.ErrRateLimited
		}
	}

	ts, err := s.tokens.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().Add(time.Duration(ts.ExpiresIn) * time.Second)

	// Two concurrent refreshes for one session may race here; last write
	// wins in the store. See DESIGN.md for why this is left unguarded.
	session, err := s.sessions.GetByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		s.logger.Warn("session lookup failed during refresh", zap.Error(err))
	} else if session != nil {
		updated, err := s.sessions.Update(ctx, session.ID, ts)
		if err != nil {
			s.logger.Warn("session update failed during refresh",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
		} else if updated != nil {
			expiresAt = updated.ExpiresAt
		}
	}

	return &auth.RefreshResponse{
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		TokenType:    ts.TokenType,
		ExpiresIn:    ts.ExpiresIn,
		ExpiresAt:    expiresAt,
	}, nil
}

// ========== Logout ==========

// Logout revokes the access token (best-effort) and deletes the session.
// Revocation failure never blocks session deletion or the logout response.
func (s *AuthService) Logout(ctx context.Context, req *auth.LogoutRequest) error {
	if req.AccessToken == "" && req.SessionID == "" {
		return fmt.Errorf("%w: nothing to log out", xerrors.ErrInvalidRequest)
	}

	sessionID := req.SessionID

	if req.AccessToken != "" {
		if err := s.tokens.Revoke(ctx, req.AccessToken); err != nil {
			s.logger.Warn("token revocation failed", zap.Error(err))
		}

		if sessionID == "" {
			session, err := s.sessions.GetByAccessToken(ctx, req.AccessToken)
			if err != nil {
				s.logger.Warn("session lookup failed during logout", zap.Error(err))
			} else if session != nil {
				sessionID = session.ID
			}
		}
	}

	if sessionID != "" {
		var userID int64
		if session, err := s.sessions.GetByID(ctx, sessionID); err == nil && session != nil {
			userID = session.UserID
		}

		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}

		if userID != 0 {
			s.hub.ForceLogout(userID, sessionID, "user logged out")
		}
	}

	s.metrics.Observe("logout", nil)
	return nil
}

// LogoutAll removes every session for a user and notifies connected clients.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) error {
	if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	s.hub.ForceLogout(userID, "", "all sessions logged out")
	return nil
}

// ========== Me / identity gate ==========

// Me returns the identity projection for a bearer token. Never returns
// token material.
func (s *AuthService) Me(ctx context.Context, accessToken string) (*auth.Profile, error) {
	user, _, err := s.IdentityFromToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	profile := auth.ProfileFromUser(user)
	return &profile, nil
}

// IdentityFromToken is the outward authorization contract: any downstream
// service resolves a bearer token to an identity through it. Fast path is
// the local session lookup; introspection is the fallback for tokens issued
// out-of-band (e.g. another client of the same realm).
func (s *AuthService) IdentityFromToken(ctx context.Context, accessToken string) (*auth.User, *auth.Session, error) {
	if accessToken == "" {
		return nil, nil, xerrors.ErrUnauthorized
	}

	// Reject tokens whose embedded exp is already past without touching
	// the store or the provider.
	if exp, ok := token.ExpiryHint(accessToken); ok && exp.Before(s.now()) {
		return nil, nil, fmt.Errorf("%w: %w", xerrors.ErrUnauthorized, xerrors.ErrSessionExpired)
	}

	session, err := s.sessions.GetByAccessToken(ctx, accessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up session: %w", err)
	}

	if session != nil {
		if s.sessions.IsExpired(session) {
			return nil, nil, fmt.Errorf("%w: %w", xerrors.ErrUnauthorized, xerrors.ErrSessionExpired)
		}
		user, err := s.users.FindByID(ctx, session.UserID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to look up user: %w", err)
		}
		if user == nil {
			return nil, nil, xerrors.ErrUnauthorized
		}
		return user, session, nil
	}

	// No local session: ask the provider.
	intro, err := s.tokens.Introspect(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}
	if !intro.Active {
		return nil, nil, xerrors.ErrUnauthorized
	}

	info, err := s.tokens.FetchUserInfo(ctx, accessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", xerrors.ErrUnauthorized, err)
	}

	user, err := s.users.FindByEmail(ctx, info.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, nil, xerrors.ErrUnauthorized
	}

	return user, nil, nil
}

// ========== Maintenance ==========

// SweepExpiredSessions bulk-removes sessions past their expiry. Driven by
// the server's background ticker, never by request handlers.
func (s *AuthService) SweepExpiredSessions(ctx context.Context) (int64, error) {
	count, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.metrics.SessionsSwept.Add(float64(count))
		s.logger.Info("swept expired sessions", zap.Int64("count", count))
	}
	return count, nil
}
