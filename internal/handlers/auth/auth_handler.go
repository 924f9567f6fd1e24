// internal/handlers/auth/auth_handler.go
package auth

import (
	"net/http"

	"github.com/rgavrysh/renovator-app-sub001/internal/domain/auth"
	"github.com/rgavrysh/renovator-app-sub001/internal/middleware"
	xerrors "github.com/rgavrysh/renovator-app-sub001/internal/pkg/errors"
	"github.com/rgavrysh/renovator-app-sub001/internal/pkg/response"
	authUsecase "github.com/rgavrysh/renovator-app-sub001/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *authUsecase.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *authUsecase.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case xerrors.Is(err, xerrors.ErrInvalidRequest):
		return http.StatusBadRequest
	case xerrors.Is(err, xerrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case xerrors.Is(err, xerrors.ErrUnauthorized),
		xerrors.Is(err, xerrors.ErrAuthenticationFailed),
		xerrors.Is(err, xerrors.ErrRefreshFailed),
		xerrors.Is(err, xerrors.ErrSessionExpired):
		return http.StatusUnauthorized
	case xerrors.Is(err, xerrors.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ========== Login ==========

// Login starts the authorization code flow and hands the provider URL back
// to the client (or redirects directly when ?redirect=true).
func (h *AuthHandler) Login(c *gin.Context) {
	req := auth.LoginRequest{
		RedirectURI: c.Query("redirect_uri"),
		State:       c.Query("state"),
		ReturnTo:    c.Query("return_to"),
		IPAddress:   c.ClientIP(),
	}

	redirect, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("login failed",
			zap.String("redirect_uri", req.RedirectURI),
			zap.String("ip", req.IPAddress),
			zap.Error(err),
		)
		response.Error(c, statusFor(err), "login failed", err)
		return
	}

	if c.Query("redirect") == "true" {
		c.Redirect(http.StatusFound, redirect.AuthorizationURL)
		return
	}

	response.Success(c, http.StatusOK, "authorization url issued", redirect)
}

// ========== Callback ==========

// Callback completes the code flow. Accepts both GET query params and POST
// form bodies (form_post response mode).
func (h *AuthHandler) Callback(c *gin.Context) {
	// Provider-reported authorization errors arrive as query params.
	if errParam := c.Request.FormValue("error"); errParam != "" {
		h.logger.Warn("provider returned authorization error",
			zap.String("error", errParam),
		)
		response.Error(c, http.StatusUnauthorized, "authorization rejected", xerrors.ErrAuthenticationFailed)
		return
	}

	req := auth.CallbackRequest{
		Code:        c.Request.FormValue("code"),
		State:       c.Request.FormValue("state"),
		RedirectURI: c.Request.FormValue("redirect_uri"),
	}

	loginResp, err := h.authService.Callback(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("callback failed",
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		response.Error(c, statusFor(err), "callback failed", err)
		return
	}

	response.Success(c, http.StatusOK, "login successful", loginResp)
}

// ========== Refresh ==========

// Refresh exchanges a refresh token for a new token pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	req.IPAddress = c.ClientIP()

	refreshResp, err := h.authService.Refresh(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("refresh failed",
			zap.String("ip", req.IPAddress),
			zap.Error(err),
		)
		response.Error(c, statusFor(err), "refresh failed", err)
		return
	}

	response.Success(c, http.StatusOK, "tokens refreshed", refreshResp)
}

// ========== Logout ==========

// Logout revokes the bearer token (best-effort) and deletes the session.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req auth.LogoutRequest
	// Body is optional; a bearer header alone is enough.
	_ = c.ShouldBindJSON(&req)
	req.AccessToken = middleware.ExtractBearer(c)

	if err := h.authService.Logout(c.Request.Context(), &req); err != nil {
		response.Error(c, statusFor(err), "logout failed", err)
		return
	}

	response.Success(c, http.StatusOK, "logout successful", nil)
}

// LogoutAll removes every session of the authenticated user (requires auth).
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	if err := h.authService.LogoutAll(c.Request.Context(), userID); err != nil {
		response.Error(c, http.StatusInternalServerError, "logout all failed", err)
		return
	}

	response.Success(c, http.StatusOK, "all sessions logged out", nil)
}

// ========== Me ==========

// GetMe returns the identity projection of the current user (requires auth).
func (h *AuthHandler) GetMe(c *gin.Context) {
	user := middleware.MustGetUser(c)
	profile := auth.ProfileFromUser(user)
	response.Success(c, http.StatusOK, "profile retrieved", profile)
}
