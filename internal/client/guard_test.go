package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func succeedingRefresh(calls *int) RefreshFunc {
	return func(ctx context.Context) error {
		*calls++
		return nil
	}
}

func failingRefresh(calls *int) RefreshFunc {
	return func(ctx context.Context) error {
		*calls++
		return errors.New("refresh rejected")
	}
}

func TestGuard_StartsLoading(t *testing.T) {
	g := NewGuard("/projects/42", succeedingRefresh(new(int)))
	assert.Equal(t, StateLoading, g.State())
}

func TestGuard_UnknownStaysLoading(t *testing.T) {
	g := NewGuard("/projects/42", succeedingRefresh(new(int)))
	assert.Equal(t, StateLoading, g.Observe(context.Background(), StatusUnknown))
	assert.False(t, g.RefreshAttempted())
}

func TestGuard_AuthenticatedIsTerminal(t *testing.T) {
	calls := 0
	g := NewGuard("/projects/42", succeedingRefresh(&calls))

	assert.Equal(t, StateAuthenticated, g.Observe(context.Background(), StatusAuthenticated))

	// A later not-authenticated observation must not trigger a refresh or
	// flip the guard; the mount already resolved.
	assert.Equal(t, StateAuthenticated, g.Observe(context.Background(), StatusNotAuthenticated))
	assert.Zero(t, calls)
}

func TestGuard_RefreshRecoversSession(t *testing.T) {
	calls := 0
	g := NewGuard("/projects/42", succeedingRefresh(&calls))

	state := g.Observe(context.Background(), StatusNotAuthenticated)
	assert.Equal(t, StateAuthenticated, state)
	assert.Equal(t, 1, calls)
	assert.True(t, g.RefreshAttempted())
}

func TestGuard_RefreshFailureRedirects(t *testing.T) {
	calls := 0
	g := NewGuard("/projects/42", failingRefresh(&calls))

	state := g.Observe(context.Background(), StatusNotAuthenticated)
	assert.Equal(t, StateRedirectToLogin, state)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "/projects/42", g.RedirectLocation())
}

func TestGuard_RefreshIsOneShot(t *testing.T) {
	calls := 0
	g := NewGuard("/projects/42", failingRefresh(&calls))

	g.Observe(context.Background(), StatusNotAuthenticated)
	g.Observe(context.Background(), StatusNotAuthenticated)
	g.Observe(context.Background(), StatusNotAuthenticated)

	assert.Equal(t, StateRedirectToLogin, g.State())
	assert.Equal(t, 1, calls)
}

func TestGuard_RedirectIsTerminal(t *testing.T) {
	calls := 0
	g := NewGuard("/projects/42", failingRefresh(&calls))

	g.Observe(context.Background(), StatusNotAuthenticated)

	// Even a spurious authenticated signal cannot undo the redirect decision.
	assert.Equal(t, StateRedirectToLogin, g.Observe(context.Background(), StatusAuthenticated))
}

func TestGuardState_String(t *testing.T) {
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "checking", StateChecking.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "redirect_to_login", StateRedirectToLogin.String())
}
