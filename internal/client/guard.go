// internal/client/guard.go
package client

import "context"

// GuardState is the route guard's position in its lifecycle.
type GuardState int

const (
	// StateLoading: auth status unknown, render a neutral waiting view.
	StateLoading GuardState = iota
	// StateChecking: not authenticated, the one refresh attempt is in flight.
	StateChecking
	// StateAuthenticated: terminal for this mount; render protected content.
	StateAuthenticated
	// StateRedirectToLogin: terminal for this mount; carries the requested
	// location so login can return the user afterwards.
	StateRedirectToLogin
)

func (s GuardState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	case StateRedirectToLogin:
		return "redirect_to_login"
	default:
		return "unknown"
	}
}

// AuthStatus is the externally observed authentication status fed into the
// guard.
type AuthStatus int

const (
	StatusUnknown AuthStatus = iota
	StatusAuthenticated
	StatusNotAuthenticated
)

// RefreshFunc attempts one token refresh; nil error means the status will
// resolve to authenticated.
type RefreshFunc func(ctx context.Context) error

// Guard decides whether protected content renders, a refresh is attempted,
// or the user is redirected to login. It mirrors the gateway's one-shot
// refresh discipline at the navigation layer: navigation and data fetching
// are different call sites and neither may retry unboundedly.
type Guard struct {
	state     GuardState
	attempted bool
	location  string
	refresh   RefreshFunc
}

// NewGuard creates a guard for one mount of a protected location.
func NewGuard(location string, refresh RefreshFunc) *Guard {
	return &Guard{
		state:    StateLoading,
		location: location,
		refresh:  refresh,
	}
}

// Observe feeds the current auth status into the guard and returns the
// resulting state. Terminal states never regress: once authenticated the
// guard never refreshes again, and once redirecting it stays redirecting.
func (g *Guard) Observe(ctx context.Context, status AuthStatus) GuardState {
	if g.state == StateAuthenticated || g.state == StateRedirectToLogin {
		return g.state
	}

	switch status {
	case StatusUnknown:
		g.state = StateLoading

	case StatusAuthenticated:
		g.state = StateAuthenticated

	case StatusNotAuthenticated:
		if g.attempted {
			g.state = StateRedirectToLogin
			return g.state
		}

		g.state = StateChecking
		err := g.refresh(ctx)
		// The attempt is spent regardless of outcome.
		g.attempted = true

		if err != nil {
			g.state = StateRedirectToLogin
		} else {
			g.state = StateAuthenticated
		}
	}

	return g.state
}

// State returns the guard's current state without advancing it.
func (g *Guard) State() GuardState {
	return g.state
}

// RefreshAttempted reports whether the one refresh attempt has been spent.
func (g *Guard) RefreshAttempted() bool {
	return g.attempted
}

// RedirectLocation returns the originally requested location for post-login
// return.
func (g *Guard) RedirectLocation() string {
	return g.location
}
