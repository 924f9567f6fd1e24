package auth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	xerrors "github.com/rgavrysh/renovator-app-sub001/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", xerrors.ErrInvalidRequest, http.StatusBadRequest},
		{"rate limited", xerrors.ErrRateLimited, http.StatusTooManyRequests},
		{"unauthorized", xerrors.ErrUnauthorized, http.StatusUnauthorized},
		{"authentication failed", xerrors.ErrAuthenticationFailed, http.StatusUnauthorized},
		{"refresh failed", xerrors.ErrRefreshFailed, http.StatusUnauthorized},
		{"session expired", xerrors.ErrSessionExpired, http.StatusUnauthorized},
		{"provider unavailable", xerrors.ErrProviderUnavailable, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}

func TestStatusFor_WrappedErrors(t *testing.T) {
	// Wrapped sentinels map the same as bare ones.
	err := fmt.Errorf("callback failed: %w", fmt.Errorf("%w: nonce mismatch", xerrors.ErrAuthenticationFailed))
	assert.Equal(t, http.StatusUnauthorized, statusFor(err))

	// A refresh that failed because the provider was unreachable carries both
	// sentinels; the more specific auth status wins.
	err = fmt.Errorf("%w: %w", xerrors.ErrRefreshFailed, xerrors.ErrProviderUnavailable)
	assert.Equal(t, http.StatusUnauthorized, statusFor(err))
}
