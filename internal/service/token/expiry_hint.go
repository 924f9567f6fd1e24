// internal/service/token/expiry_hint.go
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryHint peeks at a JWT-shaped access token and extracts its exp claim
// without verifying the signature. It is strictly an optimization hint: a
// token already past its embedded exp can be rejected without a network
// round trip, but a token passing this check still goes through the session
// lookup or introspection. Opaque tokens return ok=false.
func ExpiryHint(accessToken string) (time.Time, bool) {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}
