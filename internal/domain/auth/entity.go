// internal/domain/auth/entity.go
package auth

import (
	"time"
)

// Session binds a user to an issued token pair and its expiry. It is created
// once after a successful code exchange; refresh overwrites the token fields
// in place and the id never changes.
type Session struct {
	ID           string    `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"user_id"`
	AccessToken  string    `json:"-" db:"access_token"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// TokenSet is the transient result of a code exchange or refresh. It is never
// persisted on its own; it either builds a new Session or overwrites an
// existing one.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds, relative
	TokenType    string `json:"token_type"`
}

// User is the locally stored projection of a provider identity. Upsert is
// keyed by email, not by external id, to tolerate providers that reassign
// internal subject ids.
type User struct {
	ID         int64     `json:"id" db:"id"`
	ExternalID string    `json:"external_id" db:"external_id"`
	Email      string    `json:"email" db:"email"`
	GivenName  string    `json:"given_name" db:"given_name"`
	FamilyName string    `json:"family_name" db:"family_name"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// UserInfo is the validated shape of the provider's user-info payload.
// Required fields are ExternalID and Email; the rest may be empty.
type UserInfo struct {
	ExternalID string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Name       string `json:"name"`
	Picture    string `json:"picture"`
}

// Introspection is the validated shape of the provider's introspection
// response. Active=false is a normal outcome, not an error.
type Introspection struct {
	Active    bool      `json:"active"`
	Subject   string    `json:"sub"`
	ExpiresAt time.Time `json:"-"`
	Scopes    []string  `json:"-"`
}

// LoginState is the CSRF-binding record minted at login and consumed exactly
// once at callback.
type LoginState struct {
	State       string    `json:"state"`
	Nonce       string    `json:"nonce"`
	RedirectURI string    `json:"redirect_uri"`
	ReturnTo    string    `json:"return_to,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
