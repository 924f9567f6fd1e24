// internal/domain/auth/dto.go
package auth

import "time"

// LoginRequest starts the authorization code flow
type LoginRequest struct {
	RedirectURI string `json:"redirect_uri" form:"redirect_uri" binding:"required"`
	State       string `json:"state" form:"state"`
	ReturnTo    string `json:"return_to" form:"return_to"`
	IPAddress   string `json:"-"`
}

// LoginRedirect carries the provider authorization URL back to the client
type LoginRedirect struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// CallbackRequest completes the authorization code flow
type CallbackRequest struct {
	Code        string `json:"code" form:"code"`
	State       string `json:"state" form:"state"`
	RedirectURI string `json:"redirect_uri" form:"redirect_uri" binding:"required"`
}

// LoginResponse successful callback response
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionID    string    `json:"session_id"`
	ReturnTo     string    `json:"return_to,omitempty"`
	User         Profile   `json:"user"`
}

// RefreshRequest for obtaining a new token pair
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	IPAddress    string `json:"-"`
}

// RefreshResponse successful refresh response
type RefreshResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LogoutRequest ends a session; both fields are optional but at least one
// must be present
type LogoutRequest struct {
	SessionID   string `json:"session_id"`
	AccessToken string `json:"-"`
}

// Profile is the identity projection returned to clients; never carries
// token material
type Profile struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// ProfileFromUser maps a stored user onto its outward projection
func ProfileFromUser(u *User) Profile {
	return Profile{
		ID:         u.ID,
		Email:      u.Email,
		GivenName:  u.GivenName,
		FamilyName: u.FamilyName,
	}
}
