package model

import "time"

// TokenResponse is the triple returned by the auth callback and by
// POST /auth/refresh. IDToken and RefreshToken may be omitted on refresh,
// in which case the previous values stay in effect.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Profile holds the display fields decoded from the ID token payload.
// The decode is display-only; no signature is verified.
type Profile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"preferred_username"`
}

// Session is the signed-in user's credential state.
type Session struct {
	AccessToken  string    `json:"access_token"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token"`
	Profile      Profile   `json:"profile"`
	ExpiresAt    time.Time `json:"expires_at"`
}
