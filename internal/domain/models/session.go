package models

import "time"

// Session binds one issued refresh token to one user. The session ID
// (not the token itself) is what gets embedded into access tokens, so
// deleting the row revokes both tokens at once.
type Session struct {
	ID           string
	RefreshToken string
	UserID       int64
	CreatedAt    time.Time
}

// TokenPair is the result of any operation that issues credentials.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
