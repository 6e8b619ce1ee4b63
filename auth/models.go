package auth

import "time"

// Credentials is a login request.
type Credentials struct {
	Email    string
	Password string
}

// Session is the single live session of a user. Logging in again replaces
// it, which invalidates the previous token.
type Session struct {
	UserID    int
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
