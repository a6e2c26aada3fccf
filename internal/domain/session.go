package domain

import "time"

// Session is server-side state bound to a cookie token.
type Session struct {
	ID        string
	UserID    *int64
	DarkMode  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Authenticated reports whether a user is bound to the session.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != nil
}

// Expired reports whether the session lifetime has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
