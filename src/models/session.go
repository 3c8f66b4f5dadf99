package models

import "time"

// MSessionState enumerates the authentication lifecycle.
type MSessionState int

const (
	SessionUnauthenticated MSessionState = iota
	SessionAuthenticating
	SessionValid
	SessionExpired
)

func (s MSessionState) String() string {
	switch s {
	case SessionAuthenticating:
		return "authenticating"
	case SessionValid:
		return "valid"
	case SessionExpired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// MSession holds the current upstream token. Created empty, refreshed
// indefinitely, never destroyed.
type MSession struct {
	Token     string
	ExpiresAt time.Time
	State     MSessionState
}

// Usable reports whether the cached token can be returned without I/O.
func (s MSession) Usable(now time.Time) bool {
	return s.State == SessionValid && s.Token != "" && now.Before(s.ExpiresAt)
}
