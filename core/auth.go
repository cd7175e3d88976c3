package core

import (
	"strings"
	"time"
)

// Reserved scopes and the fixed session identity.
const (
	ScopeSession   = "__session__" // master login secret
	ScopeSigning   = "__signing__" // session token signing key
	SessionSubject = "user-auth"   // the only identity class
)

// SessionLifetime is the fixed validity window of a session token.
const SessionLifetime = time.Hour

// Session represents an authenticated browser session
type Session struct {
	ID        string    // Unique session identifier (JWT ID)
	Subject   string    // Always SessionSubject
	IssuedAt  time.Time // When the session was minted
	ExpiresAt time.Time // IssuedAt + SessionLifetime
}

// Valid reports whether the session is still live at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// IsReservedScope reports whether scope names an internal secret such as
// the master login or the signing key. Reserved scopes are never checkable
// as resources.
func IsReservedScope(scope string) bool {
	return len(scope) > 4 && strings.HasPrefix(scope, "__") && strings.HasSuffix(scope, "__")
}
