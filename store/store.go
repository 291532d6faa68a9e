// Package store persists the authenticated session so a restarted gateway
// starts warm instead of re-authenticating on its first call.
package store

import (
	"context"
	"time"
)

// SessionInfo is a validated remote session with its expiry.
// It is treated as valid only while now < ExpiresAt.
type SessionInfo struct {
	Token     string    `json:"token" yaml:"token"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

// Valid reports whether the session is usable at the given time.
func (s *SessionInfo) Valid(now time.Time) bool {
	return s != nil && s.Token != "" && now.Before(s.ExpiresAt)
}

// SessionStore persists the gateway session.
// GetSession returns nil without error when no session is stored.
type SessionStore interface {
	GetSession(ctx context.Context) (*SessionInfo, error)
	PutSession(ctx context.Context, session *SessionInfo) error
	DeleteSession(ctx context.Context) error
}
