package models

import (
	"errors"
	"time"
)

// Session represents the authenticated backend user on this device.
type Session struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccessToken string    `json:"-"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ErrNoSession is returned by remote operations attempted without a user.
var ErrNoSession = errors.New("no active session")
