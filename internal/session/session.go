// Package session loads, stores and checks the logged-in user.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pbaille/timeclock/internal/domain"
)

// ErrExpired is returned when the stored token's exp claim has passed
var ErrExpired = fmt.Errorf("session expired: %w", domain.ErrAuth)

// Store persists the single current session
type Store interface {
	SaveSession(sess domain.Session) error
	LoadSession() (*domain.Session, error)
	ClearSession() error
}

// Load returns the stored session after checking its token is still usable
func Load(s Store, now time.Time) (domain.Session, error) {
	sess, err := s.LoadSession()
	if err != nil {
		return domain.Session{}, err
	}
	if err := Validate(sess.Token, now); err != nil {
		return domain.Session{}, err
	}
	return *sess, nil
}

// Save stores sess as the current session
func Save(s Store, sess domain.Session) error {
	if strings.TrimSpace(sess.Token) == "" {
		return fmt.Errorf("save session: %w", domain.ErrNoSession)
	}
	return s.SaveSession(sess)
}

// Clear forgets the current session
func Clear(s Store) error {
	return s.ClearSession()
}

// Expiry reads the exp claim without verifying the signature; the client
// does not hold the signing key. ok is false for opaque tokens and tokens
// without exp.
func Expiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Validate rejects empty tokens and JWTs whose exp is before now. Anything
// else is left to the server, which answers 401 when it disagrees.
func Validate(token string, now time.Time) error {
	if strings.TrimSpace(token) == "" {
		return domain.ErrNoSession
	}
	if exp, ok := Expiry(token); ok && !now.Before(exp) {
		return ErrExpired
	}
	return nil
}
