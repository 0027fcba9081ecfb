package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Validation failures are rejected before any upstream call is made.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrExpiredToken = errors.New("bearer token expired")
)

// Session is the explicit per-call authentication context. It is owned by
// the caller and passed to each operation; there is no process-wide client
// holding a token.
type Session struct {
	Token     string
	Subject   string
	ExpiresAt time.Time
}

// FromToken introspects the upstream bearer token without verifying it (the
// upstream holds the signing key, not this relay). When the token is a JWT,
// its subject keys the snapshot cache and its expiry allows rejecting dead
// tokens early; otherwise the subject falls back to a digest of the token.
func FromToken(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrMissingToken
	}

	sess := Session{Token: token}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			sess.Subject = sub
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			sess.ExpiresAt = exp.Time
		}
	}
	if sess.Subject == "" {
		digest := sha256.Sum256([]byte(token))
		sess.Subject = hex.EncodeToString(digest[:8])
	}
	return sess, nil
}

// Valid reports an error when the token is already known to be expired.
func (s Session) Valid(now time.Time) error {
	if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
		return ErrExpiredToken
	}
	return nil
}
