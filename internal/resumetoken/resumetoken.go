// Package resumetoken implements spec.md §6's resume-token requirement:
// a suspended tool execution is addressed by a signed, stateless token
// rather than a blocked in-memory goroutine, so a front-end process
// restart can still resume a pending confirmation.
//
// Grounded on the teacher's internal/auth/jwt.go JWTService
// (HMAC-signed jwt.RegisteredClaims, ParseWithClaims with an explicit
// signing-method check), re-targeted at the spec's
// {session_id, turn_id, exp} claim set rather than a user identity.
package resumetoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is returned for any malformed, expired, or mis-signed token.
var ErrInvalid = errors.New("resumetoken: invalid or expired token")

// Claims identifies the suspended turn a resume token addresses.
type Claims struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	jwt.RegisteredClaims
}

// Signer issues and verifies resume tokens, HMAC-signed with a
// per-deployment key.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner builds a Signer. ttl bounds how long a suspended
// confirmation may be resumed before the token expires (the scheduler's
// own ExecutionState has no independent expiry; this is the only clock).
func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Issue signs a resume token for sessionID/turnID.
func (s *Signer) Issue(sessionID, turnID string) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("resumetoken: signer has no secret configured")
	}
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(turnID) == "" {
		return "", errors.New("resumetoken: sessionID and turnID are required")
	}

	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		TurnID:    turnID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("resumetoken: sign: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a resume token, returning the session and
// turn it addresses.
func (s *Signer) Verify(token string) (sessionID, turnID string, err error) {
	if len(s.secret) == 0 {
		return "", "", errors.New("resumetoken: signer has no secret configured")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", "", ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", "", ErrInvalid
	}
	if claims.SessionID == "" || claims.TurnID == "" {
		return "", "", ErrInvalid
	}
	return claims.SessionID, claims.TurnID, nil
}
