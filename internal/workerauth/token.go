// Package workerauth issues and validates the bearer token a worker
// presents on every /worker/{job_id}/... call — scoped to exactly one
// job id and expiring no later than the sandbox poll ceiling.
package workerauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrDisabled is returned when the Issuer has no signing secret configured.
var ErrDisabled = errors.New("workerauth: token issuance disabled")

// ErrInvalidToken covers any parse, signature, expiry, or subject failure.
var ErrInvalidToken = errors.New("workerauth: invalid token")

// Claims embeds the job id as the JWT subject plus the sandbox id that
// requested the token, so a leaked token cannot be replayed by a
// different sandbox for the same job.
type Claims struct {
	SandboxID string `json:"sandbox_id,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and validates job-scoped worker tokens. Mirrors the
// HS256 JWTService pattern used for user sessions, narrowed to a
// single job-id subject and a short, mandatory expiry.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer builds an Issuer. ttl must be positive — worker tokens are
// never issued without an expiry.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if ttl <= 0 {
		return nil, errors.New("workerauth: ttl must be positive")
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token scoped to jobID, valid for the Issuer's ttl from now.
func (i *Issuer) Issue(jobID, sandboxID string) (string, error) {
	if i == nil || len(i.secret) == 0 {
		return "", ErrDisabled
	}
	if strings.TrimSpace(jobID) == "" {
		return "", errors.New("workerauth: job id required")
	}

	now := time.Now()
	claims := Claims{
		SandboxID: sandboxID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   jobID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate parses token and confirms its subject equals jobID — a
// worker authenticated for one job must never be accepted on another's
// endpoints even if both tokens are otherwise well-formed.
func (i *Issuer) Validate(token, jobID string) (*Claims, error) {
	if i == nil || len(i.secret) == 0 {
		return nil, ErrDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Subject != jobID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
