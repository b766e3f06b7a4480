// Package auth provides bearer-token issuance and validation, password
// hashing, the authentication middleware, and optional GitHub sign-in.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. POST /api/login with username + password → bcrypt check against the stored hash
//  2. Server issues a signed JWT carrying the user ID ("sub") and role
//  3. The client sends it on every write as "Authorization: Bearer <jwt>"
//  4. RequireAuth validates the signature and expiry and puts the Principal
//     into the request context
//
// The token is stateless: the server verifies it with the secret alone, no
// DB lookup. Services still re-read the caller's stored role before any
// privileged write, so a role change takes effect before the token expires.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/stackit/internal/model"
)

const issuer = "stackit"

// DefaultTokenTTL matches the 24h session the web client expects.
const DefaultTokenTTL = 24 * time.Hour

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and token
// lifetime. A zero ttl falls back to DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// Principal is the identity carried by a validated token.
type Principal struct {
	UserID string
	Role   model.Role
}

// claims is the JWT payload: the registered claims plus the caller's role.
type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Generate signs a token for the given user with the configured lifetime.
func (s *TokenService) Generate(userID string, role model.Role) (string, error) {
	return s.GenerateWithDuration(userID, role, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime.
// Used in tests (negative durations produce already-expired tokens).
func (s *TokenService) GenerateWithDuration(userID string, role model.Role, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns its Principal.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid and the algorithm is HS256 (no "none" tokens)
//   - Token is not expired, and has an expiry at all
//   - Issuer matches "stackit"
//
// A token whose role claim is not a known role is rejected.
func (s *TokenService) Validate(tokenStr string) (Principal, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, fmt.Errorf("auth: token expired")
		}
		return Principal{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Principal{}, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return Principal{}, fmt.Errorf("auth: token has no subject")
	}

	role, err := model.ParseRole(c.Role)
	if err != nil {
		return Principal{}, fmt.Errorf("auth: token role: %w", err)
	}

	return Principal{UserID: c.Subject, Role: role}, nil
}
