// Package auth issues and checks the credentials used by the habit-tracker API:
// HS256 session tokens, bcrypt password hashes, and the optional GitHub OAuth
// sign-in.
//
// SESSION FLOW:
//  1. The client signs up, signs in, or completes the GitHub callback.
//  2. The server issues a JWT whose "sub" claim is the internal user id and
//     returns it both in the body and in an HttpOnly "token" cookie.
//  3. Browsers send the cookie back; mobile clients send
//     "Authorization: Bearer <jwt>". RequireAuth accepts either.
//
// The server keeps no session table. Signing out clears the cookie; the token
// itself stays valid until it expires.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer is written to and required in every token.
	Issuer = "habit-tracker"
	// TokenLifetime is how long an issued session token stays valid.
	TokenLifetime = 24 * time.Hour
)

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// TokenService signs and verifies session tokens with one HMAC secret.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
}

// NewTokenService creates a TokenService. Secrets shorter than 16 bytes are
// rejected; config.Validate asks for 32 in production.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), lifetime: TokenLifetime}, nil
}

// Lifetime is the validity period of tokens from Issue. Handlers use it for
// the cookie MaxAge.
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}

type claims struct {
	jwt.RegisteredClaims
}

// Issue signs a session token for userID.
func (s *TokenService) Issue(userID string) (string, error) {
	return s.issue(userID, s.lifetime)
}

func (s *TokenService) issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a token without a subject")
	}
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies tokenStr and returns the user id in its subject.
//
// Only HS256 is accepted (jwt.WithValidMethods), which blocks "alg: none" and
// RS/HS confusion. The issuer and an expiry claim are both required.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return c.Subject, nil
}
