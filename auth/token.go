package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Token scheme: signed stateless JWTs (HS256) carrying user_id, iat and
// exp. The catalog additionally records every issued token so that logout
// can revoke one before it expires; signature and expiry are still checked
// here, before any catalog lookup.

// DefaultTokenTTL bounds the lifetime of issued bearer tokens.
const DefaultTokenTTL = 30 * 24 * time.Hour

// ScopeAdmin marks tokens that may act on any package.
const ScopeAdmin = "admin"

var (
	// ErrTokenInvalid is returned for tokens that fail parsing or
	// signature verification.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenExpired is returned for well-formed tokens past their
	// expiry. Expiry is checked regardless of signature validity.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims is the payload of a registry bearer token.
type Claims struct {
	UserID int64    `json:"user_id"`
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token carries the named scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// TokenIssuer signs and verifies bearer tokens with a single HMAC secret
// loaded at boot.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer builds an issuer from the server secret. The secret must
// be at least 32 bytes.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("auth: token secret must be at least 32 bytes, got %d", len(secret))
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &TokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for the user. The returned expiry is what the caller
// should record alongside the token in the catalog.
func (ti *TokenIssuer) Issue(userID int64, scopes []string) (token string, issuedAt, expiresAt time.Time, err error) {
	issuedAt = time.Now()
	expiresAt = issuedAt.Add(ti.ttl)

	claims := &Claims{
		UserID: userID,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}

	return token, issuedAt, expiresAt, nil
}

// Verify parses and validates a presented token: signature first, then
// expiry. The MAC comparison inside the JWT library is constant-time.
func (ti *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := new(Claims)

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
