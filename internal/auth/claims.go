package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is the iss claim of every token the bridge mints.
const Issuer = "graylogic-karotz"

// DefaultAccessTokenTTL is used when no TTL is configured.
const DefaultAccessTokenTTL = 15 * time.Minute

// Claims are the JWT claims of a bridge access token.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// Validate implements jwt.ClaimsValidator; it runs after the standard
// expiry and issuer checks.
func (c *Claims) Validate() error {
	if c.Subject == "" {
		return errors.New("missing subject")
	}
	if !IsValidRole(c.Role) {
		return fmt.Errorf("role %q", c.Role)
	}
	return nil
}

// GenerateAccessToken signs an HS256 token for subject with the given role.
// A non-positive ttl means DefaultAccessTokenTTL.
func GenerateAccessToken(subject string, role Role, secret string, ttl time.Duration) (string, error) {
	switch {
	case secret == "":
		return "", ErrNoSecret
	case !IsValidRole(role):
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role: role,
	}
	if err := claims.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies tokenString and returns its claims. Every failure
// wraps ErrTokenInvalid.
func ParseToken(tokenString, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	return claims, nil
}
