// Package auth issues and validates the bearer tokens of the API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
)

// Claims represents the JWT claims.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Base     string `json:"base"`
	jwt.RegisteredClaims
}

// Principal returns the caller identity used for permission checks.
func (c *Claims) Principal() rbac.Principal {
	return rbac.Principal{ID: c.UserID, Username: c.Username, Role: c.Role, Base: c.Base}
}

// DefaultTokenTTL is the token lifetime when none is configured.
const DefaultTokenTTL = 24 * time.Hour

const issuer = "garrison"

// GenerateToken creates a new JWT for a user with a unique JTI.
func GenerateToken(secret string, u *model.User, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()

	claims := Claims{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		Base:     u.Base,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.ID == "" {
		return nil, errors.New("token has no id")
	}

	return claims, nil
}
