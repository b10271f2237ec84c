// Package auth verifies the bearer tokens issued by the identity service.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"escrow-service/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles carried in the role claim
const (
	RoleUser      = "USER"
	RoleInspector = "INSPECTOR"
	RoleAdmin     = "ADMIN"
)

var signingMethod = jwt.SigningMethodHS256

// Claims is the typed token payload
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ValidRole reports whether role is one of the known roles
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleInspector, RoleAdmin:
		return true
	}
	return false
}

// MintToken issues a signed token. Production tokens come from the identity
// service; this exists for tooling and tests.
func MintToken(cfg config.AuthConfig, now time.Time, ttl time.Duration, userID int64, role string) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.New("jwt secret is required")
	}
	if userID <= 0 {
		return "", fmt.Errorf("invalid user id %d", userID)
	}
	if !ValidRole(role) {
		return "", fmt.Errorf("invalid role %q", role)
	}

	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.JWTIssuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseToken validates signature, issuer and expiry and returns the claims
func ParseToken(cfg config.AuthConfig, tokenString string) (*Claims, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{signingMethod.Alg()})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != signingMethod {
			return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.UserID <= 0 {
		return nil, errors.New("token has no user id")
	}
	if !ValidRole(claims.Role) {
		return nil, fmt.Errorf("token has unknown role %q", claims.Role)
	}
	return claims, nil
}
