// Package auth signs and parses access tokens and hashes passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"auction-settlement/internal/biddingerrors"
)

// Roles carried in access tokens
const (
	RoleAdmin  = "admin"
	RoleBidder = "bidder"
)

// Claims is the payload of an access token. Subject holds the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenMaker signs and verifies access tokens
type TokenMaker interface {
	GenerateToken(subject, role string) (string, error)
	ParseToken(tokenStr string) (*Claims, error)
}

// JWTMaker is an HS256 TokenMaker
type JWTMaker struct {
	secretKey []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker creates a maker signing with secretKey
func NewJWTMaker(secretKey string, ttl time.Duration) *JWTMaker {
	return &JWTMaker{secretKey: []byte(secretKey), tokenTTL: ttl, now: time.Now}
}

// GenerateToken signs a token for subject with the given role
func (j *JWTMaker) GenerateToken(subject, role string) (string, error) {
	const op = "auth.GenerateToken"

	if subject == "" || role == "" {
		return "", fmt.Errorf("%s: %w - empty subject or role", op, biddingerrors.ErrInvalidInput)
	}
	now := j.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// ParseToken verifies the signature and expiry and returns the claims
func (j *JWTMaker) ParseToken(tokenStr string) (*Claims, error) {
	const op = "auth.ParseToken"

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, biddingerrors.ErrTokenExpired)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, biddingerrors.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, biddingerrors.ErrTokenMismatch)
	}
	return claims, nil
}
