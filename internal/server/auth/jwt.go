// Package auth signs and verifies owner session tokens (HS256 JWTs).
package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the registered claims of a session: Subject is the user id,
// ID (jti) identifies the session for the optional deny list.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID parses Subject back into the upstream user id.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", common.ErrSession)
	}
	return id, nil
}

// GenerateToken signs a session for userID valid for validityDuration from
// now. It returns the signed token and its claims.
func GenerateToken(userID int64, secretKey []byte, validityDuration time.Duration) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", nil, err
	}

	return tokenString, claims, nil
}

// ParseToken verifies signature, algorithm and expiry. Every failure wraps
// common.ErrSession.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: missing token", common.ErrSession)
	}

	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrSession, err)
	}

	if !token.Valid {
		return nil, common.ErrSession
	}

	return claims, nil
}
