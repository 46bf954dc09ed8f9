package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceTokenTTL is how long an exchanged admin token stays valid.
const ServiceTokenTTL = 15 * time.Minute

type ServiceClaims struct {
	jwt.RegisteredClaims
}

// GenerateServiceToken issues a short-lived HMAC token for the admin
// API.
func GenerateServiceToken(secret string) (string, error) {
	now := time.Now()
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			Issuer:    "maplemail",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ServiceTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseServiceToken validates a token and returns its claims.
func ParseServiceToken(secret, tokenStr string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
