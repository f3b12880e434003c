package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrKeyMismatch = errors.New("unlock token issued for another key")

// Claims binds an unlock credential to a single record key.
type Claims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

// GenerateUnlockToken signs a credential for key valid from now until
// now+expiration.
func GenerateUnlockToken(key string, now time.Time, expiration time.Duration, secret string) (string, error) {
	claims := &Claims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   key,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign unlock token: %w", err)
	}
	return signed, nil
}

// ValidateUnlockToken checks signature, expiry at now and the key scope.
func ValidateUnlockToken(tokenString, key, secret string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid unlock token: %w", err)
	}

	if claims.Key != key || claims.Subject != key {
		return nil, ErrKeyMismatch
	}

	return claims, nil
}
