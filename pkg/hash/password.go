package hash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize   = 16
	KeySize    = 32
	Iterations = 100000
)

// Hash derives a PBKDF2-HMAC-SHA256 key from password under a fresh salt and
// returns base64(salt || key).
func Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)

	token := make([]byte, 0, SaltSize+KeySize)
	token = append(token, salt...)
	token = append(token, key...)

	return base64.StdEncoding.EncodeToString(token), nil
}

// Verify reports whether password matches token. Malformed tokens never match.
func Verify(password, token string) bool {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil || len(raw) != SaltSize+KeySize {
		// Same cost as a real derivation.
		pbkdf2.Key([]byte(password), make([]byte, SaltSize), Iterations, KeySize, sha256.New)
		return false
	}

	salt, stored := raw[:SaltSize], raw[SaltSize:]
	derived := pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)

	return constantTimeEqual(derived, stored)
}

// constantTimeEqual walks every byte of a regardless of where the first
// difference is. A length mismatch fails but still costs a full pass.
func constantTimeEqual(a, b []byte) bool {
	var diff byte
	if len(a) != len(b) {
		diff = 1
	}
	for i := range a {
		var bb byte
		if i < len(b) {
			bb = b[i]
		}
		diff |= a[i] ^ bb
	}
	return diff == 0
}
