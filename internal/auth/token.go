// Package auth verifies the bearer tokens that protect mutating endpoints.
// Tokens are stored as PBKDF2 digests so a leaked configuration file never
// reveals a usable credential.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	tokenHashIterations = 600000
	tokenHashSaltLength = 16
	tokenHashKeyLength  = 32
)

// ErrInvalidToken is returned for any token that does not match a configured
// digest.
var ErrInvalidToken = errors.New("invalid token")

// GenerateToken produces a random bearer token together with its encoded
// digest for configuration files.
func GenerateToken() (token, digest string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token = hex.EncodeToString(raw)
	digest, err = HashToken(token)
	if err != nil {
		return "", "", err
	}
	return token, digest, nil
}

// HashToken derives the stored digest for a plaintext token in the form
// pbkdf2$sha256$<iterations>$<salt>$<key>.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token is required")
	}
	salt := make([]byte, tokenHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(token), salt, tokenHashIterations, tokenHashKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", tokenHashIterations, encodedSalt, encodedKey), nil
}

// VerifyToken checks a candidate token against an encoded digest using a
// constant-time comparison.
func VerifyToken(encodedDigest, candidate string) error {
	parts := strings.Split(encodedDigest, "$")
	if len(parts) != 5 {
		return fmt.Errorf("verify token: invalid digest format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return fmt.Errorf("verify token: unsupported digest identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return fmt.Errorf("verify token: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify token: decode salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("verify token: decode key: %w", err)
	}
	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if len(derived) != len(storedKey) || subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return ErrInvalidToken
	}
	return nil
}
