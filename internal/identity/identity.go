// Package identity derives the opaque per-user identity from a sync key.
//
// The sync key is a shared secret held by the user's devices. The server
// only ever stores UserID(key), a one-way hash, so leaking the database does
// not leak keys.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// KeyPrefix marks generated sync keys.
const KeyPrefix = "bd_sk_"

const keyBytes = 32

// GenerateSyncKey returns a new random sync key.
func GenerateSyncKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// UserID returns the lowercase hex sha256 of key.
func UserID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Prefix returns the first eight characters of a user ID, for logs and
// responses.
func Prefix(userID string) string {
	if len(userID) <= 8 {
		return userID
	}
	return userID[:8]
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	i := strings.IndexFunc(header, unicode.IsSpace)
	if i < 0 || !strings.EqualFold(header[:i], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(header[i:])
	if token == "" {
		return "", false
	}
	return token, true
}

// NewDeviceID returns a random device identifier.
func NewDeviceID() string {
	return uuid.NewString()
}

// Mask hides all but the prefix and last four characters of a key.
func Mask(key string) string {
	if len(key) <= len(KeyPrefix)+4 {
		return strings.Repeat("*", len(key))
	}
	return key[:len(KeyPrefix)] + "..." + key[len(key)-4:]
}
