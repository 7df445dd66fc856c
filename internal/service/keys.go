package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// KeyPrefix marks generated API keys.
const KeyPrefix = "ak_"

// HashKey returns the hex-encoded SHA-256 hash of a raw API key. It is
// unsalted so the same key maps to the same stored hash across restarts.
func HashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}

// GenerateKey returns a new random API key of the form ak_<32 hex chars>.
// The result is plaintext and must only be shown once.
func GenerateKey() string {
	return KeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
