package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/casebill/casebill/internal/config"
)

// Principal is the tenant and user an API key acts as
type Principal struct {
	TenantID string
	UserID   string
	Name     string
}

// HashAPIKey returns the sha256 hex digest under which a key is configured
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey returns a new random key in raw form. Only its hash belongs in config.
func GenerateAPIKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// ValidateAPIKey resolves a raw key against the configured keys
func ValidateAPIKey(cfg *config.Configuration, key string) (*Principal, bool) {
	if key == "" {
		return nil, false
	}
	details, ok := cfg.Auth.APIKey.Keys[HashAPIKey(key)]
	if !ok || !details.IsActive || details.TenantID == "" || details.UserID == "" {
		return nil, false
	}
	return &Principal{
		TenantID: details.TenantID,
		UserID:   details.UserID,
		Name:     details.Name,
	}, true
}

// ValidateCronKey compares a presented key with the configured cron key in
// constant time. An unset cron key rejects every request.
func ValidateCronKey(cfg *config.Configuration, key string) bool {
	expected := cfg.Cron.APIKey
	if expected == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(key)) == 1
}
