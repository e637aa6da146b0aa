package store

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

const apiKeyPrefixLength = 8

// GenerateAPIKey returns a random 64 character hex key.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	return string(hash), err
}

// APIKeyPrefix is the indexed part of a key used to narrow bcrypt
// comparisons down to a few candidates.
func APIKeyPrefix(apiKey string) string {
	if len(apiKey) >= apiKeyPrefixLength {
		return apiKey[:apiKeyPrefixLength]
	}
	return apiKey
}

// Authenticate returns the active device owning apiKey, or nil.
func Authenticate(db DB, apiKey string) (*Device, error) {
	devices, err := db.GetDevicesByAPIKeyPrefix(APIKeyPrefix(apiKey))
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if bcrypt.CompareHashAndPassword([]byte(d.APIKeyHash), []byte(apiKey)) == nil {
			return d, nil
		}
	}
	return nil, nil
}
