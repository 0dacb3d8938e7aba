package api

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"grimm.is/pfw/internal/brand"
	"grimm.is/pfw/internal/config"
)

type keyNameKey struct{}

// KeyName returns the name of the API key that authorized the request, if any.
func KeyName(ctx context.Context) string {
	name, _ := ctx.Value(keyNameKey{}).(string)
	return name
}

// KeyChecker verifies presented API keys against configured bcrypt hashes.
type KeyChecker struct {
	keys []config.APIKeyConfig

	mu       sync.Mutex
	verified map[[sha256.Size]byte]string // accepted keys, by digest
}

// NewKeyChecker returns a checker for keys. With no keys, Enabled is false.
func NewKeyChecker(keys []config.APIKeyConfig) *KeyChecker {
	return &KeyChecker{
		keys:     keys,
		verified: make(map[[sha256.Size]byte]string),
	}
}

// Enabled reports whether any key is configured.
func (k *KeyChecker) Enabled() bool {
	return k != nil && len(k.keys) > 0
}

// Check returns the name of the key matching presented.
// bcrypt is slow, so keys that verified once are remembered by digest.
func (k *KeyChecker) Check(presented string) (string, bool) {
	if presented == "" {
		return "", false
	}
	digest := sha256.Sum256([]byte(presented))

	k.mu.Lock()
	name, ok := k.verified[digest]
	k.mu.Unlock()
	if ok {
		return name, true
	}

	for _, key := range k.keys {
		if bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(presented)) == nil {
			k.mu.Lock()
			k.verified[digest] = key.Name
			k.mu.Unlock()
			return key.Name, true
		}
	}
	return "", false
}

// presentedKey reads the key from "Authorization: Bearer" or X-API-Key.
func presentedKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.Header.Get("X-API-Key")
}

// GenerateKey returns a new random API key.
func GenerateKey() (string, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	// Format: prefix_randomhex (e.g., "pfw_a1b2c3d4...")
	return brand.LowerName + "_" + hex.EncodeToString(keyBytes), nil
}

// HashKey returns the bcrypt hash to put in an api_key block.
func HashKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(h), nil
}
