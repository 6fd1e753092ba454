// Package apikey implements spec.md §6 Auth: API keys are hashed on
// storage (raw key never persisted) and looked up by hash; creation
// requests are validated with struct tags the way the rest of the
// codebase validates request shapes (gin's binding tags, backed by
// go-playground/validator).
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// rawKeyBytes is the amount of entropy in a freshly minted key, before
// base64 encoding.
const rawKeyBytes = 32

// KeyPrefix is prepended to every raw key so it's recognizable in logs
// and UIs without revealing the secret itself.
const KeyPrefix = "alk_"

// Key is the persisted shape of an API key (spec.md §3's API Key type).
// The raw key is never stored — only KeyHash.
type Key struct {
	ID        string
	TenantID  string
	KeyHash   string
	Scopes    []string
	RateLimit int
	CreatedAt time.Time
	RevokedAt *time.Time
}

// CreateRequest is validated before a Key is minted.
type CreateRequest struct {
	TenantID  string   `validate:"required"`
	Scopes    []string `validate:"required,min=1,dive,required"`
	RateLimit int      `validate:"omitempty,min=1"`
}

var validate = validator.New()

// Generate mints a new raw key and its Key record. The caller is
// responsible for returning the raw key to the user exactly once and
// persisting only the Key record.
func Generate(req CreateRequest) (rawKey string, key *Key, err error) {
	if err := validate.Struct(req); err != nil {
		return "", nil, fmt.Errorf("apikey: invalid create request: %w", err)
	}

	buf := make([]byte, rawKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("apikey: generate entropy: %w", err)
	}
	rawKey = KeyPrefix + base64.RawURLEncoding.EncodeToString(buf)

	return rawKey, &Key{
		TenantID:  req.TenantID,
		KeyHash:   Hash(rawKey),
		Scopes:    req.Scopes,
		RateLimit: req.RateLimit,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Hash returns the hex-SHA256 digest of a raw key, the form every Key is
// stored and looked up by.
func Hash(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// HasScope reports whether k grants scope, or "*" for all scopes.
func (k *Key) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

// Active reports whether k has not been revoked.
func (k *Key) Active() bool {
	return k.RevokedAt == nil
}
