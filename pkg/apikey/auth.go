package apikey

import (
	"errors"
	"strings"
)

var ErrInvalidKey = errors.New("apikey: invalid or revoked key")

// Authenticator resolves a raw "Authorization: Bearer <rawKey>" header
// value to its Key record, per spec.md §6: "tenantId is attached to each
// key and threaded into every request's context."
type Authenticator struct {
	store Store
}

func NewAuthenticator(store Store) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate accepts either a bare raw key or a full "Bearer <rawKey>"
// header value and returns the matching, active Key.
func (a *Authenticator) Authenticate(authHeader string) (*Key, error) {
	raw := strings.TrimPrefix(authHeader, "Bearer ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidKey
	}

	k, err := a.store.GetByHash(Hash(raw))
	if err != nil {
		return nil, ErrInvalidKey
	}
	if !k.Active() {
		return nil, ErrInvalidKey
	}
	return k, nil
}
