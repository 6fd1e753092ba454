package apikey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_ProducesDistinctRawKeysWithMatchingHash(t *testing.T) {
	raw, k, err := Generate(CreateRequest{TenantID: "t1", Scopes: []string{"events:write"}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, KeyPrefix))
	assert.Equal(t, Hash(raw), k.KeyHash)
	assert.NotEmpty(t, k.KeyHash)

	raw2, _, err := Generate(CreateRequest{TenantID: "t1", Scopes: []string{"events:write"}})
	require.NoError(t, err)
	assert.NotEqual(t, raw, raw2)
}

func TestGenerate_RejectsMissingScopes(t *testing.T) {
	_, _, err := Generate(CreateRequest{TenantID: "t1"})
	assert.Error(t, err)
}

func TestGenerate_RejectsMissingTenant(t *testing.T) {
	_, _, err := Generate(CreateRequest{Scopes: []string{"events:write"}})
	assert.Error(t, err)
}

func TestKey_HasScope(t *testing.T) {
	k := &Key{Scopes: []string{"events:read"}}
	assert.True(t, k.HasScope("events:read"))
	assert.False(t, k.HasScope("events:write"))

	wildcard := &Key{Scopes: []string{"*"}}
	assert.True(t, wildcard.HasScope("anything"))
}

func TestAuthenticator_AcceptsBearerOrBareKey(t *testing.T) {
	store := NewMemoryStore()
	raw, k, err := Generate(CreateRequest{TenantID: "t1", Scopes: []string{"*"}})
	require.NoError(t, err)
	_, err = store.Put(k)
	require.NoError(t, err)

	auth := NewAuthenticator(store)

	got, err := auth.Authenticate("Bearer " + raw)
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TenantID)

	got2, err := auth.Authenticate(raw)
	require.NoError(t, err)
	assert.Equal(t, got.ID, got2.ID)
}

func TestAuthenticator_RejectsUnknownKey(t *testing.T) {
	auth := NewAuthenticator(NewMemoryStore())
	_, err := auth.Authenticate("Bearer not-a-real-key")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestAuthenticator_RejectsRevokedKey(t *testing.T) {
	store := NewMemoryStore()
	raw, k, err := Generate(CreateRequest{TenantID: "t1", Scopes: []string{"*"}})
	require.NoError(t, err)
	saved, err := store.Put(k)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(saved.ID))

	auth := NewAuthenticator(store)
	_, err = auth.Authenticate("Bearer " + raw)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestAuthenticator_RejectsEmptyHeader(t *testing.T) {
	auth := NewAuthenticator(NewMemoryStore())
	_, err := auth.Authenticate("")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
