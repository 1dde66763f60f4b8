package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens([]byte("secret"))

	raw, err := tokens.Issue("acc-42", time.Hour)
	require.NoError(t, err)

	id, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "acc-42", id)
}

func TestTokens_Rejects(t *testing.T) {
	tokens := NewTokens([]byte("secret"))

	other, err := NewTokens([]byte("other")).Issue("acc-1", time.Hour)
	require.NoError(t, err)
	_, err = tokens.Verify(other)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := tokens.Issue("acc-1", -time.Minute)
	require.NoError(t, err)
	_, err = tokens.Verify(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashKey(t *testing.T) {
	a := HashKey([]byte("pepper"), "key-1")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashKey([]byte("pepper"), "key-1"))
	assert.NotEqual(t, a, HashKey([]byte("salt"), "key-1"))
}

func TestAPIKeyInfo_HasScope(t *testing.T) {
	k := &APIKeyInfo{Scopes: []string{"menu:read", ScopeOrderStatus}}
	assert.True(t, k.HasScope(ScopeOrderStatus))
	assert.False(t, k.HasScope("admin"))
}
