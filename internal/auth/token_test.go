package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken_Unique(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestHasher_DeterministicAndKeyed(t *testing.T) {
	h1 := NewHasher("salt-one")
	h2 := NewHasher("salt-two")

	a1, err := h1.Hash("token-abc")
	require.NoError(t, err)
	a2, err := h1.Hash("token-abc")
	require.NoError(t, err)
	assert.Equal(t, a1, a2, "same salt + token must hash identically")

	b1, err := h2.Hash("token-abc")
	require.NoError(t, err)
	assert.NotEqual(t, a1, b1, "different salt must change the hash")
}
