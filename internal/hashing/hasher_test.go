package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-auth-service/internal/config"
)

func testHasher() *Hasher {
	// Low-cost parameters keep the test fast; correctness is parameter
	// independent.
	return NewHasher(&config.HashingConfig{
		Argon2MemoryCost:  8 * 1024,
		Argon2TimeCost:    1,
		Argon2Parallelism: 1,
	})
}

func TestDigestDeterministic(t *testing.T) {
	h := testHasher()

	salt, err := h.GenerateSalt()
	require.NoError(t, err)

	d1, err := h.Digest("482913", "token-a", salt)
	require.NoError(t, err)
	d2, err := h.Digest("482913", "token-a", salt)
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
}

func TestDigestBoundToRequestToken(t *testing.T) {
	h := testHasher()

	salt, err := h.GenerateSalt()
	require.NoError(t, err)

	d1, err := h.Digest("482913", "token-a", salt)
	require.NoError(t, err)
	d2, err := h.Digest("482913", "token-b", salt)
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2, "same code under different request tokens must not collide")
}

func TestDigestSaltSensitivity(t *testing.T) {
	h := testHasher()

	s1, err := h.GenerateSalt()
	require.NoError(t, err)
	s2, err := h.GenerateSalt()
	require.NoError(t, err)
	require.NotEqual(t, s1, s2)

	d1, err := h.Digest("000000", "token", s1)
	require.NoError(t, err)
	d2, err := h.Digest("000000", "token", s2)
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
}

func TestVerify(t *testing.T) {
	h := testHasher()

	salt, err := h.GenerateSalt()
	require.NoError(t, err)
	digest, err := h.Digest("123456", "token", salt)
	require.NoError(t, err)

	assert.True(t, h.Verify("123456", "token", salt, digest))
	assert.False(t, h.Verify("123457", "token", salt, digest))
	assert.False(t, h.Verify("123456", "other-token", salt, digest))
	assert.False(t, h.Verify("123456", "token", salt, "not-hex"))
	assert.False(t, h.Verify("123456", "token", "not-hex", digest))
}
