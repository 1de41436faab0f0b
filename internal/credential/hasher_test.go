package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Params{Memory: 64, Time: 1, Threads: 1, KeyLen: 32}

func TestHashDeterministic(t *testing.T) {
	h := NewHasher("pepper-salt", testParams)

	first, err := h.Hash("pw1")
	require.NoError(t, err)
	second, err := h.Hash("pw1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "$argon2id$v=19$m=64,t=1,p=1$"))
	assert.NotContains(t, first, "pw1")
}

func TestVerify(t *testing.T) {
	h := NewHasher("pepper-salt", testParams)
	digest, err := h.Hash("correct horse")
	require.NoError(t, err)

	assert.True(t, h.Verify("correct horse", digest))
	assert.False(t, h.Verify("correct h0rse", digest))
	assert.False(t, h.Verify("", digest))
}

func TestVerifyUsesDigestParameters(t *testing.T) {
	old := NewHasher("pepper-salt", testParams)
	digest, err := old.Hash("pw")
	require.NoError(t, err)

	current := NewHasher("pepper-salt", Params{Memory: 128, Time: 2, Threads: 1, KeyLen: 16})
	assert.True(t, current.Verify("pw", digest))
}

func TestHashRejectsShortSalt(t *testing.T) {
	h := NewHasher("short", testParams)
	digest, err := h.Hash("pw")
	require.ErrorIs(t, err, ErrHashFailed)
	assert.Empty(t, digest)
}

func TestHashRejectsZeroParams(t *testing.T) {
	h := NewHasher("pepper-salt", Params{})
	_, err := h.Hash("pw")
	require.ErrorIs(t, err, ErrHashFailed)
}

func TestVerifyMalformedDigest(t *testing.T) {
	h := NewHasher("pepper-salt", testParams)
	for _, digest := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=16$m=64,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$a2V5",
		"$argon2id$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$",
	} {
		assert.False(t, h.Verify("pw", digest), digest)
	}
}

func TestNilHasher(t *testing.T) {
	var h *Hasher
	_, err := h.Hash("pw")
	require.ErrorIs(t, err, ErrHashFailed)
}
