package security

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmanager/api/internal/config"
)

// cheap parameters keep the suite fast; the format is identical
var testParams = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestHashAndVerify(t *testing.T) {
	h := NewPasswordHasher(testParams)

	hash, err := h.Hash("correct horse 1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(hash), "$argon2id$v=19$m=8192,t=1,p=1$"))
	assert.NotContains(t, string(hash), "correct horse 1")

	ok, err := h.Verify("correct horse 1", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("correct horse 2", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHash_SaltedPerCall(t *testing.T) {
	h := NewPasswordHasher(testParams)

	a, err := h.Hash("same-password1")
	require.NoError(t, err)
	b, err := h.Hash("same-password1")
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a, b))
}

func TestVerify_UsesParamsEmbeddedInHash(t *testing.T) {
	old := NewPasswordHasher(testParams)
	hash, err := old.Hash("pw123456")
	require.NoError(t, err)

	stronger := testParams
	stronger.Time = 2
	ok, err := NewPasswordHasher(stronger).Verify("pw123456", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_MalformedHash(t *testing.T) {
	h := NewPasswordHasher(testParams)

	for _, encoded := range []string{
		"",
		"plain",
		"$2a$10$abcdefghijklmnopqrstuv",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$abcd",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$garbage$c2FsdA$a2V5",
	} {
		ok, err := h.Verify("pw", []byte(encoded))
		assert.False(t, ok, encoded)
		assert.ErrorIs(t, err, ErrMalformedHash, encoded)
	}
}

func TestParamsFromConfig(t *testing.T) {
	p := ParamsFromConfig(config.Argon2Config{Time: 4})
	assert.Equal(t, uint32(4), p.Time)
	assert.Equal(t, DefaultParams.Memory, p.Memory)
	assert.Equal(t, DefaultParams.Threads, p.Threads)
	assert.Equal(t, DefaultParams.KeyLen, p.KeyLen)
}
