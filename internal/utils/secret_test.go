package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	t.Parallel()

	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, a.Raw, SecretBytes*2)
	assert.Len(t, a.Hash, 64)
	assert.NotEqual(t, a.Raw, b.Raw)
	assert.NotEqual(t, a.Raw, a.Hash)
	assert.Equal(t, HashSecret(a.Raw), a.Hash)
}

func TestHashSecret(t *testing.T) {
	t.Parallel()

	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashSecret("abc"))
	assert.Len(t, HashSecret(""), 64)
	assert.Equal(t, HashSecret("not hex at all"), HashSecret("not hex at all"))
}
