package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	h := New()
	require.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		h.Hash(nil), "empty input hashes to the SHA-256 empty digest")
	require.Equal(t, h.Hash([]byte("abc")), h.Hash([]byte("abc")))
	require.NotEqual(t, h.Hash([]byte("abc")), h.Hash([]byte("abd")))
	require.Len(t, h.Hash([]byte("anything")), 64)
}
