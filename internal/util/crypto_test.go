package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomString(t *testing.T) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	t.Run("produces requested length from alphabet", func(t *testing.T) {
		s, err := RandomString(nil, alphabet, 8)
		require.NoError(t, err)
		assert.Len(t, s, 8)
		for _, c := range s {
			assert.True(t, strings.ContainsRune(alphabet, c), "character %q not in alphabet", c)
		}
	})

	t.Run("generates distinct values", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			s, err := RandomString(nil, alphabet, 8)
			require.NoError(t, err)
			assert.False(t, seen[s], "duplicate value generated: %s", s)
			seen[s] = true
		}
	})

	t.Run("single symbol alphabet is deterministic", func(t *testing.T) {
		s, err := RandomString(nil, "Z", 4)
		require.NoError(t, err)
		assert.Equal(t, "ZZZZ", s)
	})

	t.Run("fails on exhausted random source", func(t *testing.T) {
		_, err := RandomString(bytes.NewReader(nil), alphabet, 8)
		assert.Error(t, err)
	})

	t.Run("fails on empty alphabet", func(t *testing.T) {
		_, err := RandomString(nil, "", 8)
		assert.Error(t, err)
	})
}

func TestIdentifiers(t *testing.T) {
	t.Run("session IDs are UUIDs", func(t *testing.T) {
		id := NewSessionID()
		assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)
		assert.NotEqual(t, id, NewSessionID())
	})

	t.Run("connection IDs are ULIDs", func(t *testing.T) {
		id := NewConnID()
		assert.Len(t, id, 26)
		assert.NotEqual(t, id, NewConnID())
	})

	t.Run("tokens are hex", func(t *testing.T) {
		token, err := GenerateToken()
		require.NoError(t, err)
		assert.Len(t, token, 32)
	})
}

func TestMaskCode(t *testing.T) {
	assert.Equal(t, "ABCD-****", MaskCode("ABCDEFGH"))
	assert.Equal(t, "****", MaskCode("ABC"))
}

func TestCipher(t *testing.T) {
	key := strings.Repeat("ab", 32)

	t.Run("round trips", func(t *testing.T) {
		c, err := NewCipher(key)
		require.NoError(t, err)

		sealed, err := c.Seal([]byte("bundle"))
		require.NoError(t, err)
		assert.NotContains(t, string(sealed), "bundle")

		opened, err := c.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, "bundle", string(opened))
	})

	t.Run("rejects short keys", func(t *testing.T) {
		_, err := NewCipher("abcd")
		assert.Error(t, err)
	})

	t.Run("rejects tampered input", func(t *testing.T) {
		c, err := NewCipher(key)
		require.NoError(t, err)

		sealed, err := c.Seal([]byte("bundle"))
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0xff

		_, err = c.Open(sealed)
		assert.Error(t, err)

		_, err = c.Open([]byte("x"))
		assert.Error(t, err)
	})
}
