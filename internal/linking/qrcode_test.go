package linking

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderQRCode(t *testing.T) {
	t.Run("returns a PNG data URL", func(t *testing.T) {
		url, err := RenderQRCode("2@abc,def,ghi")
		require.NoError(t, err)

		require.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
		png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/png;base64,"))
		require.NoError(t, err)
		assert.Equal(t, []byte("\x89PNG"), png[:4])
	})

	t.Run("rejects empty payload", func(t *testing.T) {
		_, err := RenderQRCode("")
		assert.Error(t, err)
	})
}
