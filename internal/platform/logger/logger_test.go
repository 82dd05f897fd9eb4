package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("json by default with level filter", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, "warn", "")
		log.Info("dropped")
		log.Warn("kept", "event", "tokens_minted")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "kept", line["msg"])
		assert.Equal(t, "tokens_minted", line["event"])
	})

	t.Run("text format and unknown level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, "loud", "text")
		log.Debug("dropped")
		log.Info("kept")
		assert.Contains(t, buf.String(), "msg=kept")
		assert.NotContains(t, buf.String(), "dropped")
	})
}
