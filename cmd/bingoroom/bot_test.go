package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBotLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := createBotLogger(&buf, "info", true)

	logger.Debug().Msg("hidden")
	logger.Info().Str("bot", "bot-1a2b").Msg("Joined room")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "bot-1a2b", entry["bot"])
	assert.Equal(t, "Joined room", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestCreateBotLoggerLevels(t *testing.T) {
	tests := []struct {
		level   string
		visible bool
	}{
		{"debug", true},
		{"warn", false},
		{"", true},
		{"nonsense", true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := createBotLogger(&buf, tt.level, true)
			logger.Info().Msg("hello")
			assert.Equal(t, tt.visible, buf.Len() > 0)
		})
	}
}
