package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARNING", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestNewWithWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", "json", &buf)

	log.Component("xp").Info().Str("user_id", "u1").Int64("xp", 15).Msg("XP awarded")
	log.Debug().Msg("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "progression", entry["service"])
	assert.Equal(t, "xp", entry["component"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, float64(15), entry["xp"])
	assert.Equal(t, "XP awarded", entry["message"])
}

func TestNew_BadOutputPath(t *testing.T) {
	_, err := New("info", "json", filepath.Join(t.TempDir(), "missing", "app.log"))
	assert.Error(t, err)

	log, err := New("debug", "json", filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, log.Level())
}
