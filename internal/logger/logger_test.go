package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetup_UnknownLevelFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	Setup("loud", "json")

	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestNew_WritesJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf).With().Str("component", "registry").Logger()

	log.Info().Str("room_key", "a:b").Msg("Room created")

	var line map[string]any
	req := require.New(t)
	req.NoError(json.Unmarshal(buf.Bytes(), &line))
	req.Equal("registry", line["component"])
	req.Equal("a:b", line["room_key"])
	req.Equal("Room created", line["message"])
	req.Contains(line, "time")
}

func TestWriterFor(t *testing.T) {
	var buf bytes.Buffer

	_, isConsole := writerFor("pretty", &buf).(zerolog.ConsoleWriter)
	require.True(t, isConsole)
	require.Equal(t, &buf, writerFor("json", &buf))
}
