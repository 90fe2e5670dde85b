package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONWithLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{AppEnv: "staging", LogFormat: "json", LogLevel: "warn"})

	logger.Info("hidden")
	require.Zero(t, buf.Len())

	logger.Warn("order fulfilled", "order_id", 7)
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "order fulfilled", line["msg"])
	require.Equal(t, "staging", line["env"])
	require.EqualValues(t, 7, line["order_id"])
	require.Contains(t, line, "source")
}

func TestNewLoggerFallsBackToInfoText(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "pretty", LogLevel: "loud"})
	logger.Debug("hidden")
	logger.Info("visible")
	require.Contains(t, buf.String(), "msg=visible")
	require.NotContains(t, buf.String(), "hidden")
}
