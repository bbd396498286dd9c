package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerUsesServiceKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, Options{Service: "guildd", Env: "test", Level: "debug"})
	logger.Debug("proposal submitted", "proposalId", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "guildd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "proposal submitted", line["message"])
	require.Contains(t, line, "timestamp")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, Options{Service: "guildd", Level: "warn"})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	require.Equal(t, slog.LevelError, ParseLevel(" ERROR "))
}

func TestHeaderAttrsMaskCredentials(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("X-Request-Id", "abc")

	var buf bytes.Buffer
	logger := newLogger(&buf, Options{Service: "guildd"})
	logger.Info("request", HeaderAttrs(h))
	require.NotContains(t, buf.String(), "secret")
	require.Contains(t, buf.String(), RedactedValue)
	require.Contains(t, buf.String(), "abc")
	require.Equal(t, "", MaskValue(""))
	require.Equal(t, " ", MaskValue(" "))
	require.Equal(t, RedactedValue, MaskValue("token"))
}

func TestSetupWritesRotatingFile(t *testing.T) {
	path := t.TempDir() + "/guildd.log"
	logger, closer := Setup(Options{Service: "guildd", File: path, MaxSizeMB: 1})
	require.NotNil(t, closer)
	logger.Info("hello")
	require.NoError(t, closer.Close())
	require.FileExists(t, path)
}
