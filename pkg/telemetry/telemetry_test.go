package telemetry

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAllCollectorsWithoutPanicking(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.EventsIngestedTotal.WithLabelValues("t1", "tool_call").Inc()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestSetupLogging_JSONProducesParsableLines(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogging(LoggingConfig{Level: slog.LevelInfo, JSON: true, Output: &buf})
	logger.Info("hello", "key", "value")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}

func TestSetupLogging_TextHandlerOmitsJSONBraces(t *testing.T) {
	var buf bytes.Buffer
	SetupLogging(LoggingConfig{Level: slog.LevelInfo, JSON: false, Output: &buf})
	slog.Info("hello")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
}
