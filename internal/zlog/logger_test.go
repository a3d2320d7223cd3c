package zlog

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("info"))
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelNone, ParseLevel("off"))
	assert.Equal(t, LevelInfo, ParseLevel("garbage"))
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestZerolog_SuppressesBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelWarn, &buf)

	logger.Info(context.Background(), "should not appear")
	assert.Empty(t, buf.String())

	logger.Warn(context.Background(), "should appear", F("key", "value"))
	assert.Contains(t, buf.String(), "should appear")
}

func TestZerolog_EmitsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelDebug, &buf)

	logger.Error(context.Background(), "upstream failed", F("provider", "openai"), F("attempt", 2))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "upstream failed", line["message"])
	assert.Equal(t, "openai", line["provider"])
	assert.Equal(t, float64(2), line["attempt"])
}

func TestNoop_NeverPanics(t *testing.T) {
	var l Logger = Noop{}
	assert.NotPanics(t, func() {
		l.Debug(context.Background(), "x")
		l.Info(context.Background(), "x")
		l.Warn(context.Background(), "x")
		l.Error(context.Background(), "x")
	})
}

func TestElapsed_ProducesNonNegativeMillis(t *testing.T) {
	f := Elapsed(time.Now().Add(-10 * time.Millisecond))
	assert.Equal(t, "elapsed_ms", f.Key)
	ms, ok := f.Value.(int64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, ms, int64(0))
}
