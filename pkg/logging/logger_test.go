package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("warn", &buf)

	logger.Info("should be suppressed")
	assert.Zero(t, buf.Len())

	logger.Warn("visible", "key", "value")
	require.NotZero(t, buf.Len())

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "visible", record["msg"])
	assert.Equal(t, "value", record["key"])
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("verbose", &buf)

	logger.Debug("suppressed")
	assert.Zero(t, buf.Len())

	logger.Info("logged")
	assert.NotZero(t, buf.Len())
}
