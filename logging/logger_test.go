package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/crytic/multifork/logging/colors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAddAndRemoveWriter verifies writers are deduplicated and can be removed again.
func TestAddAndRemoveWriter(t *testing.T) {
	logger := NewLogger(zerolog.InfoLevel, false)

	var structured, unstructured bytes.Buffer
	logger.AddWriter(&structured, STRUCTURED)
	logger.AddWriter(&structured, STRUCTURED)
	logger.AddWriter(&unstructured, UNSTRUCTURED)
	assert.Len(t, logger.writers, 2)

	logger.Info("hello")
	assert.Contains(t, structured.String(), `"message":"hello"`)
	assert.Contains(t, unstructured.String(), "hello")

	logger.RemoveWriter(&structured)
	assert.Len(t, logger.writers, 1)
	structured.Reset()
	logger.Info("again")
	assert.Empty(t, structured.String())
}

// TestSubLoggerContext verifies sub-loggers tag their lines and keep the tag for writers added later.
func TestSubLoggerContext(t *testing.T) {
	logger := NewLogger(zerolog.DebugLevel, false)
	sub := logger.NewSubLogger("module", REGISTRY_SERVICE)

	var buf bytes.Buffer
	sub.AddWriter(&buf, STRUCTURED)
	sub.Debug("fork created", StructuredLogInfo{"forkId": 3})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, REGISTRY_SERVICE, line["module"])
	assert.Equal(t, "fork created", line["message"])
	assert.EqualValues(t, 3, line["info"].(map[string]any)["forkId"])
}

// TestLevelFiltering verifies events below the configured level are dropped.
func TestLevelFiltering(t *testing.T) {
	capture := NewLogBufferWriter(8)
	logger := NewLogger(zerolog.WarnLevel, false, capture)

	logger.Debug("hidden")
	logger.Warn("shown")
	logger.Error("failed", errors.New("boom"))
	require.Equal(t, 2, capture.Count())
	assert.Contains(t, capture.Entries()[1].Message, "boom")

	logger.SetLevel(zerolog.TraceLevel)
	logger.Trace("now shown")
	assert.Equal(t, 3, capture.Count())
}

// TestLogBufferWriterWrapsAround verifies only the most recent entries are retained, oldest first.
func TestLogBufferWriterWrapsAround(t *testing.T) {
	capture := NewLogBufferWriter(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		_, err := capture.Write([]byte(msg))
		require.NoError(t, err)
	}

	var messages []string
	for _, entry := range capture.Entries() {
		messages = append(messages, entry.Message)
	}
	assert.Equal(t, []string{"c", "d", "e"}, messages)
}

// TestLogBufferColors verifies buffers render colored and plain variants and expand when logged.
func TestLogBufferColors(t *testing.T) {
	colors.EnableColor()
	buffer := NewLogBuffer()
	buffer.Append("balance: ", colors.Green, "1.5 ETH")

	assert.Equal(t, "balance: 1.5 ETH", buffer.String())
	assert.Contains(t, buffer.ColorString(), "\x1b[")

	var out bytes.Buffer
	logger := NewLogger(zerolog.InfoLevel, false)
	logger.AddWriter(&out, UNSTRUCTURED)
	logger.Info(buffer)
	assert.True(t, strings.Contains(out.String(), "balance: 1.5 ETH"))

	colors.DisableColor()
	defer colors.EnableColor()
	assert.Equal(t, buffer.String(), buffer.ColorString())
}
