package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarnWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	Warn("phantom identity", map[string]any{
		"event":       "gate_phantom_profile",
		"identity_id": "abc",
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "phantom identity", line["msg"])
	assert.Equal(t, "gate_phantom_profile", line["event"])
	assert.Equal(t, "abc", line["identity_id"])
}

func TestNilFieldsAreAccepted(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	Info("started", nil)

	assert.Contains(t, buf.String(), `"msg":"started"`)
}
