package log

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	WithComponent("vm-lifecycle").Info().Msg("booting")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "vm-lifecycle", record["component"])
	require.Equal(t, "booting", record["message"])
}

func TestResolveOutputDefaultsToStdoutWhenUnset(t *testing.T) {
	out := resolveOutput(Config{})
	require.Equal(t, io.Writer(os.Stdout), out)
}
