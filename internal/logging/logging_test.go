package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesConsoleAndJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")
	var console bytes.Buffer

	logger, closer, err := New(&console, Options{Level: "info", File: path})
	require.NoError(t, err)
	logger.Debug().Msg("hidden")
	logger.Info().Str("task", "wish-birthdays").Msg("run started")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "run started")
	assert.NotContains(t, console.String(), "hidden")

	lines, err := Tail(path, 10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "wish-birthdays", entry["task"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, _, err := New(&bytes.Buffer{}, Options{Level: "loud"})
	assert.Error(t, err)
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	var b strings.Builder
	for i := 1; i <= 7; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	got, err := Tail(path, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 5", "line 6", "line 7"}, got)

	got, err = Tail(path, 50)
	require.NoError(t, err)
	assert.Len(t, got, 7)
	assert.Equal(t, "line 1", got[0])

	got, err = Tail(path, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTailMissingFile(t *testing.T) {
	got, err := Tail(filepath.Join(t.TempDir(), "nope.log"), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
