package activity

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogfFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	sink := NewSink(path)

	sink.Logf("user %s logged in (id=%d)", "alice", 1)
	sink.Logf("server started on port %d", 8888)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := regexp.MustCompile(`\r?\n`).Split(string(data), -1)
	require.Len(t, lines, 3) // two events plus trailing newline

	linePattern := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] `)
	assert.Regexp(t, linePattern, lines[0])
	assert.Contains(t, lines[0], "user alice logged in (id=1)")
	assert.Contains(t, lines[1], "server started on port 8888")
}

func TestLogfUnwritablePathIsSilent(t *testing.T) {
	sink := NewSink(filepath.Join(t.TempDir(), "missing", "server.log"))

	// Must not panic or error; the activity log is best-effort.
	sink.Logf("event")
}
