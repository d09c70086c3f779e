/*
Package activity appends significant server events to the plain-text activity
log (data/server.log).

This log is a user-facing artifact with a fixed line format and is distinct
from the process logs emitted through logx.
*/
package activity

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Sink is an append-only event log. The file is opened per event so a crash
// never holds the log in a buffered state.
type Sink struct {
	path string
	mu   sync.Mutex
}

// NewSink constructs a Sink writing to the given path.
func NewSink(path string) *Sink {
	return &Sink{path: path}
}

// Logf formats and appends one event line: "[YYYY-MM-DD HH:MM:SS] <event>".
// Failures are swallowed; the activity log is best-effort and must never
// fail the operation that produced the event.
func (s *Sink) Logf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(f, "[%s] %s\n", ts, fmt.Sprintf(format, args...))
}
