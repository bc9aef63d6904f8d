package logging

import (
	"sync"
	"time"
)

// LogEntry represents a single log line captured by a LogBufferWriter.
type LogEntry struct {
	Timestamp time.Time
	Message   string
}

// LogBufferWriter is an io.Writer keeping the most recent log lines in a ring buffer. The CLI attaches one to print the
// tail of the session log after a failure, and tests attach one to inspect what was logged.
type LogBufferWriter struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

// NewLogBufferWriter creates a writer retaining up to capacity lines.
func NewLogBufferWriter(capacity int) *LogBufferWriter {
	if capacity <= 0 {
		capacity = 1
	}
	return &LogBufferWriter{entries: make([]LogEntry, capacity)}
}

// Write implements io.Writer. Each call is stored as one entry.
func (w *LogBufferWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries[w.next] = LogEntry{Timestamp: time.Now(), Message: string(p)}
	w.next++
	if w.next == len(w.entries) {
		w.next = 0
		w.full = true
	}
	return len(p), nil
}

// Entries returns the retained entries, oldest first.
func (w *LogBufferWriter) Entries() []LogEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.full {
		return append([]LogEntry{}, w.entries[:w.next]...)
	}
	result := make([]LogEntry, 0, len(w.entries))
	result = append(result, w.entries[w.next:]...)
	return append(result, w.entries[:w.next]...)
}

// Count returns the number of retained entries.
func (w *LogBufferWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.full {
		return len(w.entries)
	}
	return w.next
}
