package logger

import (
	"sync"
)

// LogEntry is one record captured by TestLogger
type LogEntry struct {
	Level   string
	Message string
	Fields  []Field
}

// TestLogger records entries in memory so tests can assert on them
type TestLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewTestLogger creates an empty recording logger
func NewTestLogger() *TestLogger {
	return &TestLogger{entries: make([]LogEntry, 0)}
}

func (l *TestLogger) Debug(msg string, fields ...Field) { l.log("DEBUG", msg, fields...) }
func (l *TestLogger) Info(msg string, fields ...Field)  { l.log("INFO", msg, fields...) }
func (l *TestLogger) Warn(msg string, fields ...Field)  { l.log("WARN", msg, fields...) }
func (l *TestLogger) Error(msg string, fields ...Field) { l.log("ERROR", msg, fields...) }

// With and Named return the same recorder so child loggers share entries
func (l *TestLogger) With(fields ...Field) Logger { return l }
func (l *TestLogger) Named(name string) Logger    { return l }
func (l *TestLogger) Sync() error                 { return nil }

func (l *TestLogger) log(level, msg string, fields ...Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg, Fields: fields})
}

// Entries returns a copy of all recorded entries
func (l *TestLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]LogEntry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// EntriesAt returns the recorded entries with the given level
func (l *TestLogger) EntriesAt(level string) []LogEntry {
	var out []LogEntry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops all recorded entries
func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}
