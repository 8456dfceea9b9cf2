package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockEntry is one record captured by MockLogger.
type MockEntry struct {
	Level   Level
	Message string
	Fields  []Field
	Trace   TraceContext
}

// Field returns the value of the first field named key.
func (e MockEntry) Field(key string) (interface{}, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

type mockStore struct {
	mu      sync.Mutex
	entries []MockEntry
	level   Level
}

// MockLogger records every emitted entry in memory. Loggers derived with
// With share the recording.
type MockLogger struct {
	store  *mockStore
	fields []Field
}

// NewMockLogger records everything from LevelDebug up.
func NewMockLogger() *MockLogger {
	return &MockLogger{store: &mockStore{level: LevelDebug}}
}

func (m *MockLogger) Debug(format string, args ...interface{}) {
	m.record(context.Background(), LevelDebug, fmt.Sprintf(format, args...), nil)
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.record(context.Background(), LevelInfo, fmt.Sprintf(format, args...), nil)
}

func (m *MockLogger) Warn(format string, args ...interface{}) {
	m.record(context.Background(), LevelWarn, fmt.Sprintf(format, args...), nil)
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.record(context.Background(), LevelError, fmt.Sprintf(format, args...), nil)
}

func (m *MockLogger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	m.record(ctx, LevelDebug, msg, fields)
}

func (m *MockLogger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	m.record(ctx, LevelInfo, msg, fields)
}

func (m *MockLogger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	m.record(ctx, LevelWarn, msg, fields)
}

func (m *MockLogger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	m.record(ctx, LevelError, msg, fields)
}

func (m *MockLogger) With(fields ...Field) Logger {
	merged := append(append([]Field{}, m.fields...), fields...)
	return &MockLogger{store: m.store, fields: merged}
}

func (m *MockLogger) SetLevel(level Level) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.level = level
}

func (m *MockLogger) GetLevel() Level {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.store.level
}

func (m *MockLogger) record(ctx context.Context, level Level, msg string, fields []Field) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level {
		return
	}
	s.entries = append(s.entries, MockEntry{
		Level:   level,
		Message: msg,
		Fields:  append(append([]Field{}, m.fields...), fields...),
		Trace:   TraceFromContext(ctx),
	})
}

// GetEntries returns a copy of the recorded entries in emission order.
func (m *MockLogger) GetEntries() []MockEntry {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return append([]MockEntry(nil), m.store.entries...)
}

// Messages returns the messages recorded at level.
func (m *MockLogger) Messages(level Level) []string {
	var out []string
	for _, e := range m.GetEntries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// HasEntry reports whether an entry at level contains substring.
func (m *MockLogger) HasEntry(level Level, substring string) bool {
	for _, msg := range m.Messages(level) {
		if strings.Contains(msg, substring) {
			return true
		}
	}
	return false
}

// CountEntries counts entries recorded at level.
func (m *MockLogger) CountEntries(level Level) int {
	return len(m.Messages(level))
}

// Reset forgets every recorded entry.
func (m *MockLogger) Reset() {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.entries = nil
}

var _ Logger = (*MockLogger)(nil)
