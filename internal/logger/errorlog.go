package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultErrorLogPath is the error log file used when none is configured.
const DefaultErrorLogPath = "logs.log"

// ErrorSink receives free-text error messages. Calls never fail from the caller's view.
type ErrorSink interface {
	LogError(message string)
}

// ErrorLog appends timestamped error lines to a file.
type ErrorLog struct {
	mu     sync.Mutex
	out    io.WriteCloser
	now    func() time.Time
	stderr io.Writer
}

// OpenErrorLog opens (or creates) path for appending.
func OpenErrorLog(path string) (*ErrorLog, error) {
	if path == "" {
		path = DefaultErrorLogPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create log directory: %s", dir)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open error log: %s", path)
	}
	return NewErrorLog(file), nil
}

// NewErrorLog wraps an arbitrary writer, mainly for tests.
func NewErrorLog(w io.WriteCloser) *ErrorLog {
	return &ErrorLog{
		out:    w,
		now:    time.Now,
		stderr: os.Stderr,
	}
}

// LogError writes "[<unix seconds>] ERROR: <message>".
func (l *ErrorLog) LogError(message string) {
	if l == nil || l.out == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := fmt.Fprintf(l.out, "[%d] ERROR: %s\n", l.now().Unix(), message); err != nil {
		fmt.Fprintf(l.stderr, "failed to write error log: %v\n", err)
	}
}

// Close releases the underlying file.
func (l *ErrorLog) Close() error {
	if l == nil || l.out == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}

// NopErrorLog discards every message.
type NopErrorLog struct{}

// LogError implements ErrorSink.
func (NopErrorLog) LogError(string) {}

var (
	_ ErrorSink = (*ErrorLog)(nil)
	_ ErrorSink = NopErrorLog{}
)
