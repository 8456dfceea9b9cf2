package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// output is shared by a logger and everything derived from it with With, so
// records from different goroutines never interleave mid-line.
type output struct {
	mu        sync.Mutex
	w         io.Writer
	formatter Formatter
	level     atomic.Int32
}

func (o *output) write(entry *Entry) {
	data, err := o.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to format log entry: %v\n", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.w.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write log entry: %v\n", err)
	}
}

// StandardLogger writes formatted records to a single writer.
type StandardLogger struct {
	out    *output
	fields []Field
	caller bool
}

type settings struct {
	level     Level
	w         io.Writer
	formatter Formatter
	json      bool
	fields    []Field
	caller    bool
}

// Option configures a logger at construction.
type Option func(*settings)

// WithLevel sets the minimum level emitted.
func WithLevel(level Level) Option {
	return func(s *settings) {
		s.level = level
	}
}

// WithOutput redirects records to w. The default is stderr.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		s.w = w
	}
}

// WithFormatter overrides the formatter chosen by the constructor.
func WithFormatter(formatter Formatter) Option {
	return func(s *settings) {
		s.formatter = formatter
	}
}

// WithJSON switches to one JSON object per record.
func WithJSON() Option {
	return func(s *settings) {
		s.json = true
	}
}

// WithFields attaches fields to every record.
func WithFields(fields ...Field) Option {
	return func(s *settings) {
		s.fields = append(s.fields, fields...)
	}
}

// WithCaller adds the emitting file and line to every record.
func WithCaller() Option {
	return func(s *settings) {
		s.caller = true
	}
}

func newLogger(colored bool, options []Option) *StandardLogger {
	s := &settings{level: LevelInfo}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	if s.w == nil {
		s.w = os.Stderr
	}

	formatter := s.formatter
	switch {
	case formatter != nil:
	case s.json:
		formatter = &JSONFormatter{}
	case colored:
		formatter = &TextFormatter{Colors: supportsColor(s.w)}
	default:
		formatter = &TextFormatter{TimestampFormat: time.RFC3339}
	}

	out := &output{w: s.w, formatter: formatter}
	out.level.Store(int32(s.level))
	return &StandardLogger{
		out:    out,
		fields: s.fields,
		caller: s.caller,
	}
}

// NewStandardLogger returns a plain-text logger with full timestamps.
func NewStandardLogger(options ...Option) *StandardLogger {
	return newLogger(false, options)
}

// NewColoredLogger returns a logger for interactive use: short timestamps and
// coloured levels when the output is a terminal and NO_COLOR is unset.
func NewColoredLogger(options ...Option) *StandardLogger {
	return newLogger(true, options)
}

func (l *StandardLogger) Debug(format string, args ...interface{}) {
	l.logf(LevelDebug, format, args)
}

func (l *StandardLogger) Info(format string, args ...interface{}) {
	l.logf(LevelInfo, format, args)
}

func (l *StandardLogger) Warn(format string, args ...interface{}) {
	l.logf(LevelWarn, format, args)
}

func (l *StandardLogger) Error(format string, args ...interface{}) {
	l.logf(LevelError, format, args)
}

func (l *StandardLogger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.emit(ctx, LevelDebug, msg, fields, 3)
}

func (l *StandardLogger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.emit(ctx, LevelInfo, msg, fields, 3)
}

func (l *StandardLogger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.emit(ctx, LevelWarn, msg, fields, 3)
}

func (l *StandardLogger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.emit(ctx, LevelError, msg, fields, 3)
}

// With derives a logger sharing this one's output and level.
func (l *StandardLogger) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &StandardLogger{out: l.out, fields: merged, caller: l.caller}
}

// SetLevel changes the level for this logger and every logger derived from it.
func (l *StandardLogger) SetLevel(level Level) {
	l.out.level.Store(int32(level))
}

func (l *StandardLogger) GetLevel() Level {
	return Level(l.out.level.Load())
}

func (l *StandardLogger) logf(level Level, format string, args []interface{}) {
	if level < l.GetLevel() {
		return
	}
	l.emit(context.Background(), level, fmt.Sprintf(format, args...), nil, 4)
}

// emit builds and writes a record. skip is the runtime.Caller depth of the
// user's call site as seen from callerAt.
func (l *StandardLogger) emit(ctx context.Context, level Level, msg string, fields []Field, skip int) {
	if level < l.GetLevel() {
		return
	}

	trace := traceFieldsFromContext(ctx)
	entry := &Entry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
		Fields:  make([]Field, 0, len(l.fields)+len(trace)+len(fields)),
	}
	entry.Fields = append(entry.Fields, l.fields...)
	entry.Fields = append(entry.Fields, trace...)
	entry.Fields = append(entry.Fields, fields...)

	if l.caller {
		entry.Caller = callerAt(skip)
	}
	l.out.write(entry)
}

func callerAt(skip int) *Caller {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return nil
	}
	c := &Caller{File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		c.Function = fn.Name()
	}
	return c
}

var _ Logger = (*StandardLogger)(nil)
