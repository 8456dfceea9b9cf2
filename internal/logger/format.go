package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Formatter renders one record, including the trailing newline.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Entry is a single log record.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
	Fields  []Field
	Caller  *Caller
}

// Caller locates the code that emitted a record.
type Caller struct {
	File     string
	Line     int
	Function string
}

func (c *Caller) String() string {
	return fmt.Sprintf("%s:%d", c.File, c.Line)
}

// TextFormatter renders "15:04:05 [INFO] message key=value ...".
type TextFormatter struct {
	// TimestampFormat defaults to "15:04:05".
	TimestampFormat  string
	DisableTimestamp bool
	// Colors paints the level and dims the fields.
	Colors bool
}

var (
	levelColors = map[Level]*color.Color{
		LevelDebug: color.New(color.FgCyan),
		LevelInfo:  color.New(color.FgBlue),
		LevelWarn:  color.New(color.FgYellow),
		LevelError: color.New(color.FgRed),
	}
	fieldColor = color.New(color.Faint)
)

func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer

	if !f.DisableTimestamp {
		layout := f.TimestampFormat
		if layout == "" {
			layout = "15:04:05"
		}
		buf.WriteString(entry.Time.Format(layout))
		buf.WriteByte(' ')
	}

	level := entry.Level.String()
	if c := levelColors[entry.Level]; f.Colors && c != nil {
		level = c.Sprint(level)
	}
	buf.WriteString("[" + level + "] ")
	buf.WriteString(entry.Message)

	for _, field := range entry.Fields {
		text := fmt.Sprintf("%s=%v", field.Key, field.Value)
		if f.Colors {
			text = fieldColor.Sprint(text)
		}
		buf.WriteByte(' ')
		buf.WriteString(text)
	}

	if entry.Caller != nil {
		buf.WriteString(" caller=" + entry.Caller.String())
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// JSONFormatter renders one JSON object per line. Keys keep their emission
// order: time, level, msg, then fields, then caller.
type JSONFormatter struct {
	// TimestampFormat defaults to time.RFC3339Nano.
	TimestampFormat string
}

func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	layout := f.TimestampFormat
	if layout == "" {
		layout = time.RFC3339Nano
	}

	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, value interface{}) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			v, _ = json.Marshal(fmt.Sprint(value))
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	if err := write("time", entry.Time.Format(layout)); err != nil {
		return nil, err
	}
	if err := write("level", entry.Level.String()); err != nil {
		return nil, err
	}
	if err := write("msg", entry.Message); err != nil {
		return nil, err
	}
	for _, field := range entry.Fields {
		if err := write(field.Key, field.Value); err != nil {
			return nil, err
		}
	}
	if entry.Caller != nil {
		if err := write("caller", entry.Caller.String()); err != nil {
			return nil, err
		}
	}

	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// supportsColor reports whether w is a terminal and NO_COLOR is unset.
func supportsColor(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
