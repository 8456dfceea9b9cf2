package errors

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Metadata carries extra attributes that end up as structured log fields.
type Metadata map[string]interface{}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AppError is the error type shared by every package: a category and code for
// callers that branch on errors, a message for people, and metadata for logs.
type AppError struct {
	Code      string
	Category  ErrorCategory
	Message   string
	Operation string
	Module    string
	Err       error
	Metadata  Metadata
	// Recoverable marks errors that a retry or another mirror may get past.
	Recoverable bool
	Timestamp   time.Time
}

// Error renders "[CATEGORY:CODE] message: cause".
func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	prefix := fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
	if e.Err == nil {
		return prefix
	}
	return prefix + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Cause lets github.com/pkg/errors.Cause walk through an AppError.
func (e *AppError) Cause() error {
	return e.Unwrap()
}

// Is matches another AppError with the same code, so a bare
// &AppError{Code: ...} works as a target for errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

func (e *AppError) WithOperation(operation string) *AppError {
	e.Operation = operation
	return e
}

func (e *AppError) WithModule(module string) *AppError {
	e.Module = module
	return e
}

func (e *AppError) WithRecoverable(recoverable bool) *AppError {
	e.Recoverable = recoverable
	return e
}

// WithField sets one metadata entry.
func (e *AppError) WithField(key string, value interface{}) *AppError {
	return e.WithFields(Metadata{key: value})
}

// WithFields merges metadata; later values win.
func (e *AppError) WithFields(metadata Metadata) *AppError {
	if len(metadata) == 0 {
		return e
	}
	if e.Metadata == nil {
		e.Metadata = make(Metadata, len(metadata))
	}
	for k, v := range metadata {
		e.Metadata[k] = v
	}
	return e
}

// Field looks up a metadata entry.
func (e *AppError) Field(key string) (interface{}, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e.Metadata[key]
	return v, ok
}

// TimestampOrNow returns when the error was created, or now for literals.
func (e *AppError) TimestampOrNow() time.Time {
	if e == nil || e.Timestamp.IsZero() {
		return time.Now()
	}
	return e.Timestamp
}

// Cause returns the text shown to people: "message: wrapped error" for an
// AppError, err.Error() for anything else.
func Cause(err error) string {
	if err == nil {
		return ""
	}
	appErr, ok := As(err)
	if !ok {
		return err.Error()
	}
	if appErr.Err == nil {
		return appErr.Message
	}
	return appErr.Message + ": " + appErr.Err.Error()
}

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
