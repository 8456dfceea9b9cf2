package errors

import "time"

// New builds an AppError stamped with the current time.
func New(category ErrorCategory, code, message string, err error) *AppError {
	return &AppError{
		Code:      code,
		Category:  category,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// NewRecoverable builds an AppError that a retry or failover may get past.
func NewRecoverable(category ErrorCategory, code, message string, err error) *AppError {
	return New(category, code, message, err).WithRecoverable(true)
}

func SystemError(code, message string, err error) *AppError {
	return New(ErrCategorySystem, code, message, err)
}

// NetworkError errors are recoverable: another attempt or mirror may work.
func NetworkError(code, message string, err error) *AppError {
	return NewRecoverable(ErrCategoryNetwork, code, message, err)
}

func ConfigError(code, message string, err error) *AppError {
	return New(ErrCategoryConfig, code, message, err)
}

func ValidationError(code, message string, err error) *AppError {
	return New(ErrCategoryValidation, code, message, err)
}

func DatabaseError(code, message string, err error) *AppError {
	return New(ErrCategoryDatabase, code, message, err)
}

// IsConfig reports whether err carries a CONFIG AppError.
func IsConfig(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Category == ErrCategoryConfig
}

// HasCode reports whether err carries an AppError with code.
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}
