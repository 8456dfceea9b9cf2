package errors

// ErrorCategory groups related application errors for unified handling.
type ErrorCategory string

const (
	ErrCategorySystem     ErrorCategory = "SYSTEM"
	ErrCategoryNetwork    ErrorCategory = "NETWORK"
	ErrCategoryConfig     ErrorCategory = "CONFIG"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryDatabase   ErrorCategory = "DATABASE"
)

// Fatal reports whether errors of this category abort a whole run.
// Only configuration problems do; everything else is scoped to one entry.
func (c ErrorCategory) Fatal() bool {
	return c == ErrCategoryConfig
}
