package system

import apperrors "mirrordl/internal/errors"

func newSystemError(code, operation, message string, err error, metadata apperrors.Metadata) *apperrors.AppError {
	appErr := apperrors.SystemError(code, message, err).
		WithModule("system").
		WithOperation(operation)
	if metadata != nil {
		appErr.WithFields(metadata)
	}
	return appErr
}
