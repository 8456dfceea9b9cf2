// Package logging turns AppErrors into structured log records.
package logging

import (
	"context"
	"time"

	apperrors "mirrordl/internal/errors"
	"mirrordl/internal/logger"
)

// Metadata keys that would collide with the fixed error fields are dropped.
var reservedKeys = map[string]struct{}{
	"error":          {},
	"error_code":     {},
	"error_category": {},
	"error_message":  {},
	"error_time":     {},
	"module":         {},
	"operation":      {},
	"recoverable":    {},
}

// Error logs msg at error level with the fields of appErr.
func Error(ctx context.Context, log logger.Logger, msg string, appErr *apperrors.AppError) {
	if log == nil {
		return
	}
	log.ErrorContext(ctx, msg, Fields(appErr)...)
}

// Warn logs msg at warn level with the fields of appErr.
func Warn(ctx context.Context, log logger.Logger, msg string, appErr *apperrors.AppError) {
	if log == nil {
		return
	}
	log.WarnContext(ctx, msg, Fields(appErr)...)
}

// Fields flattens appErr: fixed error fields first, then metadata by key.
func Fields(appErr *apperrors.AppError) []logger.Field {
	if appErr == nil {
		return nil
	}

	fields := make([]logger.Field, 0, len(appErr.Metadata)+8)
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, logger.String(key, value))
		}
	}
	add("error_code", appErr.Code)
	add("error_category", string(appErr.Category))
	add("error_message", appErr.Message)
	add("operation", appErr.Operation)
	add("module", appErr.Module)
	if appErr.Err != nil {
		fields = append(fields, logger.Error(appErr.Err))
	}
	fields = append(fields,
		logger.String("error_time", appErr.TimestampOrNow().Format(time.RFC3339Nano)),
		logger.Bool("recoverable", appErr.Recoverable),
	)

	for _, k := range appErr.Metadata.Keys() {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		fields = append(fields, logger.Any(k, appErr.Metadata[k]))
	}
	return fields
}
