package app

import (
	"context"

	apperrors "mirrordl/internal/errors"
	"mirrordl/internal/logger"
	"mirrordl/internal/ui"
)

// Step describes a single preparation phase of a run.
type Step struct {
	Name      string
	Operation string
	Category  apperrors.ErrorCategory

	// Interactive steps may prompt, so no spinner is drawn around them.
	Interactive bool

	Fn func(ctx context.Context) error
}

// StepErrorHandler handles step failures.
type StepErrorHandler func(step Step, err error) error

// Pipeline executes steps sequentially and stops at the first failure.
type Pipeline struct {
	steps   []Step
	console *ui.Console
	logger  logger.Logger
	onError StepErrorHandler
}

// NewPipeline constructs a new pipeline.
func NewPipeline(console *ui.Console, log logger.Logger, steps []Step, handler StepErrorHandler) *Pipeline {
	return &Pipeline{
		steps:   steps,
		console: console,
		logger:  log,
		onError: handler,
	}
}

// Execute runs through all configured steps.
func (p *Pipeline) Execute(ctx context.Context) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.logger != nil {
			p.logger.DebugContext(ctx, "Executing step", logger.String("step", step.Name))
		}

		spin := p.console != nil && !step.Interactive
		if spin {
			p.console.StartProgress(step.Name)
		}

		if err := step.Fn(ctx); err != nil {
			if spin {
				p.console.FailProgress(step.Name)
			}
			if p.onError != nil {
				return p.onError(step, err)
			}
			return err
		}

		if spin {
			p.console.StopProgress(step.Name)
		}
	}

	return nil
}

// wrapStepError gives errors that are not AppErrors the step's category and operation.
func wrapStepError(step Step, err error) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		if appErr.Operation == "" {
			appErr.WithOperation(step.Operation)
		}
		return appErr
	}
	return apperrors.New(step.Category, codeForCategory(step.Category), step.Name+" failed", err).
		WithModule("app").
		WithOperation(step.Operation)
}

func codeForCategory(category apperrors.ErrorCategory) string {
	switch category {
	case apperrors.ErrCategoryNetwork:
		return apperrors.CodeNetworkGeneric
	case apperrors.ErrCategoryConfig:
		return apperrors.CodeConfigGeneric
	case apperrors.ErrCategoryValidation:
		return apperrors.CodeValidationGeneric
	case apperrors.ErrCategoryDatabase:
		return apperrors.CodeDatabaseGeneric
	default:
		return apperrors.CodeSystemGeneric
	}
}
