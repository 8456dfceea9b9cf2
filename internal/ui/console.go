package ui

import (
	"fmt"
	"io"
	"os"

	"mirrordl/internal/logger"
)

// Console coordinates logger output, the spinner and plain text writes for
// the phases before and after the transfer loop.
type Console struct {
	logger   logger.Logger
	progress logger.Progress
	printer  *Printer
	output   io.Writer
}

// NewConsole builds a Console bound to the provided logger and printer.
func NewConsole(log logger.Logger, printer *Printer, output io.Writer) *Console {
	c := &Console{
		logger:  log,
		printer: printer,
		output:  output,
	}
	if c.output == nil {
		c.output = os.Stdout
	}
	if c.printer == nil {
		c.printer = NewPrinter(c.output)
	}
	if isTerminal(c.output) {
		c.progress = logger.NewSpinnerProgress(c.output)
	}
	return c
}

// Logger exposes the underlying logger.
func (c *Console) Logger() logger.Logger {
	return c.logger
}

// Printer exposes the status printer.
func (c *Console) Printer() *Printer {
	return c.printer
}

// StartProgress shows the spinner while a blocking step runs.
func (c *Console) StartProgress(operation string) {
	if c.progress == nil {
		c.printer.Info("%s", operation)
		return
	}
	c.progress.Start(operation)
}

// StopProgress stops the spinner.
func (c *Console) StopProgress(operation string) {
	if c.progress == nil {
		return
	}
	c.progress.Stop(operation)
}

// FailProgress stops the spinner and marks the step as failed.
func (c *Console) FailProgress(operation string) {
	if c.progress == nil {
		return
	}
	c.progress.Fail(operation)
}

// WriteLine outputs formatted text without involving the logger.
func (c *Console) WriteLine(format string, args ...interface{}) {
	fmt.Fprintf(c.output, format+"\n", args...)
}
