package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// exitCodes maps categories to process exit codes. Unlisted categories exit 1.
var exitCodes = map[ErrorCategory]int{
	CategoryValidation:  2,
	CategoryNotFound:    3,
	CategoryLockTimeout: 4, // busy, try again
	CategoryLockIO:      5,
	CategoryWrite:       5,
	CategoryFileSystem:  5,
	CategoryManifest:    6,
	CategoryHistory:     6,
	CategoryConfig:      7,
	CategoryNotify:      8,
	CategoryInternal:    10,
	CategoryDaemon:      12,
}

// hints are printed below the message in non-verbose mode.
var hints = map[ErrorCategory]string{
	CategoryLockTimeout: "Run 'statekeep locks' to see which locks are held.",
	CategoryConfig:      "Run 'statekeep init' to write a default configuration.",
	CategoryManifest:    "The backup manifest is rebuilt on the next successful run.",
}

// CLIErrorAdapter turns errors into a message on stderr and an exit code.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	stderr  io.Writer
	exit    func(int)
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger, stderr: os.Stderr, exit: os.Exit}
}

// ExitCodeFor determines the exit code for err; nil maps to 0.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	classified, ok := AsClassified(err)
	if !ok {
		return 1
	}
	if code, ok := exitCodes[classified.Category()]; ok {
		return code
	}
	return 1
}

// FormatError renders err for display. Verbose mode prints the full chain.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	classified, ok := AsClassified(err)
	if !ok {
		return fmt.Sprintf("Error: %v", err)
	}
	if a.verbose {
		return classified.Error()
	}

	var msg string
	switch classified.Category() {
	case CategoryInternal, CategoryDaemon:
		msg = "Internal error occurred (use -v for details)"
	case CategoryLockTimeout:
		if resource, ok := classified.Context().GetString("resource"); ok {
			msg = fmt.Sprintf("Error: %s is busy in another process: %s", resource, classified.Message())
		}
	}
	if msg == "" {
		msg = "Error: " + classified.Message()
	}
	if hint, ok := hints[classified.Category()]; ok {
		msg += "\n" + hint
	}
	return msg
}

// HandleError logs err when warranted, prints it and exits.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	a.log(err)
	_, _ = fmt.Fprintln(a.stderr, a.FormatError(err))
	a.exit(a.ExitCodeFor(err))
}

// log records unclassified and fatal errors always, everything else only in
// verbose mode.
func (a *CLIErrorAdapter) log(err error) {
	classified, ok := AsClassified(err)
	if !ok {
		a.logger.Error("Unclassified error", "error", err)
		return
	}
	if !a.verbose && classified.Severity() != SeverityFatal {
		return
	}

	level := slog.LevelError
	switch classified.Severity() {
	case SeverityInfo:
		level = slog.LevelInfo
	case SeverityWarning:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{slog.String("category", string(classified.Category()))}
	if classified.CanRetry() {
		attrs = append(attrs, slog.Bool("retryable", true))
	}
	a.logger.LogAttrs(context.Background(), level, classified.Message(), attrs...)
}
