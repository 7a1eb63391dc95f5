package errors

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"jobentry/internal/ui"
)

// FailureFileName is the artifact the backend reads failure messages from.
const FailureFileName = "failure"

// ExitPolicy decides the orchestrator's own exit status after a failure is reported.
type ExitPolicy string

const (
	// ExitZero exits 0 after reporting; the artifact alone signals failure.
	ExitZero ExitPolicy = "zero"
	// ExitPropagate exits with the customer's status, or 1 for internal errors.
	ExitPropagate ExitPolicy = "propagate"
)

// DefaultExitPolicy is the policy the external scheduler expects.
const DefaultExitPolicy = ExitZero

// Reporter is the single reporting path for fatal failures. It appends to the
// failure artifact and never truncates it, since customer code may have written
// its own message there first.
type Reporter struct {
	outputDir string
	policy    ExitPolicy
	logger    *slog.Logger
	console   *ui.Console
	exit      func(int)
}

type ReporterOption func(*Reporter)

func WithLogger(logger *slog.Logger) ReporterOption {
	return func(r *Reporter) { r.logger = logger }
}

func WithConsole(console *ui.Console) ReporterOption {
	return func(r *Reporter) { r.console = console }
}

// WithExitFunc replaces os.Exit, mainly for tests.
func WithExitFunc(exit func(int)) ReporterOption {
	return func(r *Reporter) { r.exit = exit }
}

func NewReporter(outputDir string, policy ExitPolicy, opts ...ReporterOption) *Reporter {
	if policy == "" {
		policy = DefaultExitPolicy
	}
	r := &Reporter{
		outputDir: outputDir,
		policy:    policy,
		logger:    slog.Default(),
		console:   ui.NewConsole(),
		exit:      os.Exit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FailurePath returns the absolute location of the failure artifact.
func (r *Reporter) FailurePath() string {
	return filepath.Join(r.outputDir, FailureFileName)
}

// Report appends each part to the failure artifact as-is.
func (r *Reporter) Report(kind Kind, parts ...string) error {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", r.outputDir, err)
	}

	failureLog, err := os.OpenFile(r.FailurePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open failure file: %w", err)
	}
	defer failureLog.Close()

	for _, part := range parts {
		if _, err := failureLog.WriteString(part); err != nil {
			return fmt.Errorf("failed to write failure file: %w", err)
		}
	}

	r.console.PrintError(r.console.FormatFailureMessage(parts...))
	r.logger.LogAttrs(context.Background(), slog.LevelError, "Job failure reported",
		slog.String("kind", string(kind)),
		slog.String("path", r.FailurePath()),
	)
	return nil
}

// ExitCode returns the status the orchestrator should exit with for err.
func (r *Reporter) ExitCode(err *JobError) int {
	if err == nil || r.policy != ExitPropagate {
		return 0
	}
	if err.Type != ErrNonZeroExit {
		return 1
	}
	switch {
	case err.ExitCode > 0:
		return err.ExitCode
	case err.ExitCode < 0:
		// Killed by a signal; mirror the shell convention.
		return 128 - err.ExitCode
	default:
		return 1
	}
}

// Handle reports err, if any, and returns the exit status to use.
func (r *Reporter) Handle(err error) int {
	if err == nil {
		return 0
	}

	jobErr := AsJobError(err)
	r.logStructuredError(jobErr)

	if reportErr := r.Report(jobErr.Kind(), jobErr.Message); reportErr != nil {
		// The artifact is the contract; without it the scheduler only has the exit code.
		r.logger.Error("Failed to write failure artifact", "error", reportErr)
		return 1
	}
	return r.ExitCode(jobErr)
}

// ReportAndExit reports err and terminates the process.
func (r *Reporter) ReportAndExit(err error) {
	r.exit(r.Handle(err))
}

func (r *Reporter) logStructuredError(err *JobError) {
	logAttrs := []slog.Attr{
		slog.String("type", getErrorTypeName(err.Type)),
		slog.String("kind", string(err.Kind())),
		slog.String("message", err.Message),
	}

	if err.OriginalErr != nil {
		logAttrs = append(logAttrs, slog.String("error", err.OriginalErr.Error()))
	}

	if err.Type == ErrNonZeroExit {
		logAttrs = append(logAttrs, slog.Int("exit_code", err.ExitCode))
	}

	r.logger.LogAttrs(context.Background(), slog.LevelError, "Job error occurred", logAttrs...)
}

func getErrorTypeName(errType error) string {
	switch errType {
	case ErrConfigInvalid:
		return "config_invalid"
	case ErrFetchFailed:
		return "fetch_failed"
	case ErrStagingFailed:
		return "staging_failed"
	case ErrBindingFailed:
		return "binding_failed"
	case ErrExecutionFailed:
		return "execution_failed"
	case ErrNonZeroExit:
		return "nonzero_exit"
	default:
		return "unknown"
	}
}
