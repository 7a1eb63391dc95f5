package errors

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jobentry/internal/ui"
)

func newTestReporter(t *testing.T, policy ExitPolicy, exitCodes *[]int) (*Reporter, string, *bytes.Buffer) {
	t.Helper()

	outputDir := filepath.Join(t.TempDir(), "output")
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))

	reporter := NewReporter(outputDir, policy,
		WithLogger(logger),
		WithConsole(ui.NewConsoleWithWriters(io.Discard, io.Discard)),
		WithExitFunc(func(code int) { *exitCodes = append(*exitCodes, code) }),
	)
	return reporter, outputDir, logs
}

func TestReporter_Report_CreatesDirectoryAndAppends(t *testing.T) {
	var exits []int
	reporter, outputDir, _ := newTestReporter(t, DefaultExitPolicy, &exits)

	if err := reporter.Report(KindInternalError, "my test data"); err != nil {
		t.Fatalf("Report() failed: %v", err)
	}

	if _, err := os.Stat(outputDir); err != nil {
		t.Fatalf("Output directory was not created: %v", err)
	}

	if err := reporter.Report(KindInternalError, " and more"); err != nil {
		t.Fatalf("second Report() failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(outputDir, FailureFileName))
	if err != nil {
		t.Fatalf("Failed to read failure file: %v", err)
	}
	if string(content) != "my test data and more" {
		t.Errorf("failure file = %q, want %q", string(content), "my test data and more")
	}
}

func TestReporter_Report_PreservesExistingContent(t *testing.T) {
	var exits []int
	reporter, outputDir, _ := newTestReporter(t, DefaultExitPolicy, &exits)

	// Customer code may have written its own message before failing
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(reporter.FailurePath(), []byte("customer said: bad input\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := reporter.Report(KindCustomerNonZeroExit, "Job at pkg.mod exited with exit code: 2"); err != nil {
		t.Fatalf("Report() failed: %v", err)
	}

	content, _ := os.ReadFile(reporter.FailurePath())
	want := "customer said: bad input\nJob at pkg.mod exited with exit code: 2"
	if string(content) != want {
		t.Errorf("failure file = %q, want %q", string(content), want)
	}
}

func TestReporter_ReportAndExit_DefaultPolicyExitsZero(t *testing.T) {
	var exits []int
	reporter, _, logs := newTestReporter(t, DefaultExitPolicy, &exits)

	reporter.ReportAndExit(NewNonZeroExitError("pkg.mod", 2, ""))

	if len(exits) != 1 || exits[0] != 0 {
		t.Fatalf("exit calls = %v, want [0]", exits)
	}

	content, _ := os.ReadFile(reporter.FailurePath())
	if !strings.Contains(string(content), "pkg.mod") || !strings.Contains(string(content), "2") {
		t.Errorf("failure file %q should name the entry point and exit code", string(content))
	}
	if !strings.Contains(logs.String(), `"kind":"customer_nonzero_exit"`) {
		t.Errorf("structured log should carry the failure kind, got %s", logs.String())
	}
}

func TestReporter_ExitCode(t *testing.T) {
	tests := []struct {
		name     string
		policy   ExitPolicy
		err      *JobError
		expected int
	}{
		{"zero policy non-zero exit", ExitZero, NewNonZeroExitError("pkg.mod", 2, ""), 0},
		{"zero policy internal error", ExitZero, NewFetchError(errors.New("denied")), 0},
		{"propagate customer status", ExitPropagate, NewNonZeroExitError("pkg.mod", 2, ""), 2},
		{"propagate signal", ExitPropagate, NewNonZeroExitError("pkg.mod", -9, ""), 137},
		{"propagate internal error", ExitPropagate, NewConfigError("No customer script specified", nil), 1},
		{"nil error", ExitPropagate, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := NewReporter(t.TempDir(), tt.policy)
			if got := reporter.ExitCode(tt.err); got != tt.expected {
				t.Errorf("ExitCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestReporter_Handle_NilError(t *testing.T) {
	var exits []int
	reporter, outputDir, _ := newTestReporter(t, ExitPropagate, &exits)

	if code := reporter.Handle(nil); code != 0 {
		t.Errorf("Handle(nil) = %d, want 0", code)
	}
	if _, err := os.Stat(filepath.Join(outputDir, FailureFileName)); !os.IsNotExist(err) {
		t.Error("Handle(nil) should not create the failure file")
	}
}

func TestReporter_Handle_GenericError(t *testing.T) {
	var exits []int
	reporter, _, _ := newTestReporter(t, ExitPropagate, &exits)

	if code := reporter.Handle(errors.New("unexpected")); code != 1 {
		t.Errorf("Handle() = %d, want 1", code)
	}

	content, _ := os.ReadFile(reporter.FailurePath())
	if !strings.Contains(string(content), "unexpected") {
		t.Errorf("failure file %q should contain the error text", string(content))
	}
}

func TestGetErrorTypeName(t *testing.T) {
	tests := []struct {
		errorType error
		expected  string
	}{
		{ErrConfigInvalid, "config_invalid"},
		{ErrFetchFailed, "fetch_failed"},
		{ErrStagingFailed, "staging_failed"},
		{ErrBindingFailed, "binding_failed"},
		{ErrExecutionFailed, "execution_failed"},
		{ErrNonZeroExit, "nonzero_exit"},
		{errors.New("unknown"), "unknown"},
	}

	for _, test := range tests {
		result := getErrorTypeName(test.errorType)
		if result != test.expected {
			t.Errorf("getErrorTypeName(%v) = %q, want %q", test.errorType, result, test.expected)
		}
	}
}

func TestJobError_IsAndKind(t *testing.T) {
	original := errors.New("no such bucket")
	err := NewFetchError(original)

	if !errors.Is(err, ErrFetchFailed) {
		t.Error("fetch error should match ErrFetchFailed")
	}
	if !errors.Is(err, original) {
		t.Error("fetch error should unwrap to the original error")
	}
	if err.Kind() != KindInternalError {
		t.Errorf("Kind() = %q, want %q", err.Kind(), KindInternalError)
	}
	if err.Error() != "Unable to download code.\nException: no such bucket" {
		t.Errorf("Error() = %q", err.Error())
	}

	exitErr := NewNonZeroExitError("pkg.mod:run", 1, "ValueError: boom")
	if exitErr.Kind() != KindCustomerNonZeroExit {
		t.Errorf("Kind() = %q, want %q", exitErr.Kind(), KindCustomerNonZeroExit)
	}
	if exitErr.Error() != "Job at pkg.mod:run exited with exit code: 1\nException: ValueError: boom" {
		t.Errorf("Error() = %q", exitErr.Error())
	}
}

func TestErrorConstructors(t *testing.T) {
	originalErr := errors.New("test error")

	tests := []struct {
		name         string
		err          *JobError
		expectedType error
		contains     []string
	}{
		{"NewConfigError", NewConfigError("Symlink failure.", originalErr), ErrConfigInvalid, []string{"Symlink failure.", "test error"}},
		{"NewFetchError", NewFetchError(originalErr), ErrFetchFailed, []string{"Unable to download code."}},
		{"NewStagingError", NewStagingError("/tmp/code.tar.gz", "gzip", originalErr), ErrStagingFailed, []string{"/tmp/code.tar.gz", "gzip"}},
		{"NewCopyError", NewCopyError("/tmp/script.py", originalErr), ErrStagingFailed, []string{"/tmp/script.py"}},
		{"NewBindingError", NewBindingError("pkg.mod:run", originalErr), ErrBindingFailed, []string{"pkg.mod:run", "test error"}},
		{"NewExecutionError", NewExecutionError("pkg.mod:run", originalErr), ErrExecutionFailed, []string{"Unable to run job at entry point pkg.mod:run"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if test.err.Type != test.expectedType {
				t.Errorf("%s created error with type %v, want %v", test.name, test.err.Type, test.expectedType)
			}
			if test.err.OriginalErr != originalErr {
				t.Errorf("%s created error with originalErr %v, want %v", test.name, test.err.OriginalErr, originalErr)
			}
			for _, part := range test.contains {
				if !strings.Contains(test.err.Message, part) {
					t.Errorf("%s message %q should contain %q", test.name, test.err.Message, part)
				}
			}
		})
	}
}
