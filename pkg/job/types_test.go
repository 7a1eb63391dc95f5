package job

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntryPoint(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		kind     EntryPointKind
		module   string
		function string
	}{
		{"Module", "algo", KindModule, "algo", ""},
		{"Dotted module", "pkg.algo", KindModule, "pkg.algo", ""},
		{"Callable", "algo:main", KindCallable, "algo", "main"},
		{"Callable with spaces", " algo : main ", KindCallable, "algo", "main"},
		{"Only first separator splits", "algo:main:extra", KindCallable, "algo", "main:extra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ParseEntryPoint(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ep.Kind)
			assert.Equal(t, tt.module, ep.Module)
			assert.Equal(t, tt.function, ep.Function)
			assert.Equal(t, tt.raw, ep.String())
			assert.Equal(t, tt.kind == KindCallable, ep.IsCallable())
		})
	}
}

func TestParseEntryPoint_Invalid(t *testing.T) {
	for _, raw := range []string{"", "   ", ":main", "algo:", "algo: "} {
		if _, err := ParseEntryPoint(raw); err == nil {
			t.Errorf("Expected error for entry point %q, got nil", raw)
		}
	}
}

func TestExecutionConfig_Validation(t *testing.T) {
	validate := validator.New()

	assert.NoError(t, validate.Struct(ExecutionConfig{RemoteURI: "s3://bucket/key", EntryPoint: "algo"}))
	assert.Error(t, validate.Struct(ExecutionConfig{EntryPoint: "algo"}))
	assert.Error(t, validate.Struct(ExecutionConfig{RemoteURI: "s3://bucket/key"}))
}

func TestExecutionOutcome_Succeeded(t *testing.T) {
	if !(ExecutionOutcome{ExitCode: 0}).Succeeded() {
		t.Error("Expected exit code 0 to succeed")
	}
	if (ExecutionOutcome{ExitCode: 3}).Succeeded() {
		t.Error("Expected exit code 3 to fail")
	}
}
