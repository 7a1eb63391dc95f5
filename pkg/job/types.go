package job

import (
	"fmt"
	"strings"
)

// ExecutionConfig is the code setup for a single job run. It's resolved from the
// container environment before anything is downloaded.
type ExecutionConfig struct {
	RemoteURI       string `json:"remote_uri" validate:"required"`
	EntryPoint      string `json:"entry_point" validate:"required"`
	CompressionType string `json:"compression_type,omitempty"`
}

// EntryPointKind tells the supervisor how customer code is started.
type EntryPointKind string

const (
	// KindCallable is a module-level function, written as <module>:<function>.
	KindCallable EntryPointKind = "callable"
	// KindModule is a runnable module or script, written as <module>.
	KindModule EntryPointKind = "module"
)

// EntryPointSeparator splits the module from the function in a callable entry point.
const EntryPointSeparator = ":"

// EntryPoint is the parsed form of an entry point string.
type EntryPoint struct {
	Raw      string
	Kind     EntryPointKind
	Module   string
	Function string
}

// ParseEntryPoint splits raw on the first separator. Anything after the first
// separator is the function name.
func ParseEntryPoint(raw string) (EntryPoint, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EntryPoint{}, fmt.Errorf("entry point is empty")
	}

	module, function, isCallable := strings.Cut(trimmed, EntryPointSeparator)
	if !isCallable {
		return EntryPoint{Raw: raw, Kind: KindModule, Module: trimmed}, nil
	}

	module = strings.TrimSpace(module)
	function = strings.TrimSpace(function)
	if module == "" {
		return EntryPoint{}, fmt.Errorf("entry point %q has no module", raw)
	}
	if function == "" {
		return EntryPoint{}, fmt.Errorf("entry point %q has no function", raw)
	}

	return EntryPoint{Raw: raw, Kind: KindCallable, Module: module, Function: function}, nil
}

// String returns the entry point exactly as it was supplied.
func (e EntryPoint) String() string {
	return e.Raw
}

// IsCallable reports whether the entry point names a function.
func (e EntryPoint) IsCallable() bool {
	return e.Kind == KindCallable
}

// HyperparameterSet maps parameter names to their pre-stringified values.
type HyperparameterSet map[string]string

// ParameterSpec describes one declared parameter of a callable entry point.
type ParameterSpec struct {
	Name       string `json:"name" yaml:"name" validate:"required"`
	Type       string `json:"type" yaml:"type"`
	HasDefault bool   `json:"has_default" yaml:"has_default"`
	VarKeyword bool   `json:"var_keyword" yaml:"var_keyword"`
}

// BindingResult is the outcome of binding hyperparameters against a signature.
// Args is only meaningful when Bound is true.
type BindingResult struct {
	Bound bool
	Args  map[string]any
}

// NotApplicable is the binding result for signatures the hyperparameters don't fit.
var NotApplicable = BindingResult{}

// ExecutionOutcome is the terminal result of running customer code once.
type ExecutionOutcome struct {
	ExitCode      int    `json:"exit_code"`
	FailureDetail string `json:"failure_detail,omitempty"`
}

// Succeeded reports whether the customer code exited cleanly.
func (o ExecutionOutcome) Succeeded() bool {
	return o.ExitCode == 0
}
