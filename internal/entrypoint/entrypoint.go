// Package entrypoint builds the interpreter command lines for customer code
// and owns the small file protocol the callable bootstrap speaks.
package entrypoint

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"jobentry/pkg/job"
)

// Script is passed to the interpreter with -c. It resolves the callable in the
// child, so import errors surface there and not in the orchestrator.
//
//go:embed bootstrap.py
var Script string

// Environment variables read by the bootstrap.
const (
	EnvKwargsFile    = "JOBENTRY_KWARGS_FILE"
	EnvResultFile    = "JOBENTRY_RESULT_FILE"
	EnvSignatureFile = "JOBENTRY_SIGNATURE_FILE"
	EnvSearchPath    = "PYTHONPATH"
)

// Bootstrap modes.
const (
	ModeInvoke   = "invoke"
	ModeDescribe = "describe"
)

// Phases a callable failure can be reported in.
const (
	PhaseResolve = "resolve"
	PhaseRun     = "run"
)

// Control file names inside a run's control directory.
const (
	KwargsFileName    = "kwargs.json"
	ResultFileName    = "result.json"
	SignatureFileName = "signature.json"
)

// ModuleCommand runs a module the way `python -m` does.
func ModuleCommand(interpreter string, ep job.EntryPoint) []string {
	return []string{interpreter, "-m", ep.Module}
}

// CallableCommand runs the bootstrap against a <module>:<function> entry point.
func CallableCommand(interpreter, mode string, ep job.EntryPoint) []string {
	return []string{interpreter, "-c", Script, mode, ep.Module, ep.Function}
}

// SearchPathEnv puts codeDir first on the module search path, keeping any
// path the orchestrator itself was started with.
func SearchPathEnv(codeDir string) map[string]string {
	path := codeDir
	if existing := os.Getenv(EnvSearchPath); existing != "" {
		path = codeDir + string(os.PathListSeparator) + existing
	}
	return map[string]string{EnvSearchPath: path}
}

// Result is what the bootstrap writes when the callable could not be resolved
// or raised.
type Result struct {
	Phase string `json:"phase"`
	Error string `json:"error"`
}

// ReadResult loads the result file. A missing file means the child reported
// nothing and returns nil.
func ReadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("malformed result file %s: %w", path, err)
	}
	return &result, nil
}

type kwargsFile struct {
	Args  map[string]any    `json:"args"`
	Types map[string]string `json:"types,omitempty"`
}

// WriteKwargs serialises bound arguments for the bootstrap. Declared types
// travel along so floats that look integral stay floats in the child.
func WriteKwargs(path string, args map[string]any, params []job.ParameterSpec) error {
	payload := kwargsFile{Args: args, Types: make(map[string]string)}
	for _, p := range params {
		if _, ok := args[p.Name]; ok && p.Type != "" {
			payload.Types[p.Name] = p.Type
		}
	}
	if payload.Args == nil {
		payload.Args = map[string]any{}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ReadSignature loads the parameter list written in describe mode.
func ReadSignature(path string) ([]job.ParameterSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var params []job.ParameterSpec
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("malformed signature file %s: %w", path, err)
	}
	return params, nil
}
