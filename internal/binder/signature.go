package binder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"jobentry/internal/entrypoint"
	"jobentry/pkg/job"
	"jobentry/pkg/runtime"
)

// ManifestFileName is looked up at the root of the staged code.
const ManifestFileName = "jobentry.yaml"

// ErrNoSignature means a source has nothing to say about the entry point and
// the next source should be asked.
var ErrNoSignature = errors.New("no signature declared")

// SignatureSource returns the declared parameters of a callable entry point.
type SignatureSource interface {
	Signature(ctx context.Context, ep job.EntryPoint, codeDir string) ([]job.ParameterSpec, error)
}

type manifest struct {
	Callables []struct {
		EntryPoint string              `yaml:"entry_point"`
		Parameters []job.ParameterSpec `yaml:"parameters"`
	} `yaml:"callables"`
}

// ManifestSource reads signatures the customer declared in jobentry.yaml.
// A declared callable is never probed, so its module is imported only once,
// by the run itself. An entry without parameters declares a function that
// takes none.
type ManifestSource struct{}

func (ManifestSource) Signature(_ context.Context, ep job.EntryPoint, codeDir string) ([]job.ParameterSpec, error) {
	path := filepath.Join(codeDir, ManifestFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSignature
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ManifestFileName, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestFileName, err)
	}

	want := ep.Module + job.EntryPointSeparator + ep.Function
	for _, c := range m.Callables {
		if c.EntryPoint != want {
			continue
		}
		for i, p := range c.Parameters {
			if p.Name == "" {
				return nil, fmt.Errorf("%s: parameter %d of %s has no name", ManifestFileName, i+1, want)
			}
		}
		// An empty list still declares the signature.
		if c.Parameters == nil {
			return []job.ParameterSpec{}, nil
		}
		return c.Parameters, nil
	}
	return nil, ErrNoSignature
}

// ProbeSource asks the interpreter for the signature by running the bootstrap
// in describe mode. The probe imports the customer module, so its top-level
// code runs once more than the job itself.
type ProbeSource struct {
	Spawner     runtime.Spawner
	Interpreter string
	// ControlDir holds the signature and result files. It must be visible to
	// the child.
	ControlDir string
}

func (p ProbeSource) Signature(ctx context.Context, ep job.EntryPoint, codeDir string) ([]job.ParameterSpec, error) {
	if err := os.MkdirAll(p.ControlDir, 0755); err != nil {
		return nil, err
	}
	signatureFile := filepath.Join(p.ControlDir, entrypoint.SignatureFileName)
	resultFile := filepath.Join(p.ControlDir, "describe-"+entrypoint.ResultFileName)
	_ = os.Remove(signatureFile)
	_ = os.Remove(resultFile)

	env := entrypoint.SearchPathEnv(codeDir)
	env[entrypoint.EnvSignatureFile] = signatureFile
	env[entrypoint.EnvResultFile] = resultFile

	code, err := p.Spawner.Run(ctx, runtime.SpawnOptions{
		Command: entrypoint.CallableCommand(p.Interpreter, entrypoint.ModeDescribe, ep),
		Dir:     codeDir,
		Mounts:  []string{p.ControlDir},
		Env:     env,
	})
	if err != nil {
		return nil, err
	}

	if code != 0 {
		result, readErr := entrypoint.ReadResult(resultFile)
		if readErr == nil && result != nil && result.Error != "" {
			return nil, errors.New(result.Error)
		}
		return nil, fmt.Errorf("signature probe exited with code %d", code)
	}

	return entrypoint.ReadSignature(signatureFile)
}

// ChainSource asks each source in turn until one declares the signature.
type ChainSource struct {
	Sources []SignatureSource
	Logger  *slog.Logger
}

func (c ChainSource) Signature(ctx context.Context, ep job.EntryPoint, codeDir string) ([]job.ParameterSpec, error) {
	for _, source := range c.Sources {
		params, err := source.Signature(ctx, ep, codeDir)
		if errors.Is(err, ErrNoSignature) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if c.Logger != nil {
			c.Logger.Debug("Resolved callable signature", "entry_point", ep.String(), "source", fmt.Sprintf("%T", source), "parameters", len(params))
		}
		return params, nil
	}
	return nil, ErrNoSignature
}
