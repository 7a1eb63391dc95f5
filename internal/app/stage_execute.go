package app

import (
	"context"
	"errors"
	"log/slog"

	"jobentry/internal/binder"
	joberrors "jobentry/internal/errors"
	"jobentry/internal/metrics"
	"jobentry/internal/supervisor"
	"jobentry/pkg/job"
)

// BindStage matches the job's hyperparameters against a callable's signature.
// Module entry points take no arguments and skip it.
type BindStage struct {
	signatures binder.SignatureSource
	hpFile     string
	codeDir    string
	run        *jobRun
	logger     *slog.Logger
}

// NewBindStage creates a new bind stage instance
func NewBindStage(signatures binder.SignatureSource, hpFile, codeDir string, run *jobRun, logger *slog.Logger) *BindStage {
	return &BindStage{signatures: signatures, hpFile: hpFile, codeDir: codeDir, run: run, logger: logger}
}

// Name returns the name of the stage
func (s *BindStage) Name() string {
	return "bind"
}

// Execute binds hyperparameters for callable entry points
func (s *BindStage) Execute(ctx context.Context, state *RunState) error {
	ep := s.run.entryPoint
	s.run.binding = job.NotApplicable
	if !ep.IsCallable() {
		s.logger.Debug("Module entry point takes no arguments", "entry_point", ep.String())
		return nil
	}

	hp, err := binder.LoadHyperparameters(s.hpFile)
	if err != nil {
		return joberrors.NewExecutionError(ep.String(), err)
	}

	params, err := s.signatures.Signature(ctx, ep, s.codeDir)
	if errors.Is(err, binder.ErrNoSignature) {
		s.logger.Warn("Callable signature unknown, invoking without arguments", "entry_point", ep.String())
		return nil
	}
	if err != nil {
		return joberrors.NewExecutionError(ep.String(), err)
	}

	binding, err := binder.TryBind(params, hp)
	if err != nil {
		return joberrors.NewBindingError(ep.String(), err)
	}

	s.run.params = params
	s.run.binding = binding
	s.logger.Info("Hyperparameters bound",
		"entry_point", ep.String(),
		"applicable", binding.Bound,
		"hyperparameters", len(hp))
	return nil
}

// ExecuteStage runs the customer code once under the supervisor.
type ExecuteStage struct {
	supervisor *supervisor.Supervisor
	metrics    *metrics.Recorder
	run        *jobRun
}

// NewExecuteStage creates a new execute stage instance
func NewExecuteStage(sup *supervisor.Supervisor, recorder *metrics.Recorder, run *jobRun) *ExecuteStage {
	return &ExecuteStage{supervisor: sup, metrics: recorder, run: run}
}

// Name returns the name of the stage
func (s *ExecuteStage) Name() string {
	return "execute"
}

// Execute runs the customer code and records its exit code
func (s *ExecuteStage) Execute(ctx context.Context, state *RunState) error {
	outcome, err := s.supervisor.Run(ctx, s.run.entryPoint, s.run.binding, s.run.params)
	s.run.outcome = outcome

	if err == nil || errors.Is(err, joberrors.ErrNonZeroExit) {
		code := outcome.ExitCode
		state.ExitCode = &code
		s.metrics.ObserveExitCode(code)
	}
	return err
}
