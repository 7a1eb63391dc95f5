package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"jobentry/internal/entrypoint"
	joberrors "jobentry/internal/errors"
	"jobentry/pkg/job"
	"jobentry/pkg/runtime"
)

// Config locates the interpreter and the directories a run uses.
type Config struct {
	Interpreter string
	// CodeDir is the extraction directory. It is the child's working
	// directory and the head of its module search path.
	CodeDir string
	// ControlDir holds the kwargs and result files of a callable run.
	ControlDir string
}

// Supervisor launches customer code once and turns its exit into an outcome.
// Both entry point forms go through the same spawn primitive.
type Supervisor struct {
	spawner  runtime.Spawner
	cfg      Config
	state    State
	observer func(State)
	logger   *slog.Logger
	stdout   io.Writer
	stderr   io.Writer
}

// Option customises a Supervisor.
type Option func(*Supervisor)

// WithObserver is called after every state change.
func WithObserver(observer func(State)) Option {
	return func(s *Supervisor) { s.observer = observer }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithOutput redirects the child's stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Supervisor) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// New returns an idle Supervisor.
func New(spawner runtime.Spawner, cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		spawner: spawner,
		cfg:     cfg,
		state:   StateIdle,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return s.state
}

func (s *Supervisor) transition(to State) error {
	if !canTransition(s.state, to) {
		return transitionError(s.state, to)
	}
	s.logger.Debug("Run state changed", "from", s.state, "to", to)
	s.state = to
	if s.observer != nil {
		s.observer(to)
	}
	return nil
}

// MarkStaged records that the code is in place and the run may start.
func (s *Supervisor) MarkStaged() error {
	return s.transition(StateStaged)
}

// Fail moves a run that never started to the failed state.
func (s *Supervisor) Fail() error {
	if s.state.Terminal() {
		return nil
	}
	return s.transition(StateFailed)
}

// Run spawns the entry point and blocks until it exits. binding is only used
// for callables; a not-applicable binding invokes the callable without
// arguments.
func (s *Supervisor) Run(ctx context.Context, ep job.EntryPoint, binding job.BindingResult, params []job.ParameterSpec) (job.ExecutionOutcome, error) {
	if err := s.transition(StateRunning); err != nil {
		return job.ExecutionOutcome{}, joberrors.NewExecutionError(ep.String(), err)
	}

	outcome, err := s.run(ctx, ep, binding, params)
	if err != nil {
		_ = s.transition(StateFailed)
		return outcome, err
	}
	if err := s.transition(StateSucceeded); err != nil {
		return outcome, joberrors.NewExecutionError(ep.String(), err)
	}
	return outcome, nil
}

func (s *Supervisor) run(ctx context.Context, ep job.EntryPoint, binding job.BindingResult, params []job.ParameterSpec) (job.ExecutionOutcome, error) {
	opts := runtime.SpawnOptions{
		Dir:    s.cfg.CodeDir,
		Env:    entrypoint.SearchPathEnv(s.cfg.CodeDir),
		Stdout: s.stdout,
		Stderr: s.stderr,
	}

	var resultFile string
	if ep.IsCallable() {
		if err := os.MkdirAll(s.cfg.ControlDir, 0755); err != nil {
			return job.ExecutionOutcome{}, joberrors.NewExecutionError(ep.String(), err)
		}
		resultFile = filepath.Join(s.cfg.ControlDir, entrypoint.ResultFileName)
		_ = os.Remove(resultFile)
		opts.Env[entrypoint.EnvResultFile] = resultFile
		opts.Mounts = []string{s.cfg.ControlDir}

		if binding.Bound {
			kwargsFile := filepath.Join(s.cfg.ControlDir, entrypoint.KwargsFileName)
			if err := entrypoint.WriteKwargs(kwargsFile, binding.Args, params); err != nil {
				return job.ExecutionOutcome{}, joberrors.NewExecutionError(ep.String(), err)
			}
			opts.Env[entrypoint.EnvKwargsFile] = kwargsFile
		}

		opts.Command = entrypoint.CallableCommand(s.cfg.Interpreter, entrypoint.ModeInvoke, ep)
		s.logger.Info("Running code as process", "entry_point", ep.String(), "bound_arguments", len(binding.Args))
	} else {
		opts.Command = entrypoint.ModuleCommand(s.cfg.Interpreter, ep)
		s.logger.Info("Running code as subprocess", "entry_point", ep.String())
	}

	code, err := s.spawner.Run(ctx, opts)
	if err != nil {
		return job.ExecutionOutcome{}, joberrors.NewExecutionError(ep.String(), err)
	}
	s.logger.Info("Code run finished", "entry_point", ep.String(), "exit_code", code)

	outcome := job.ExecutionOutcome{ExitCode: code}
	if code == 0 {
		return outcome, nil
	}

	if resultFile != "" {
		result, err := entrypoint.ReadResult(resultFile)
		if err != nil {
			s.logger.Warn("Ignoring unreadable result file", "path", resultFile, "error", err)
		}
		if result != nil {
			if result.Phase == entrypoint.PhaseResolve {
				return outcome, joberrors.NewExecutionError(ep.String(), errors.New(result.Error))
			}
			outcome.FailureDetail = result.Error
		}
	}

	return outcome, joberrors.NewNonZeroExitError(ep.String(), code, outcome.FailureDetail)
}
