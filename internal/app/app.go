package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"jobentry/internal/binder"
	"jobentry/internal/config"
	joberrors "jobentry/internal/errors"
	"jobentry/internal/fetcher"
	"jobentry/internal/layout"
	"jobentry/internal/metrics"
	internalruntime "jobentry/internal/runtime"
	"jobentry/internal/staging"
	"jobentry/internal/supervisor"
	"jobentry/internal/ui"
	"jobentry/pkg/runtime"
)

// App runs the customer job once: it prepares the container, fetches and
// stages the code, binds hyperparameters and supervises the child. Failures
// are returned as *errors.JobError for the caller to report.
type App struct {
	settings   *config.Settings
	layout     *layout.Layout
	lookup     config.LookupFunc
	fetcher    fetcher.Fetcher
	spawner    runtime.Spawner
	signatures binder.SignatureSource
	metrics    *metrics.Recorder
	console    *ui.Console
	logger     *slog.Logger
	stdout     io.Writer
	stderr     io.Writer
}

type Option func(*App)

// WithLookup replaces os.LookupEnv for the job's environment.
func WithLookup(lookup config.LookupFunc) Option {
	return func(a *App) { a.lookup = lookup }
}

func WithFetcher(f fetcher.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

func WithSpawner(spawner runtime.Spawner) Option {
	return func(a *App) { a.spawner = spawner }
}

func WithSignatureSource(source binder.SignatureSource) Option {
	return func(a *App) { a.signatures = source }
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(a *App) { a.metrics = recorder }
}

func WithConsole(console *ui.Console) Option {
	return func(a *App) { a.console = console }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithOutput redirects the customer code's stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *App) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// New creates an App. Collaborators not supplied as options default to a
// local process spawner and a fetcher without S3 support.
func New(settings *config.Settings, opts ...Option) *App {
	l := layout.New(settings.MLRoot, settings.BraketRoot)
	l.SkipSymlink = settings.SkipSymlink

	a := &App{
		settings: settings,
		layout:   l,
		lookup:   os.LookupEnv,
		metrics:  metrics.NewRecorder(),
		console:  ui.NewConsole(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.fetcher == nil {
		a.fetcher = fetcher.NewRouter(fetcher.WithPolicy(fetcher.Policy(settings.FetchPolicy)), fetcher.WithLogger(a.logger))
	}
	if a.spawner == nil {
		a.spawner = internalruntime.NewProcessSpawner(a.logger)
	}
	if a.signatures == nil {
		a.signatures = binder.ChainSource{
			Sources: []binder.SignatureSource{
				binder.ManifestSource{},
				binder.ProbeSource{Spawner: a.spawner, Interpreter: settings.Interpreter, ControlDir: a.layout.ControlDir()},
			},
			Logger: a.logger,
		}
	}
	return a
}

// Layout returns the container layout the App works in.
func (a *App) Layout() *layout.Layout {
	return a.layout
}

// StatePath is where the run state is persisted.
func (a *App) StatePath() string {
	return filepath.Join(a.layout.OutputDir(), StateFileName)
}

// Run executes every stage in order and stops at the first failure.
func (a *App) Run(ctx context.Context) error {
	statePath := a.StatePath()
	if previous, err := loadState(statePath); err != nil {
		a.logger.Warn("Ignoring unreadable state file", "path", statePath, "error", err)
	} else if previous != nil {
		a.logger.Info("Previous run found", "runId", previous.RunID, "status", previous.Status, "lastStage", previous.LastCompletedStage)
	}

	state := newState(uuid.New().String())
	a.logger.Info("Beginning setup", "runId", state.RunID, "mlRoot", a.settings.MLRoot, "runtime", a.settings.Runtime)

	save := func() {
		if err := saveState(statePath, state); err != nil {
			a.logger.Warn("Failed to save run state", "path", statePath, "error", err)
		}
	}

	sup := supervisor.New(a.spawner, supervisor.Config{
		Interpreter: a.settings.Interpreter,
		CodeDir:     a.layout.ExtractedDir(),
		ControlDir:  a.layout.ControlDir(),
	},
		supervisor.WithLogger(a.logger),
		supervisor.WithOutput(a.stdout, a.stderr),
		supervisor.WithObserver(func(s supervisor.State) {
			state.Status = s
			save()
		}),
	)

	stages := a.buildStages(sup)
	defer a.metrics.WriteTextfile(a.settings.MetricsFile)

	for i, stage := range stages {
		a.console.PrintStage(i+1, stage.Name())
		done := a.metrics.StartStage(stage.Name())
		err := stage.Execute(ctx, state)
		done()

		if err != nil {
			jobErr := joberrors.AsJobError(err)
			state.ErrorKind = jobErr.Kind()
			a.metrics.IncFailure(string(jobErr.Kind()))
			a.logger.Error("Stage failed", "stage", stage.Name(), "runId", state.RunID, "kind", jobErr.Kind())
			if failErr := sup.Fail(); failErr != nil {
				a.logger.Warn("Failed to mark run as failed", "error", failErr)
			}
			save()
			return jobErr
		}

		state.LastCompletedStage = stage.Name()
		save()
	}

	a.console.PrintSuccess("[jobentry] Customer code finished successfully")
	a.logger.Info("Job run completed", "runId", state.RunID, "entryPoint", state.EntryPoint)
	return nil
}

// buildStages wires the pipeline for one run.
func (a *App) buildStages(sup *supervisor.Supervisor) []Stage {
	run := &jobRun{}
	hpFile, _ := a.lookup(config.EnvHyperparameterFile)

	return []Stage{
		NewLayoutStage(a.layout),
		NewResolveStage(config.NewResolver(a.lookup), run, a.logger),
		NewFetchStage(a.fetcher, a.layout.OriginalDir(), run, a.logger),
		NewUnpackStage(staging.New(a.layout.ExtractedDir(), a.logger), sup, run),
		NewBindStage(a.signatures, hpFile, a.layout.ExtractedDir(), run, a.logger),
		NewExecuteStage(sup, a.metrics, run),
	}
}
