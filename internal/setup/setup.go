package setup

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"jobentry/internal/fetcher"
	"jobentry/internal/ui"
	"jobentry/pkg/runtime"
)

// Runner installs image extras from an optional setup script before the job
// starts. A failed setup never fails the container.
type Runner struct {
	fetcher fetcher.Fetcher
	spawner runtime.Spawner
	workDir string
	logger  *slog.Logger
	console *ui.Console
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithConsole(console *ui.Console) Option {
	return func(r *Runner) { r.console = console }
}

// New creates a Runner. Scripts are downloaded into a fresh directory under
// workDir, or under the system temp directory when workDir is empty.
func New(f fetcher.Fetcher, spawner runtime.Spawner, workDir string, opts ...Option) *Runner {
	r := &Runner{
		fetcher: f,
		spawner: spawner,
		workDir: workDir,
		logger:  slog.Default(),
		console: ui.NewConsole(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Perform downloads and runs the script at uri. An empty uri does nothing.
// The returned error has already been reported; callers only inspect it.
func (r *Runner) Perform(ctx context.Context, uri string) error {
	if uri == "" {
		r.logger.Debug("No setup script configured")
		return nil
	}

	r.console.PrintInfo("Getting setup script from " + uri)
	if err := r.perform(ctx, uri); err != nil {
		r.console.PrintWarning(fmt.Sprintf("Unable to install additional libraries.\nException: %v", err))
		r.logger.Warn("Additional setup failed", "uri", uri, "error", err)
		return err
	}

	r.logger.Info("Additional setup completed", "uri", uri)
	return nil
}

func (r *Runner) perform(ctx context.Context, uri string) error {
	if r.workDir != "" {
		if err := os.MkdirAll(r.workDir, 0755); err != nil {
			return err
		}
	}
	tempDir, err := os.MkdirTemp(r.workDir, "setup-")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	script, err := r.fetcher.Fetch(ctx, uri, tempDir)
	if err != nil {
		return err
	}
	if err := os.Chmod(script, 0755); err != nil {
		return fmt.Errorf("failed to make %s executable: %w", script, err)
	}

	code, err := r.spawner.Run(ctx, runtime.SpawnOptions{Command: []string{script}, Dir: tempDir})
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("setup script exited with code %d", code)
	}
	return nil
}
