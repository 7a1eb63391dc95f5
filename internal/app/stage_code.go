package app

import (
	"context"
	"log/slog"

	joberrors "jobentry/internal/errors"
	"jobentry/internal/fetcher"
	"jobentry/internal/staging"
	"jobentry/internal/supervisor"
)

// FetchStage downloads the customer code into the original directory.
type FetchStage struct {
	fetcher fetcher.Fetcher
	destDir string
	run     *jobRun
	logger  *slog.Logger
}

// NewFetchStage creates a new fetch stage instance
func NewFetchStage(f fetcher.Fetcher, destDir string, run *jobRun, logger *slog.Logger) *FetchStage {
	return &FetchStage{fetcher: f, destDir: destDir, run: run, logger: logger}
}

// Name returns the name of the stage
func (s *FetchStage) Name() string {
	return "fetch"
}

// Execute downloads the code
func (s *FetchStage) Execute(ctx context.Context, state *RunState) error {
	path, err := s.fetcher.Fetch(ctx, s.run.config.RemoteURI, s.destDir)
	if err != nil {
		return err
	}
	s.run.localPath = path
	s.logger.Info("Customer code downloaded", "path", path)
	return nil
}

// UnpackStage stages the downloaded code into the extraction directory and
// hands the run to the supervisor.
type UnpackStage struct {
	stager     *staging.Stager
	supervisor *supervisor.Supervisor
	run        *jobRun
}

// NewUnpackStage creates a new unpack stage instance
func NewUnpackStage(stager *staging.Stager, sup *supervisor.Supervisor, run *jobRun) *UnpackStage {
	return &UnpackStage{stager: stager, supervisor: sup, run: run}
}

// Name returns the name of the stage
func (s *UnpackStage) Name() string {
	return "stage"
}

// Execute unpacks or copies the code
func (s *UnpackStage) Execute(ctx context.Context, state *RunState) error {
	if err := s.stager.Stage(s.run.localPath, s.run.config.CompressionType); err != nil {
		return err
	}
	if err := s.supervisor.MarkStaged(); err != nil {
		return joberrors.NewExecutionError(s.run.entryPoint.String(), err)
	}
	return nil
}
