package app

import (
	"context"
	"log/slog"

	"jobentry/internal/config"
	joberrors "jobentry/internal/errors"
	"jobentry/internal/layout"
	"jobentry/pkg/job"
)

// LayoutStage links the container roots and creates the code directories.
type LayoutStage struct {
	layout *layout.Layout
}

// NewLayoutStage creates a new layout stage instance
func NewLayoutStage(l *layout.Layout) *LayoutStage {
	return &LayoutStage{layout: l}
}

// Name returns the name of the stage
func (s *LayoutStage) Name() string {
	return "layout"
}

// Execute prepares the container filesystem
func (s *LayoutStage) Execute(ctx context.Context, state *RunState) error {
	return s.layout.Prepare()
}

// ResolveStage reads the code setup from the environment and parses the entry point.
type ResolveStage struct {
	resolver *config.Resolver
	run      *jobRun
	logger   *slog.Logger
}

// NewResolveStage creates a new resolve stage instance
func NewResolveStage(resolver *config.Resolver, run *jobRun, logger *slog.Logger) *ResolveStage {
	return &ResolveStage{resolver: resolver, run: run, logger: logger}
}

// Name returns the name of the stage
func (s *ResolveStage) Name() string {
	return "resolve"
}

// Execute resolves the execution config
func (s *ResolveStage) Execute(ctx context.Context, state *RunState) error {
	cfg, err := s.resolver.Resolve()
	if err != nil {
		return err
	}

	ep, err := job.ParseEntryPoint(cfg.EntryPoint)
	if err != nil {
		return joberrors.NewExecutionError(cfg.EntryPoint, err)
	}

	s.run.config = cfg
	s.run.entryPoint = ep
	state.RemoteURI = cfg.RemoteURI
	state.EntryPoint = cfg.EntryPoint

	s.logger.Info("Code setup resolved",
		"remote_uri", cfg.RemoteURI,
		"entry_point", cfg.EntryPoint,
		"form", ep.Kind,
		"compression_type", cfg.CompressionType)
	return nil
}
