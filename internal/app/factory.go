package app

import (
	"context"
	"fmt"
	"log/slog"

	"jobentry/internal/config"
	"jobentry/internal/fetcher"
	internalruntime "jobentry/internal/runtime"
	"jobentry/pkg/runtime"
)

// ProviderFactory creates the spawner and fetcher selected by the settings.
// This keeps the orchestrator decoupled from the concrete Docker and S3 clients.
type ProviderFactory struct {
	settings *config.Settings
	logger   *slog.Logger
}

// NewProviderFactory creates a new instance of ProviderFactory.
func NewProviderFactory(settings *config.Settings, logger *slog.Logger) *ProviderFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderFactory{settings: settings, logger: logger}
}

// GetSpawner returns the runtime customer code is launched in.
func (f *ProviderFactory) GetSpawner(ctx context.Context) (runtime.Spawner, error) {
	switch f.settings.Runtime {
	case config.RuntimeProcess, "":
		return internalruntime.NewProcessSpawner(f.logger), nil
	case config.RuntimeDocker:
		spawner, err := internalruntime.NewDockerSpawnerFromEnv(ctx, f.settings.DockerImage,
			internalruntime.WithPull(),
			internalruntime.WithDockerLogger(f.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create Docker runtime: %w", err)
		}
		return spawner, nil
	default:
		return nil, fmt.Errorf("unsupported runtime: %s", f.settings.Runtime)
	}
}

// GetFetcher returns a fetcher for every supported scheme. An empty policy
// uses the configured fetch policy.
func (f *ProviderFactory) GetFetcher(policy fetcher.Policy) (fetcher.Fetcher, error) {
	if policy == "" {
		policy = fetcher.Policy(f.settings.FetchPolicy)
	}

	client, err := fetcher.NewS3Client(fetcher.S3Config{
		Endpoint: f.settings.S3Endpoint,
		Region:   f.settings.S3Region,
		Insecure: f.settings.S3Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return fetcher.NewRouter(
		fetcher.WithPolicy(policy),
		fetcher.WithLogger(f.logger),
		fetcher.WithS3(client),
	), nil
}
