package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"jobentry/pkg/runtime"
)

// DockerAPI is the part of the Docker client the spawner needs.
type DockerAPI interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerSpawner runs the child command in a sibling container. The working
// directory is bind-mounted at the same path so the command line and
// PYTHONPATH built for a local process stay valid.
type DockerSpawner struct {
	client DockerAPI
	image  string
	pull   bool
	logger *slog.Logger
}

// DockerOption customises a DockerSpawner.
type DockerOption func(*DockerSpawner)

// WithPull pulls the image before every run.
func WithPull() DockerOption {
	return func(d *DockerSpawner) { d.pull = true }
}

// WithDockerLogger sets the logger.
func WithDockerLogger(logger *slog.Logger) DockerOption {
	return func(d *DockerSpawner) { d.logger = logger }
}

// NewDockerSpawner wraps an existing Docker API client.
func NewDockerSpawner(api DockerAPI, imageName string, opts ...DockerOption) *DockerSpawner {
	d := &DockerSpawner{client: api, image: imageName, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewDockerSpawnerFromEnv connects to the daemon described by the DOCKER_*
// environment and checks that it answers.
func NewDockerSpawnerFromEnv(ctx context.Context, imageName string, opts ...DockerOption) (*DockerSpawner, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := dockerClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Docker daemon: %w", err)
	}

	return NewDockerSpawner(dockerClient, imageName, opts...), nil
}

// Run creates, starts and waits for the container, streaming its output.
// The container is always removed afterwards.
func (d *DockerSpawner) Run(ctx context.Context, opts runtime.SpawnOptions) (int, error) {
	if len(opts.Command) == 0 {
		return 0, errors.New("no command to run")
	}

	if d.pull {
		if err := d.pullImage(ctx); err != nil {
			return 0, err
		}
	}

	d.logger.Info("Running container", "image", d.image, "command", opts.Command[0])

	containerConfig := &container.Config{
		Image:      d.image,
		Cmd:        opts.Command,
		Env:        envList(opts.Env),
		WorkingDir: opts.Dir,
	}

	hostConfig := &container.HostConfig{Mounts: bindMounts(opts)}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return 0, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := resp.ID

	defer func() {
		// The run context may already be cancelled here.
		if err := d.client.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true}); err != nil {
			d.logger.Error("Failed to remove container", "containerID", containerID, "error", err)
		}
	}()

	// Register before starting so an early exit is not missed.
	waitCh, errCh := d.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return 0, fmt.Errorf("failed to start container: %w", err)
	}

	logsDone := d.streamLogs(ctx, containerID, opts)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, ForwardedSignals...)
	defer signal.Stop(signals)

	for {
		select {
		case sig := <-signals:
			d.logger.Info("Forwarding signal to container", "signal", sig.String(), "containerID", containerID)
			if err := d.client.ContainerKill(ctx, containerID, dockerSignalName(sig)); err != nil {
				d.logger.Warn("Failed to signal container", "containerID", containerID, "error", err)
			}
		case err := <-errCh:
			return 0, fmt.Errorf("failed to wait for container: %w", err)
		case status := <-waitCh:
			<-logsDone
			if status.Error != nil && status.Error.Message != "" {
				return 0, fmt.Errorf("container wait failed: %s", status.Error.Message)
			}
			return int(status.StatusCode), nil
		}
	}
}

func (d *DockerSpawner) pullImage(ctx context.Context) error {
	d.logger.Info("Pulling Docker image", "image", d.image)

	reader, err := d.client.ImagePull(ctx, d.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", d.image, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to stream image pull output: %w", err)
	}
	return nil
}

func (d *DockerSpawner) streamLogs(ctx context.Context, containerID string, opts runtime.SpawnOptions) <-chan struct{} {
	done := make(chan struct{})

	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	go func() {
		defer close(done)
		logs, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
		})
		if err != nil {
			d.logger.Warn("Failed to attach to container logs", "containerID", containerID, "error", err)
			return
		}
		defer logs.Close()
		if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil {
			d.logger.Warn("Container log stream ended with error", "containerID", containerID, "error", err)
		}
	}()

	return done
}

func bindMounts(opts runtime.SpawnOptions) []mount.Mount {
	var mounts []mount.Mount
	seen := make(map[string]bool)
	for _, path := range append([]string{opts.Dir}, opts.Mounts...) {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: path,
			Target: path,
		})
	}
	return mounts
}

func dockerSignalName(sig os.Signal) string {
	switch sig {
	case os.Interrupt:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "SIGKILL"
	}
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, key := range keys {
		list = append(list, fmt.Sprintf("%s=%s", key, env[key]))
	}
	return list
}
