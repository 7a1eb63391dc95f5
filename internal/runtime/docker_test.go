package runtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/mock"

	"jobentry/pkg/runtime"
)

// MockDockerAPI is a mock implementation of the DockerAPI interface
type MockDockerAPI struct {
	mock.Mock
}

func (m *MockDockerAPI) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, refStr, options)
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockDockerAPI) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	args := m.Called(ctx, config, hostConfig, networkingConfig, platform, containerName)
	return args.Get(0).(container.CreateResponse), args.Error(1)
}

func (m *MockDockerAPI) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	args := m.Called(ctx, containerID, options)
	return args.Error(0)
}

func (m *MockDockerAPI) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, containerID, options)
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockDockerAPI) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	args := m.Called(ctx, containerID, condition)
	return args.Get(0).(<-chan container.WaitResponse), args.Get(1).(<-chan error)
}

func (m *MockDockerAPI) ContainerKill(ctx context.Context, containerID, signal string) error {
	args := m.Called(ctx, containerID, signal)
	return args.Error(0)
}

func (m *MockDockerAPI) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	args := m.Called(ctx, containerID, options)
	return args.Error(0)
}

func waitChannels(status int64) (<-chan container.WaitResponse, <-chan error) {
	waitCh := make(chan container.WaitResponse, 1)
	waitCh <- container.WaitResponse{StatusCode: status}
	return waitCh, make(chan error)
}

func multiplexed(stdout, stderr string) io.ReadCloser {
	var buf bytes.Buffer
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout))
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr))
	return io.NopCloser(&buf)
}

func TestDockerSpawner_Run(t *testing.T) {
	api := &MockDockerAPI{}
	waitCh, errCh := waitChannels(2)

	api.On("ContainerCreate", mock.Anything,
		mock.MatchedBy(func(cfg *container.Config) bool {
			return cfg.Image == "customer:latest" &&
				cfg.WorkingDir == "/opt/braket/code/customer_code/extracted" &&
				len(cfg.Cmd) == 3 && cfg.Cmd[0] == "python" &&
				len(cfg.Env) == 2 && cfg.Env[0] == "A=1" && cfg.Env[1] == "PYTHONPATH=/x"
		}),
		mock.MatchedBy(func(hc *container.HostConfig) bool {
			return len(hc.Mounts) == 2 &&
				hc.Mounts[0].Type == mount.TypeBind &&
				hc.Mounts[0].Source == "/opt/braket/code/customer_code/extracted" &&
				hc.Mounts[0].Target == hc.Mounts[0].Source &&
				hc.Mounts[1].Source == "/tmp/control"
		}),
		mock.Anything, mock.Anything, "").
		Return(container.CreateResponse{ID: "abc123"}, nil)
	api.On("ContainerWait", mock.Anything, "abc123", container.WaitConditionNextExit).Return(waitCh, errCh)
	api.On("ContainerStart", mock.Anything, "abc123", mock.Anything).Return(nil)
	api.On("ContainerLogs", mock.Anything, "abc123", mock.Anything).Return(multiplexed("out", "err"), nil)
	api.On("ContainerRemove", mock.Anything, "abc123", container.RemoveOptions{Force: true}).Return(nil)

	var stdout, stderr bytes.Buffer
	spawner := NewDockerSpawner(api, "customer:latest")
	code, err := spawner.Run(context.Background(), runtime.SpawnOptions{
		Command: []string{"python", "-m", "pkg.mod"},
		Dir:     "/opt/braket/code/customer_code/extracted",
		Mounts:  []string{"/tmp/control", "/opt/braket/code/customer_code/extracted"},
		Env:     map[string]string{"PYTHONPATH": "/x", "A": "1"},
		Stdout:  &stdout,
		Stderr:  &stderr,
	})

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if code != 2 {
		t.Errorf("Expected exit code 2, got %d", code)
	}
	if stdout.String() != "out" || stderr.String() != "err" {
		t.Errorf("Expected demultiplexed output, got stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
	api.AssertExpectations(t)
}

func TestDockerSpawner_PullsWhenRequested(t *testing.T) {
	api := &MockDockerAPI{}
	waitCh, errCh := waitChannels(0)

	api.On("ImagePull", mock.Anything, "customer:latest", mock.Anything).Return(io.NopCloser(bytes.NewReader(nil)), nil)
	api.On("ContainerCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, "").
		Return(container.CreateResponse{ID: "abc123"}, nil)
	api.On("ContainerWait", mock.Anything, "abc123", mock.Anything).Return(waitCh, errCh)
	api.On("ContainerStart", mock.Anything, "abc123", mock.Anything).Return(nil)
	api.On("ContainerLogs", mock.Anything, "abc123", mock.Anything).Return(multiplexed("", ""), nil)
	api.On("ContainerRemove", mock.Anything, "abc123", mock.Anything).Return(nil)

	code, err := NewDockerSpawner(api, "customer:latest", WithPull()).Run(context.Background(), runtime.SpawnOptions{
		Command: []string{"python"},
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if code != 0 {
		t.Errorf("Expected exit code 0, got %d", code)
	}
	api.AssertExpectations(t)
}

func TestDockerSpawner_Failures(t *testing.T) {
	tests := []struct {
		name          string
		pull          bool
		setupMock     func(*MockDockerAPI)
		errorContains string
	}{
		{
			name: "Create fails",
			setupMock: func(api *MockDockerAPI) {
				api.On("ContainerCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, "").
					Return(container.CreateResponse{}, errors.New("no such image"))
			},
			errorContains: "failed to create container",
		},
		{
			name: "Start fails and container is removed",
			setupMock: func(api *MockDockerAPI) {
				waitCh, errCh := waitChannels(0)
				api.On("ContainerCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, "").
					Return(container.CreateResponse{ID: "abc123"}, nil)
				api.On("ContainerWait", mock.Anything, "abc123", mock.Anything).Return(waitCh, errCh)
				api.On("ContainerStart", mock.Anything, "abc123", mock.Anything).Return(errors.New("port conflict"))
				api.On("ContainerRemove", mock.Anything, "abc123", mock.Anything).Return(nil)
			},
			errorContains: "failed to start container",
		},
		{
			name: "Pull fails",
			pull: true,
			setupMock: func(api *MockDockerAPI) {
				api.On("ImagePull", mock.Anything, "customer:latest", mock.Anything).
					Return(io.NopCloser(bytes.NewReader(nil)), errors.New("denied"))
			},
			errorContains: "failed to pull image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &MockDockerAPI{}
			tt.setupMock(api)

			var opts []DockerOption
			if tt.pull {
				opts = append(opts, WithPull())
			}

			_, err := NewDockerSpawner(api, "customer:latest", opts...).Run(context.Background(), runtime.SpawnOptions{
				Command: []string{"python"},
			})
			if err == nil {
				t.Fatal("Expected error")
			}
			if !bytes.Contains([]byte(err.Error()), []byte(tt.errorContains)) {
				t.Errorf("Expected error to contain %q, got %v", tt.errorContains, err)
			}
			api.AssertExpectations(t)
		})
	}
}
