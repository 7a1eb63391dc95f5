package setup

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	goruntime "runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	joberrors "jobentry/internal/errors"
	"jobentry/internal/fetcher"
	internalruntime "jobentry/internal/runtime"
	"jobentry/internal/ui"
	"jobentry/pkg/runtime"
)

// MockSpawner is a mock implementation of the runtime.Spawner interface
type MockSpawner struct {
	mock.Mock
}

func (m *MockSpawner) Run(ctx context.Context, opts runtime.SpawnOptions) (int, error) {
	args := m.Called(ctx, opts)
	return args.Int(0), args.Error(1)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "setup.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func quietConsole() (*ui.Console, *bytes.Buffer) {
	var errOut bytes.Buffer
	return ui.NewConsoleWithWriters(&bytes.Buffer{}, &errOut), &errOut
}

func TestRunner_NoScriptConfigured(t *testing.T) {
	spawner := &MockSpawner{}
	console, _ := quietConsole()

	err := New(fetcher.NewRouter(), spawner, t.TempDir(), WithConsole(console)).Perform(context.Background(), "")

	assert.NoError(t, err)
	spawner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRunner_RunsDownloadedScript(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}

	marker := filepath.Join(t.TempDir(), "installed")
	script := writeScript(t, "#!/bin/sh\necho done > "+marker+"\n")
	workDir := filepath.Join(t.TempDir(), "additional_setup")
	console, _ := quietConsole()

	runner := New(fetcher.NewRouter(fetcher.WithPolicy(fetcher.PolicyAlways)), internalruntime.NewProcessSpawner(nil), workDir, WithConsole(console))
	err := runner.Perform(context.Background(), "file://"+script)

	require.NoError(t, err)
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "done\n", string(data))

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "download directory should be removed after the run")
}

func TestRunner_FailuresAreReported(t *testing.T) {
	t.Run("Download failure", func(t *testing.T) {
		console, errOut := quietConsole()
		spawner := &MockSpawner{}

		err := New(fetcher.NewRouter(), spawner, t.TempDir(), WithConsole(console)).
			Perform(context.Background(), "file:///does/not/exist.sh")

		require.Error(t, err)
		assert.True(t, errors.Is(err, joberrors.ErrFetchFailed))
		assert.Contains(t, errOut.String(), "Unable to install additional libraries.")
		spawner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("Script exits non-zero", func(t *testing.T) {
		console, errOut := quietConsole()
		script := writeScript(t, "exit 3\n")
		spawner := &MockSpawner{}
		spawner.On("Run", mock.Anything, mock.MatchedBy(func(opts runtime.SpawnOptions) bool {
			info, err := os.Stat(opts.Command[0])
			return len(opts.Command) == 1 && err == nil && info.Mode().Perm()&0100 != 0
		})).Return(3, nil)

		err := New(fetcher.NewRouter(), spawner, t.TempDir(), WithConsole(console)).
			Perform(context.Background(), "file://"+script)

		assert.EqualError(t, err, "setup script exited with code 3")
		assert.Contains(t, errOut.String(), "exited with code 3")
		spawner.AssertExpectations(t)
	})
}
