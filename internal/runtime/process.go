package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"syscall"

	"jobentry/pkg/runtime"
)

// ForwardedSignals are relayed from the orchestrator to the child's process
// group while the child runs.
var ForwardedSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// ProcessSpawner runs children as local processes in their own process group.
type ProcessSpawner struct {
	logger *slog.Logger
}

// NewProcessSpawner creates a ProcessSpawner. A nil logger uses slog.Default.
func NewProcessSpawner(logger *slog.Logger) *ProcessSpawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessSpawner{logger: logger}
}

// Run starts the child and blocks until it exits. There is no timeout: the
// child is only stopped when the orchestrator is signalled or ctx is cancelled.
func (p *ProcessSpawner) Run(ctx context.Context, opts runtime.SpawnOptions) (int, error) {
	if len(opts.Command) == 0 {
		return 0, errors.New("no command to run")
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = MergeEnv(os.Environ(), opts.Env)
	cmd.Stdin = os.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	configureProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", opts.Command[0], err)
	}
	p.logger.Debug("Started child process", "pid", cmd.Process.Pid, "command", opts.Command[0])

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, ForwardedSignals...)
	defer signal.Stop(signals)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case sig := <-signals:
				p.logger.Info("Forwarding signal to child", "signal", sig.String(), "pid", cmd.Process.Pid)
				signalProcessGroup(cmd, sig)
			case <-ctx.Done():
				killProcessGroup(cmd)
				return
			case <-done:
				return
			}
		}
	}()

	return exitStatus(cmd.Wait())
}

// MergeEnv overlays extra on base. Keys are applied in sorted order so the
// resulting environment is deterministic.
func MergeEnv(base []string, extra map[string]string) []string {
	env := make([]string, 0, len(base)+len(extra))
	env = append(env, base...)

	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, fmt.Sprintf("%s=%s", key, extra[key]))
	}
	return env
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if sig, ok := terminatingSignal(exitErr); ok {
			return -sig, nil
		}
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("failed to wait for child: %w", err)
}
