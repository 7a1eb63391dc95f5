// Located in pkg/runtime/runtime.go
package runtime

import (
	"context"
	"io"
)

// SpawnOptions describes one child command. Dir and Mounts are host paths
// the child must see; container runtimes mount them at the same location.
type SpawnOptions struct {
	Command []string
	Dir     string
	Mounts  []string
	Env     map[string]string
	Stdout  io.Writer
	Stderr  io.Writer
}

// Spawner runs a child to completion. A child that ran and exited non-zero is
// reported through the exit code, not the error; the error is reserved for
// failures to start or wait. Negative codes mean the child died from a signal.
type Spawner interface {
	Run(ctx context.Context, opts SpawnOptions) (int, error)
}
