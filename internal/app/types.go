package app

import (
	"context"

	"jobentry/pkg/job"
)

// Stage represents a single stage in the job run pipeline.
// Each stage implements this interface to provide a name and execution logic.
type Stage interface {
	Name() string
	Execute(ctx context.Context, state *RunState) error
}

// jobRun carries what earlier stages produced to the later ones.
type jobRun struct {
	config     job.ExecutionConfig
	entryPoint job.EntryPoint
	localPath  string
	params     []job.ParameterSpec
	binding    job.BindingResult
	outcome    job.ExecutionOutcome
}
