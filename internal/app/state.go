package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	joberrors "jobentry/internal/errors"
	"jobentry/internal/supervisor"
)

const (
	StateFileName      = "jobentry_state.json"
	StateSchemaVersion = "1.0"
)

// RunState records the progress of one container run. It is rewritten after
// every stage and every supervisor transition so an operator can see how far
// a run got.
type RunState struct {
	SchemaVersion      string           `json:"schema_version"`
	RunID              string           `json:"run_id"`
	Status             supervisor.State `json:"status"`
	LastCompletedStage string           `json:"last_completed_stage,omitempty"`
	RemoteURI          string           `json:"remote_uri,omitempty"`
	EntryPoint         string           `json:"entry_point,omitempty"`
	ExitCode           *int             `json:"exit_code,omitempty"`
	ErrorKind          joberrors.Kind   `json:"error_kind,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	LastUpdatedAt      time.Time        `json:"last_updated_at"`
}

// newState creates the state for a fresh run.
func newState(runID string) *RunState {
	now := time.Now()
	return &RunState{
		SchemaVersion: StateSchemaVersion,
		RunID:         runID,
		Status:        supervisor.StateIdle,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// loadState reads a state file left by an earlier run.
// Returns nil if the file doesn't exist.
func loadState(path string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	return &state, nil
}

// saveState persists the run state to path.
func saveState(path string, state *RunState) error {
	state.LastUpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}
