package binder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"jobentry/pkg/job"
)

// LoadHyperparameters reads the JSON object at path. An empty path means the
// job has no hyperparameters. Values that aren't strings keep their JSON text.
func LoadHyperparameters(path string) (job.HyperparameterSet, error) {
	if path == "" {
		return job.HyperparameterSet{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hyperparameters: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse hyperparameters %s: %w", path, err)
	}

	hp := make(job.HyperparameterSet, len(raw))
	for name, value := range raw {
		trimmed := bytes.TrimSpace(value)
		var s string
		if len(trimmed) > 0 && trimmed[0] == '"' && json.Unmarshal(trimmed, &s) == nil {
			hp[name] = s
			continue
		}
		hp[name] = string(trimmed)
	}
	return hp, nil
}
