package binder

import (
	"fmt"

	"jobentry/pkg/job"
)

// TryBind decides whether hp can be passed to a callable with the given
// parameters. A signature that doesn't accept the hyperparameters is not an
// error: the callable is then invoked without arguments. The result is never
// partial.
func TryBind(params []job.ParameterSpec, hp job.HyperparameterSet) (job.BindingResult, error) {
	if len(params) == 0 {
		return job.NotApplicable, nil
	}

	byName := make(map[string]job.ParameterSpec, len(params))
	acceptsAny := false
	for _, p := range params {
		if p.VarKeyword {
			acceptsAny = true
			continue
		}
		byName[p.Name] = p
	}

	for name := range hp {
		if _, ok := byName[name]; !ok && !acceptsAny {
			return job.NotApplicable, nil
		}
	}

	for name, p := range byName {
		if _, ok := hp[name]; !ok && !p.HasDefault {
			return job.NotApplicable, nil
		}
	}

	args := make(map[string]any, len(hp))
	for name, value := range hp {
		p, declared := byName[name]
		if !declared {
			args[name] = value
			continue
		}
		coerced, err := Coerce(p.Type, value)
		if err != nil {
			return job.NotApplicable, &CoercionError{Param: name, Type: p.Type, Value: value, Err: err}
		}
		args[name] = coerced
	}

	return job.BindingResult{Bound: true, Args: args}, nil
}

// CoercionError names the parameter whose value didn't fit its declared type.
type CoercionError struct {
	Param string
	Type  string
	Value string
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot convert %q to %s for parameter %q: %v", e.Value, e.Type, e.Param, e.Err)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}
