package binder

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Parameter types understood by the coercion table. Anything else fails
// closed instead of guessing.
const (
	TypeString = "str"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeJSON   = "json"
)

type coercer func(value string) (any, error)

var coercers = map[string]coercer{
	"":         coerceString,
	TypeString: coerceString,
	"string":   coerceString,
	"any":      coerceString,
	TypeInt:    coerceInt,
	TypeFloat:  coerceFloat,
	TypeBool:   coerceBool,
	TypeJSON:   coerceJSON,
}

// Supported reports whether values can be coerced to typeName.
func Supported(typeName string) bool {
	_, ok := coercers[normalizeType(typeName)]
	return ok
}

// Coerce converts a stringified hyperparameter to the declared type.
func Coerce(typeName, value string) (any, error) {
	c, ok := coercers[normalizeType(typeName)]
	if !ok {
		return nil, fmt.Errorf("unsupported parameter type %q", typeName)
	}
	return c(value)
}

func normalizeType(typeName string) string {
	return strings.ToLower(strings.TrimSpace(typeName))
}

func coerceString(value string) (any, error) {
	return value, nil
}

func coerceInt(value string) (any, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func coerceFloat(value string) (any, error) {
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}

func coerceBool(value string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return nil, fmt.Errorf("invalid boolean %q", value)
	}
}

func coerceJSON(value string) (any, error) {
	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
