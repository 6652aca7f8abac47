package tools

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/planhub/planhub/internal/core"
)

// ArgType enumerates the argument types an operation schema may use.
type ArgType string

const (
	ArgString    ArgType = "string"
	ArgInt       ArgType = "integer"
	ArgStringMap ArgType = "object"
)

// Arg declares one named argument in an operation schema.
type Arg struct {
	Name        string  `json:"name"`
	Type        ArgType `json:"type"`
	Description string  `json:"description"`
	Required    bool    `json:"required"`
}

// Args holds validated, normalized arguments. Getters assume
// validation has already run; missing optional arguments yield the
// zero value or the supplied default.
type Args map[string]any

// String returns a string argument, or "" if absent.
func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

// Int returns an integer argument, or def if absent.
func (a Args) Int(name string, def int) int {
	v, ok := a[name].(int)
	if !ok {
		return def
	}
	return v
}

// StringMap returns a string-map argument, or nil if absent.
func (a Args) StringMap(name string) map[string]string {
	v, _ := a[name].(map[string]string)
	return v
}

// validateArgs checks raw named arguments against a schema and returns
// the normalized set. Unknown argument names are rejected: a caller
// that misspells an optional argument should hear about it rather than
// have it silently ignored.
func validateArgs(schema []Arg, raw map[string]any) (Args, error) {
	byName := make(map[string]Arg, len(schema))
	for _, arg := range schema {
		byName[arg.Name] = arg
	}

	for name := range raw {
		if _, ok := byName[name]; !ok {
			return nil, core.Errorf(core.KindInvalidArgument, "unknown argument %q", name)
		}
	}

	out := make(Args, len(raw))
	for _, arg := range schema {
		v, present := raw[arg.Name]
		if !present || v == nil {
			if arg.Required {
				return nil, core.Errorf(core.KindInvalidArgument, "missing required argument %q", arg.Name)
			}
			continue
		}
		normalized, err := normalize(arg, v)
		if err != nil {
			return nil, err
		}
		out[arg.Name] = normalized
	}
	return out, nil
}

func normalize(arg Arg, v any) (any, error) {
	switch arg.Type {
	case ArgString:
		s, ok := v.(string)
		if !ok {
			return nil, core.Errorf(core.KindInvalidArgument, "argument %q must be a string", arg.Name)
		}
		return s, nil

	case ArgInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			// JSON numbers arrive as float64.
			if n != math.Trunc(n) {
				return nil, core.Errorf(core.KindInvalidArgument, "argument %q must be an integer", arg.Name)
			}
			return int(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, core.Errorf(core.KindInvalidArgument, "argument %q must be an integer", arg.Name)
			}
			return int(i), nil
		default:
			return nil, core.Errorf(core.KindInvalidArgument, "argument %q must be an integer", arg.Name)
		}

	case ArgStringMap:
		switch m := v.(type) {
		case map[string]string:
			return m, nil
		case map[string]any:
			out := make(map[string]string, len(m))
			for k, raw := range m {
				s, ok := raw.(string)
				if !ok {
					return nil, core.Errorf(core.KindInvalidArgument, "argument %q must map strings to strings", arg.Name)
				}
				out[k] = s
			}
			return out, nil
		default:
			return nil, core.Errorf(core.KindInvalidArgument, "argument %q must be an object of strings", arg.Name)
		}

	default:
		return nil, fmt.Errorf("unsupported argument type %q", arg.Type)
	}
}
