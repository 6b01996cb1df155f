package jsonpath

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// IsScript reports whether spec is a script-extraction spec (prefixed with
// '='), as opposed to a plain "a.b[3].c" path spec.
func IsScript(spec string) bool {
	return len(spec) > 0 && spec[0] == '='
}

// ExtractScript evaluates the expression following the leading '=' against
// the parsed JSON document, exposing it to the script as the variable
// "doc". This generalizes plain path extraction using the same sandboxed
// goja VM pattern the rest of this module reaches for when a fixed grammar
// isn't expressive enough; it is never invoked for plain path specs.
func ExtractScript(text, spec string) (TokenKind, string, error) {
	expr := spec[1:]

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return 0, "", newErr(FormatError, "malformed JSON: %v", err)
	}

	vm := goja.New()
	if err := vm.Set("doc", doc); err != nil {
		return 0, "", newErr(BadSpec, "bind document: %v", err)
	}

	v, err := vm.RunString(expr)
	if err != nil {
		return 0, "", newErr(BadSpec, "script error: %v", err)
	}

	return classifyGoValue(v.Export())
}

// EvaluateTransformScript evaluates expr against a transform window,
// exposing the window's numeric samples as the variable "values". The
// result is coerced to a float64, the only shape a transform output can
// take.
func EvaluateTransformScript(values []float64, expr string) (float64, error) {
	vm := goja.New()
	if err := vm.Set("values", values); err != nil {
		return 0, newErr(BadSpec, "bind values: %v", err)
	}

	v, err := vm.RunString(expr)
	if err != nil {
		return 0, newErr(BadSpec, "script error: %v", err)
	}

	switch n := v.Export().(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, newErr(FormatError, "script result is not a number: %T", n)
	}
}

func classifyGoValue(v any) (TokenKind, string, error) {
	switch t := v.(type) {
	case nil:
		return Null, "null", nil
	case bool:
		if t {
			return Boolean, "true", nil
		}
		return Boolean, "false", nil
	case string:
		return String, t, nil
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return 0, "", newErr(FormatError, "re-marshal script result: %v", err)
		}
		if _, ok := t.(map[string]any); ok {
			return Object, string(b), nil
		}
		return Array, string(b), nil
	case int64, float64, int:
		return Number, fmt.Sprintf("%v", t), nil
	default:
		return 0, "", newErr(FormatError, "unsupported script result type %T", v)
	}
}
