package builtin

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/agentstation/pocketflow"
	"github.com/agentstation/pocketflow/yaml"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// loggerOrNop lets builders declared without a Logger run quietly.
func loggerOrNop(logger pocketflow.Logger) pocketflow.Logger {
	if logger == nil {
		return pocketflow.NopLogger()
	}
	return logger
}

// expand replaces {{name}} placeholders in strings with params values,
// walking into maps and lists. A string that is exactly one placeholder is
// replaced by the raw value so numbers and lists keep their type. Unknown
// names are left as written.
func expand(v any, params pocketflow.Params) any {
	switch t := v.(type) {
	case string:
		if m := placeholder.FindStringSubmatch(t); m != nil && m[0] == strings.TrimSpace(t) {
			if val, ok := params[m[1]]; ok {
				return val
			}
			return t
		}
		return placeholder.ReplaceAllStringFunc(t, func(match string) string {
			name := placeholder.FindStringSubmatch(match)[1]
			if val, ok := params[name]; ok {
				return fmt.Sprint(val)
			}
			return match
		})
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = expand(item, params)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = expand(item, params)
		}
		return out
	}
	return v
}

func configString(def *yaml.NodeDefinition, key string) string {
	s, _ := def.Config[key].(string)
	return s
}

func configBool(def *yaml.NodeDefinition, key string, fallback bool) bool {
	if b, ok := def.Config[key].(bool); ok {
		return b
	}
	return fallback
}

// actionOf returns the action a node reports from Post: config.action or
// the default action.
func actionOf(def *yaml.NodeDefinition) string {
	if action := configString(def, "action"); action != "" {
		return action
	}
	return pocketflow.DefaultAction
}

// number converts any Go numeric value to float64. integral reports whether
// the value came from an integer type.
func number(v any) (f float64, integral bool, ok bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true, true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), false, true
	}
	return 0, false, false
}

// sequence converts any slice or array to []any.
func sequence(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return items, true
	}
	return nil, false
}

// objectSchema builds a JSON schema for an object config.
func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var (
	keyProperty = func(desc string) map[string]any {
		return map[string]any{"type": "string", "minLength": 1, "description": desc}
	}
	actionProperty = map[string]any{
		"type":        "string",
		"minLength":   1,
		"description": "Action returned from Post (default: \"default\")",
	}
)
