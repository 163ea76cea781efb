package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/ohler55/ojg/jp"
	"github.com/xeipuuv/gojsonschema"

	"github.com/agentstation/pocketflow"
	"github.com/agentstation/pocketflow/builtin/script"
	"github.com/agentstation/pocketflow/yaml"
)

// SetNodeBuilder builds nodes that write fixed values into the shared
// context.
type SetNodeBuilder struct {
	Logger pocketflow.Logger
}

// Metadata returns the node metadata.
func (b *SetNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "set",
		Category:    "core",
		Description: "Writes values into the shared context, expanding {{param}} placeholders",
		ConfigSchema: objectSchema(map[string]any{
			"values": map[string]any{
				"type":        "object",
				"description": "Key/value pairs to store",
			},
			"action": actionProperty,
		}, "values"),
		Examples: []Example{
			{
				Name:        "Seed a counter",
				Description: "Store a starting value",
				Config:      map[string]any{"values": map[string]any{"current": 5}},
				Result:      map[string]any{"current": 5},
			},
			{
				Name:        "Tag with a parameter",
				Description: "Copy a flow parameter into shared",
				Config:      map[string]any{"values": map[string]any{"greeting": "hello {{user}}"}},
				Result:      map[string]any{"greeting": "hello alice"},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates set node hooks from a definition.
func (b *SetNodeBuilder) Build(def *yaml.NodeDefinition) (pocketflow.Steps, error) {
	values, ok := def.Config["values"].(map[string]any)
	if !ok {
		return pocketflow.Steps{}, fmt.Errorf("values must be a map")
	}
	action := actionOf(def)

	return pocketflow.Steps{
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, _ any) (string, error) {
			for k, v := range values {
				shared[k] = expand(v, params)
			}
			loggerOrNop(b.Logger).Debug(ctx, "set values", "node", def.Name, "keys", len(values))
			return action, nil
		},
	}, nil
}

// AppendNodeBuilder builds nodes that append to a list in the shared context.
type AppendNodeBuilder struct {
	Logger pocketflow.Logger
}

// Metadata returns the node metadata.
func (b *AppendNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "append",
		Category:    "core",
		Description: "Appends config.value (or a copy of the node params) to a list in the shared context",
		ConfigSchema: objectSchema(map[string]any{
			"output": keyProperty("Shared key holding the list"),
			"value":  map[string]any{"description": "Value to append; {{param}} placeholders are expanded"},
			"action": actionProperty,
		}, "output"),
		Examples: []Example{
			{
				Name:        "Record batch params",
				Description: "Each parallel worker appends its params; the lists are concatenated on merge",
				Config:      map[string]any{"output": "seen"},
				Result:      map[string]any{"seen": []any{map[string]any{"id": 1}}},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates append node hooks from a definition.
func (b *AppendNodeBuilder) Build(def *yaml.NodeDefinition) (pocketflow.Steps, error) {
	output := configString(def, "output")
	value, hasValue := def.Config["value"]
	action := actionOf(def)

	return pocketflow.Steps{
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, _ any) (string, error) {
			var item any = map[string]any(maps.Clone(params))
			if hasValue {
				item = expand(value, params)
			}

			switch list := shared[output].(type) {
			case nil:
				shared[output] = []any{item}
			case []any:
				shared[output] = append(list, item)
			default:
				return "", fmt.Errorf("shared[%q] is %T, not a list", output, list)
			}
			return action, nil
		},
	}, nil
}

// JSONPathNodeBuilder builds JSONPath extraction nodes.
type JSONPathNodeBuilder struct {
	Logger pocketflow.Logger
}

// Metadata returns the node metadata.
func (b *JSONPathNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "jsonpath",
		Category:    "data",
		Description: "Queries the shared context with a JSONPath expression",
		ConfigSchema: objectSchema(map[string]any{
			"path": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "JSONPath expression evaluated against the shared context; {{param}} placeholders are expanded",
			},
			"output": keyProperty("Shared key receiving the result"),
			"multiple": map[string]any{
				"type":        "boolean",
				"default":     false,
				"description": "Store all matches as a list (true) or the first match only (false)",
			},
			"default": map[string]any{
				"description": "Value stored when nothing matches",
			},
			"action": actionProperty,
		}, "path", "output"),
		Examples: []Example{
			{
				Name:        "Extract user name",
				Description: "Get a nested field",
				Config:      map[string]any{"path": "$.user.name", "output": "name"},
				Shared:      map[string]any{"user": map[string]any{"name": "Alice"}},
				Result:      map[string]any{"name": "Alice"},
			},
			{
				Name:        "Extract all prices",
				Description: "Collect a field from every list element",
				Config:      map[string]any{"path": "$.items[*].price", "output": "prices", "multiple": true},
				Shared: map[string]any{"items": []any{
					map[string]any{"price": 10.99},
					map[string]any{"price": 2.5},
				}},
				Result: map[string]any{"prices": []any{10.99, 2.5}},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates JSONPath node hooks from a definition. The query runs in
// Prep; Exec picks the result.
func (b *JSONPathNodeBuilder) Build(def *yaml.NodeDefinition) (pocketflow.Steps, error) {
	pathStr := configString(def, "path")
	output := configString(def, "output")
	multiple := configBool(def, "multiple", false)
	defaultValue, hasDefault := def.Config["default"]
	action := actionOf(def)

	// Paths without placeholders are compiled once.
	var compiled jp.Expr
	templated := strings.Contains(pathStr, "{{")
	if !templated {
		expr, err := jp.ParseString(pathStr)
		if err != nil {
			return pocketflow.Steps{}, fmt.Errorf("invalid JSONPath expression: %w", err)
		}
		compiled = expr
	}

	return pocketflow.Steps{
		Prep: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
			expr := compiled
			if templated {
				p := fmt.Sprint(expand(pathStr, params))
				parsed, err := jp.ParseString(p)
				if err != nil {
					return nil, fmt.Errorf("invalid JSONPath expression %q: %w", p, err)
				}
				expr = parsed
			}
			matches := expr.Get(map[string]any(shared))
			loggerOrNop(b.Logger).Debug(ctx, "jsonpath query", "node", def.Name, "path", expr.String(), "matches", len(matches))
			return matches, nil
		},
		Exec: func(ctx context.Context, params pocketflow.Params, prepResult any) (any, error) {
			matches, _ := prepResult.([]any)
			if len(matches) == 0 {
				if hasDefault {
					return defaultValue, nil
				}
				if multiple {
					return []any{}, nil
				}
				return nil, nil
			}
			if multiple {
				return matches, nil
			}
			return matches[0], nil
		},
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, execResult any) (string, error) {
			shared[output] = execResult
			return action, nil
		},
	}, nil
}

// ValidateNodeBuilder builds JSON Schema validation nodes.
type ValidateNodeBuilder struct {
	Logger pocketflow.Logger
}

// Metadata returns the node metadata.
func (b *ValidateNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "validate",
		Category:    "data",
		Description: "Validates a shared value against JSON Schema and routes valid/invalid",
		ConfigSchema: objectSchema(map[string]any{
			"input": keyProperty("Shared key holding the value to validate"),
			"schema": map[string]any{
				"type":        "object",
				"description": "JSON Schema to validate against",
			},
			"output": keyProperty("Shared key receiving {valid, errors}"),
		}, "input", "schema"),
		Examples: []Example{
			{
				Name:        "Validate user object",
				Description: "Route on whether required fields are present",
				Config: map[string]any{
					"input": "user",
					"schema": map[string]any{
						"type":     "object",
						"required": []any{"name", "email"},
					},
					"output": "report",
				},
				Shared: map[string]any{"user": map[string]any{"name": "Alice"}},
				Result: map[string]any{"report": map[string]any{
					"valid": false,
					"errors": []any{map[string]any{
						"field":       "(root)",
						"type":        "required",
						"description": "email is required",
					}},
				}},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates validate node hooks from a definition. Post returns "valid"
// or "invalid".
func (b *ValidateNodeBuilder) Build(def *yaml.NodeDefinition) (pocketflow.Steps, error) {
	input := configString(def, "input")
	output := configString(def, "output")

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Config["schema"]))
	if err != nil {
		return pocketflow.Steps{}, fmt.Errorf("invalid schema: %w", err)
	}

	return pocketflow.Steps{
		Prep: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
			return shared[input], nil
		},
		Exec: func(ctx context.Context, params pocketflow.Params, value any) (any, error) {
			result, err := schema.Validate(gojsonschema.NewGoLoader(value))
			if err != nil {
				return nil, fmt.Errorf("validation error: %w", err)
			}

			errs := []any{}
			for _, e := range result.Errors() {
				errs = append(errs, map[string]any{
					"field":       e.Field(),
					"type":        e.Type(),
					"description": e.Description(),
				})
			}
			return map[string]any{"valid": result.Valid(), "errors": errs}, nil
		},
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, execResult any) (string, error) {
			report, _ := execResult.(map[string]any)
			if output != "" {
				shared[output] = report
			}
			if valid, _ := report["valid"].(bool); valid {
				return "valid", nil
			}
			errs, _ := report["errors"].([]any)
			loggerOrNop(b.Logger).Debug(ctx, "validation failed", "node", def.Name, "errors", len(errs))
			return "invalid", nil
		},
	}, nil
}

// ParseJSONNodeBuilder builds nodes that decode JSON text, repairing it
// first when it is malformed.
type ParseJSONNodeBuilder struct {
	Logger pocketflow.Logger
}

// Metadata returns the node metadata.
func (b *ParseJSONNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "parse_json",
		Category:    "data",
		Description: "Decodes JSON text from the shared context, repairing malformed input",
		ConfigSchema: objectSchema(map[string]any{
			"input":  keyProperty("Shared key holding the JSON text"),
			"output": keyProperty("Shared key receiving the decoded value"),
			"action": actionProperty,
		}, "input", "output"),
		Examples: []Example{
			{
				Name:        "Repair model output",
				Description: "Trailing commas and single quotes are fixed before decoding",
				Config:      map[string]any{"input": "raw", "output": "answer"},
				Shared:      map[string]any{"raw": "{'score': 9,}"},
				Result:      map[string]any{"answer": map[string]any{"score": 9}},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates parse_json node hooks from a definition.
func (b *ParseJSONNodeBuilder) Build(def *yaml.NodeDefinition) (pocketflow.Steps, error) {
	input := configString(def, "input")
	output := configString(def, "output")
	action := actionOf(def)

	return pocketflow.Steps{
		Prep: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
			switch v := shared[input].(type) {
			case string:
				return v, nil
			case []byte:
				return string(v), nil
			case []string, []any:
				// Batch modes decode each element.
				return v, nil
			default:
				return nil, fmt.Errorf("shared[%q] is %T, not JSON text", input, v)
			}
		},
		Exec: func(ctx context.Context, params pocketflow.Params, text any) (any, error) {
			s, ok := text.(string)
			if !ok {
				return nil, fmt.Errorf("expected JSON text, got %T", text)
			}
			return decodeJSON(ctx, loggerOrNop(b.Logger), def.Name, s)
		},
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, execResult any) (string, error) {
			shared[output] = execResult
			return action, nil
		},
	}, nil
}

func decodeJSON(ctx context.Context, logger pocketflow.Logger, name, s string) (any, error) {
	var v any
	err := json.Unmarshal([]byte(s), &v)
	if err == nil {
		return v, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(s)
	if repairErr != nil {
		return nil, fmt.Errorf("failed to decode JSON and failed to repair it: decode error: %w, repair error: %v", err, repairErr)
	}
	logger.Debug(ctx, "repaired JSON", "node", name)

	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, fmt.Errorf("failed to decode repaired JSON: %w", err)
	}
	return v, nil
}

// SumNodeBuilder builds nodes that total a numeric list.
type SumNodeBuilder struct {
	Logger pocketflow.Logger
}

// Metadata returns the node metadata.
func (b *SumNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "sum",
		Category:    "data",
		Description: "Sums the numbers in a shared list, descending into nested lists and maps",
		ConfigSchema: objectSchema(map[string]any{
			"input":  keyProperty("Shared key holding the numbers"),
			"output": keyProperty("Shared key receiving the total"),
			"action": actionProperty,
		}, "input", "output"),
		Examples: []Example{
			{
				Name:        "Reduce chunk totals",
				Description: "Integer inputs give an integer total",
				Config:      map[string]any{"input": "chunk_sums", "output": "total"},
				Shared:      map[string]any{"chunk_sums": []any{45, 145, 110}},
				Result:      map[string]any{"total": 300},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates sum node hooks from a definition. In batch modes each item
// of the input is summed separately.
func (b *SumNodeBuilder) Build(def *yaml.NodeDefinition) (pocketflow.Steps, error) {
	input := configString(def, "input")
	output := configString(def, "output")
	action := actionOf(def)

	return pocketflow.Steps{
		Prep: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
			v, ok := shared[input]
			if !ok {
				return nil, fmt.Errorf("%w: %q", pocketflow.ErrKeyNotFound, input)
			}
			return v, nil
		},
		Exec: func(ctx context.Context, params pocketflow.Params, values any) (any, error) {
			return total(values)
		},
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, execResult any) (string, error) {
			shared[output] = execResult
			return action, nil
		},
	}, nil
}

// total adds every number in v. The result is an int when every number was
// an integer, a float64 otherwise.
func total(v any) (any, error) {
	var (
		sum      float64
		intSum   int
		integral = true
	)

	var walk func(v any) error
	walk = func(v any) error {
		if f, isInt, ok := number(v); ok {
			sum += f
			if isInt {
				intSum += int(f)
			} else {
				integral = false
			}
			return nil
		}
		if items, ok := sequence(v); ok {
			for _, item := range items {
				if err := walk(item); err != nil {
					return err
				}
			}
			return nil
		}
		if m, ok := v.(map[string]any); ok {
			for _, item := range m {
				if err := walk(item); err != nil {
					return err
				}
			}
			return nil
		}
		return fmt.Errorf("cannot sum %T", v)
	}

	if err := walk(v); err != nil {
		return nil, err
	}
	if integral {
		return intSum, nil
	}
	return sum, nil
}

// LuaNodeBuilder builds nodes whose Exec is a sandboxed Lua script.
type LuaNodeBuilder struct {
	Logger pocketflow.Logger
}

// Metadata returns the node metadata.
func (b *LuaNodeBuilder) Metadata() NodeMetadata {
	return NodeMetadata{
		Type:        "lua",
		Category:    "script",
		Description: "Runs a sandboxed Lua script as the node's Exec step",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"script": map[string]any{
					"type":        "string",
					"description": "Lua source; defines exec(input) or returns a value",
				},
				"file": map[string]any{
					"type":        "string",
					"description": "Path to a Lua file (alternative to inline script)",
				},
				"input":  keyProperty("Shared key passed to the script as input"),
				"output": keyProperty("Shared key receiving the script result"),
				"action": actionProperty,
			},
			"oneOf": []any{
				map[string]any{"required": []any{"script"}},
				map[string]any{"required": []any{"file"}},
			},
		},
		Examples: []Example{
			{
				Name:        "Double a number",
				Description: "exec receives shared[input]",
				Config: map[string]any{
					"script": "function exec(n) return n * 2 end",
					"input":  "current",
					"output": "current",
				},
				Shared: map[string]any{"current": 8},
				Result: map[string]any{"current": 16},
			},
		},
		Since: "1.0.0",
	}
}

// Build creates lua node hooks from a definition. The script is compiled
// once here to surface syntax errors early.
func (b *LuaNodeBuilder) Build(def *yaml.NodeDefinition) (pocketflow.Steps, error) {
	source := configString(def, "script")
	if file := configString(def, "file"); file != "" {
		// #nosec G304 - script files are user-configured
		content, err := os.ReadFile(file)
		if err != nil {
			return pocketflow.Steps{}, fmt.Errorf("failed to read script: %w", err)
		}
		source = string(content)
	}
	if err := script.Check(source); err != nil {
		return pocketflow.Steps{}, err
	}

	input := configString(def, "input")
	output := configString(def, "output")
	action := actionOf(def)

	return pocketflow.Steps{
		Prep: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
			if input == "" {
				return nil, nil
			}
			return shared[input], nil
		},
		Exec: func(ctx context.Context, params pocketflow.Params, value any) (any, error) {
			loggerOrNop(b.Logger).Debug(ctx, "running script", "node", def.Name, "attempt", pocketflow.Attempt(ctx))
			return script.Run(ctx, source, value, params)
		},
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, execResult any) (string, error) {
			if output != "" {
				shared[output] = execResult
			}
			return action, nil
		},
	}, nil
}
