package builtin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateNodeConfig validates a node configuration against its schema.
func ValidateNodeConfig(meta *NodeMetadata, config map[string]any) error {
	if len(meta.ConfigSchema) == 0 {
		return nil
	}
	if config == nil {
		// An absent config block validates as an empty object.
		config = map[string]any{}
	}

	schemaJSON, err := json.Marshal(meta.ConfigSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(configJSON),
	)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
	}
	return nil
}

// ValidateAllNodeConfigs validates configurations keyed by node type.
func ValidateAllNodeConfigs(registry *Registry, configs map[string]map[string]any) error {
	for nodeType, config := range configs {
		builder, exists := registry.Get(nodeType)
		if !exists {
			return fmt.Errorf("unknown node type: %s", nodeType)
		}

		meta := builder.Metadata()
		if err := ValidateNodeConfig(&meta, config); err != nil {
			return fmt.Errorf("node '%s': %w", nodeType, err)
		}
	}
	return nil
}
