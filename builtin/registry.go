// Package builtin provides the node types available to YAML flow
// definitions.
package builtin

import (
	"errors"
	"fmt"
	"sort"

	"github.com/agentstation/pocketflow"
	"github.com/agentstation/pocketflow/yaml"
)

// ErrInvalidConfig is returned when a node's config does not match its
// type's schema.
var ErrInvalidConfig = errors.New("pocketflow: invalid node config")

// NodeBuilder creates node hooks and provides metadata.
type NodeBuilder interface {
	Metadata() NodeMetadata
	Build(def *yaml.NodeDefinition) (pocketflow.Steps, error)
}

// Registry manages all built-in nodes.
type Registry struct {
	builders map[string]NodeBuilder
}

// NewRegistry creates a new node registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]NodeBuilder),
	}
}

// Register adds a node builder.
func (r *Registry) Register(builder NodeBuilder) {
	meta := builder.Metadata()
	r.builders[meta.Type] = builder
}

// Get returns a builder by type.
func (r *Registry) Get(nodeType string) (NodeBuilder, bool) {
	builder, exists := r.builders[nodeType]
	return builder, exists
}

// All returns all registered builders.
func (r *Registry) All() map[string]NodeBuilder {
	return r.builders
}

// Metadata returns every registered node's metadata sorted by category,
// then type.
func (r *Registry) Metadata() []NodeMetadata {
	metas := make([]NodeMetadata, 0, len(r.builders))
	for _, b := range r.builders {
		metas = append(metas, b.Metadata())
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Category != metas[j].Category {
			return metas[i].Category < metas[j].Category
		}
		return metas[i].Type < metas[j].Type
	})
	return metas
}

// Default returns a registry holding every builtin node. logger receives the
// nodes' debug output; nil discards it.
func Default(logger pocketflow.Logger) *Registry {
	if logger == nil {
		logger = pocketflow.NopLogger()
	}

	registry := NewRegistry()

	// Core nodes
	registry.Register(&SetNodeBuilder{Logger: logger})
	registry.Register(&AppendNodeBuilder{Logger: logger})

	// Data nodes
	registry.Register(&JSONPathNodeBuilder{Logger: logger})
	registry.Register(&ValidateNodeBuilder{Logger: logger})
	registry.Register(&ParseJSONNodeBuilder{Logger: logger})
	registry.Register(&SumNodeBuilder{Logger: logger})

	// Script nodes
	registry.Register(&LuaNodeBuilder{Logger: logger})

	return registry
}

// RegisterAll registers all built-in nodes with a YAML loader.
func RegisterAll(loader *yaml.Loader, logger pocketflow.Logger) *Registry {
	registry := Default(logger)
	for nodeType, builder := range registry.All() {
		loader.RegisterNodeType(nodeType, createValidatingBuilder(builder))
	}
	return registry
}

// createValidatingBuilder wraps a builder with config validation.
func createValidatingBuilder(builder NodeBuilder) yaml.NodeBuilder {
	return func(def *yaml.NodeDefinition) (pocketflow.Steps, error) {
		meta := builder.Metadata()
		if err := ValidateNodeConfig(&meta, def.Config); err != nil {
			return pocketflow.Steps{}, fmt.Errorf("config validation failed for node '%s': %w", def.Name, err)
		}
		return builder.Build(def)
	}
}
