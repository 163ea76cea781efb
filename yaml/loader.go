package yaml

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/agentstation/pocketflow"
	"github.com/agentstation/pocketflow/middleware"
)

// ErrUnknownNodeType is returned when a definition names a type no builder
// was registered for.
var ErrUnknownNodeType = errors.New("pocketflow: unknown node type")

// NodeBuilder turns a node definition into lifecycle hooks. The loader picks
// the node constructor from the definition's mode and applies its retry
// settings.
type NodeBuilder func(def *NodeDefinition) (pocketflow.Steps, error)

// Loader loads flow definitions and creates executable flows.
type Loader struct {
	builders    map[string]NodeBuilder
	logger      pocketflow.Logger
	middlewares []middleware.Middleware
}

// NewLoader creates a new YAML flow loader with no node types registered.
func NewLoader() *Loader {
	return &Loader{
		builders: make(map[string]NodeBuilder),
	}
}

// WithLogger sets the logger handed to every node and flow the loader builds.
func (l *Loader) WithLogger(logger pocketflow.Logger) *Loader {
	l.logger = logger
	return l
}

// Use adds middleware wrapped around the hooks of every node the loader
// builds. The first middleware is the outermost.
func (l *Loader) Use(middlewares ...middleware.Middleware) *Loader {
	l.middlewares = append(l.middlewares, middlewares...)
	return l
}

// RegisterNodeType registers a builder for a node type, replacing any
// previous one.
func (l *Loader) RegisterNodeType(nodeType string, builder NodeBuilder) {
	l.builders[nodeType] = builder
}

// Types returns the registered node types in sorted order.
func (l *Loader) Types() []string {
	types := make([]string, 0, len(l.builders))
	for t := range l.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// LoadFile loads a flow from a YAML file.
func (l *Loader) LoadFile(filename string) (*pocketflow.Flow, error) {
	def, err := ParseFile(filename)
	if err != nil {
		return nil, err
	}
	return l.Load(def)
}

// LoadString loads a flow from a YAML string.
func (l *Loader) LoadString(s string) (*pocketflow.Flow, error) {
	def, err := ParseString(s)
	if err != nil {
		return nil, err
	}
	return l.Load(def)
}

// Load creates a flow from a parsed definition.
func (l *Loader) Load(def *FlowDefinition) (*pocketflow.Flow, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	b := pocketflow.NewBuilder()
	for i := range def.Nodes {
		node, err := l.buildNode(&def.Nodes[i])
		if err != nil {
			return nil, fmt.Errorf("create node %s: %w", def.Nodes[i].Name, err)
		}
		b.Add(node)
	}
	for _, conn := range def.Connections {
		b.Connect(conn.From, conn.Action, conn.To)
	}
	start, err := b.Start(def.Start).Root()
	if err != nil {
		return nil, err
	}

	opts := l.flowOptions(def)
	var flow *pocketflow.Flow
	switch def.FlowKind() {
	case KindBatchFlow:
		flow = pocketflow.NewBatchFlow(start, batchPrep(def), opts...)
	case KindParallelBatchFlow:
		flow = pocketflow.NewParallelBatchFlow(start, batchPrep(def), opts...)
	default:
		flow = pocketflow.NewFlow(start, opts...)
	}
	flow.SetParams(pocketflow.Params(maps.Clone(def.Params)))
	return flow, nil
}

func (l *Loader) buildNode(def *NodeDefinition) (pocketflow.Node, error) {
	builder, ok := l.builders[def.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, def.Type)
	}

	steps, err := builder(def)
	if err != nil {
		return nil, err
	}

	timeout, err := def.TimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("parse timeout: %w", err)
	}
	steps = middleware.Timeout(timeout)(def.Name, steps)
	if len(l.middlewares) > 0 {
		steps = middleware.Chain(l.middlewares...)(def.Name, steps)
	}

	var opts []pocketflow.Option
	if l.logger != nil {
		opts = append(opts, pocketflow.WithLogger(l.logger))
	}
	if def.Retry != nil {
		wait, err := def.Retry.WaitDuration()
		if err != nil {
			return nil, fmt.Errorf("parse retry wait: %w", err)
		}
		opts = append(opts, pocketflow.WithRetry(def.Retry.MaxAttempts, wait))
	}

	switch def.Mode {
	case ModeBatch:
		return pocketflow.NewBatchNode(def.Name, steps, opts...), nil
	case ModeParallel:
		return pocketflow.NewParallelBatchNode(def.Name, steps, opts...), nil
	default:
		return pocketflow.NewNode(def.Name, steps, opts...), nil
	}
}

func (l *Loader) flowOptions(def *FlowDefinition) []pocketflow.Option {
	var opts []pocketflow.Option
	if def.Name != "" {
		opts = append(opts, pocketflow.WithName(def.Name))
	}
	if l.logger != nil {
		opts = append(opts, pocketflow.WithLogger(l.logger))
	}
	if def.SkipKeys != nil {
		opts = append(opts, pocketflow.WithSkipKeys(*def.SkipKeys...))
	}
	if def.AggregateAction != "" {
		opts = append(opts, pocketflow.WithAggregateAction(def.AggregateAction))
	}
	return opts
}

// batchPrep returns the parameter sets of a batch definition: the literal
// batches, or the list stored under batches_from when the flow runs.
func batchPrep(def *FlowDefinition) pocketflow.BatchPrepFunc {
	if def.BatchesFrom != "" {
		key := def.BatchesFrom
		return func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) ([]pocketflow.Params, error) {
			return paramsFrom(shared[key], key)
		}
	}

	batches := make([]pocketflow.Params, len(def.Batches))
	for i, b := range def.Batches {
		batches[i] = pocketflow.Params(b)
	}
	return func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) ([]pocketflow.Params, error) {
		out := make([]pocketflow.Params, len(batches))
		for i, b := range batches {
			out[i] = maps.Clone(b)
		}
		return out, nil
	}
}

func paramsFrom(v any, key string) ([]pocketflow.Params, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []pocketflow.Params:
		return list, nil
	case []map[string]any:
		out := make([]pocketflow.Params, len(list))
		for i, m := range list {
			out[i] = pocketflow.Params(m)
		}
		return out, nil
	case []any:
		out := make([]pocketflow.Params, len(list))
		for i, item := range list {
			switch m := item.(type) {
			case map[string]any:
				out[i] = pocketflow.Params(m)
			case pocketflow.Params:
				out[i] = m
			default:
				return nil, fmt.Errorf("batches_from %q: item %d is %T, want a map", key, i, item)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("batches_from %q: %T is not a list of maps", key, v)
}
