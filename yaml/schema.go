// Package yaml provides YAML-based flow definition support for pocketflow.
package yaml

import (
	"errors"
	"fmt"
	"time"
)

// Flow kinds.
const (
	KindFlow              = "flow"
	KindBatchFlow         = "batch_flow"
	KindParallelBatchFlow = "parallel_batch_flow"
)

// Node execution modes.
const (
	ModeSingle   = "single"
	ModeBatch    = "batch"
	ModeParallel = "parallel"
)

// ErrInvalidDefinition is returned when a document fails schema or reference
// validation.
var ErrInvalidDefinition = errors.New("pocketflow: invalid flow definition")

// FlowDefinition represents a complete flow defined in YAML.
type FlowDefinition struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Kind        string           `yaml:"kind,omitempty" json:"kind,omitempty"`
	Params      map[string]any   `yaml:"params,omitempty" json:"params,omitempty"`
	Batches     []map[string]any `yaml:"batches,omitempty" json:"batches,omitempty"`
	BatchesFrom string           `yaml:"batches_from,omitempty" json:"batches_from,omitempty"`

	// SkipKeys is nil when the document does not set skip_keys, which keeps
	// the default merge policy.
	SkipKeys        *[]string `yaml:"skip_keys,omitempty" json:"skip_keys,omitempty"`
	AggregateAction string    `yaml:"aggregate_action,omitempty" json:"aggregate_action,omitempty"`

	Start       string           `yaml:"start" json:"start"`
	Nodes       []NodeDefinition `yaml:"nodes" json:"nodes"`
	Connections []Connection     `yaml:"connections,omitempty" json:"connections,omitempty"`
}

// NodeDefinition represents a node in YAML format.
type NodeDefinition struct {
	Name        string         `yaml:"name" json:"name"`
	Type        string         `yaml:"type" json:"type"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Mode        string         `yaml:"mode,omitempty" json:"mode,omitempty"`
	Retry       *RetryConfig   `yaml:"retry,omitempty" json:"retry,omitempty"`
	Timeout     string         `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Config      map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// Connection represents an action edge between nodes.
type Connection struct {
	From   string `yaml:"from" json:"from"`
	To     string `yaml:"to" json:"to"`
	Action string `yaml:"action,omitempty" json:"action,omitempty"`
}

// RetryConfig represents retry configuration in YAML.
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts" json:"max_attempts"`
	Wait        string `yaml:"wait,omitempty" json:"wait,omitempty"`
}

// FlowKind returns the declared kind, defaulting to KindFlow.
func (fd *FlowDefinition) FlowKind() string {
	if fd.Kind == "" {
		return KindFlow
	}
	return fd.Kind
}

// Validate checks the references between nodes, connections and the start
// node. Shape checks are done by the schema in Parse.
func (fd *FlowDefinition) Validate() error {
	if fd.Start == "" {
		return fmt.Errorf("%w: start node is required", ErrInvalidDefinition)
	}
	if len(fd.Nodes) == 0 {
		return fmt.Errorf("%w: at least one node is required", ErrInvalidDefinition)
	}

	switch fd.FlowKind() {
	case KindFlow:
		if len(fd.Batches) > 0 || fd.BatchesFrom != "" {
			return fmt.Errorf("%w: batches require kind %s or %s", ErrInvalidDefinition, KindBatchFlow, KindParallelBatchFlow)
		}
	case KindBatchFlow, KindParallelBatchFlow:
		if len(fd.Batches) > 0 && fd.BatchesFrom != "" {
			return fmt.Errorf("%w: batches and batches_from are exclusive", ErrInvalidDefinition)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDefinition, fd.Kind)
	}

	nodes := make(map[string]bool, len(fd.Nodes))
	for _, node := range fd.Nodes {
		if node.Name == "" {
			return fmt.Errorf("%w: node name is required", ErrInvalidDefinition)
		}
		if nodes[node.Name] {
			return fmt.Errorf("%w: duplicate node %s", ErrInvalidDefinition, node.Name)
		}
		nodes[node.Name] = true

		if err := node.Validate(); err != nil {
			return fmt.Errorf("%w: node %s: %w", ErrInvalidDefinition, node.Name, err)
		}
	}

	if !nodes[fd.Start] {
		return fmt.Errorf("%w: start node %s not found", ErrInvalidDefinition, fd.Start)
	}

	for _, conn := range fd.Connections {
		if !nodes[conn.From] {
			return fmt.Errorf("%w: connection from node %s not found", ErrInvalidDefinition, conn.From)
		}
		if !nodes[conn.To] {
			return fmt.Errorf("%w: connection to node %s not found", ErrInvalidDefinition, conn.To)
		}
	}

	return nil
}

// Validate checks if the node definition is valid.
func (nd *NodeDefinition) Validate() error {
	if nd.Type == "" {
		return errors.New("node type is required")
	}

	switch nd.Mode {
	case "", ModeSingle, ModeBatch, ModeParallel:
	default:
		return fmt.Errorf("unknown mode %q", nd.Mode)
	}

	if nd.Retry != nil {
		if err := nd.Retry.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
	}
	if _, err := nd.TimeoutDuration(); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}

// TimeoutDuration returns the per-attempt Exec timeout. An empty timeout is
// 0, meaning none.
func (nd *NodeDefinition) TimeoutDuration() (time.Duration, error) {
	return parseDuration(nd.Timeout)
}

// Validate checks if the retry config is valid.
func (rc *RetryConfig) Validate() error {
	if rc.MaxAttempts <= 0 {
		return errors.New("max_attempts must be positive")
	}
	if _, err := rc.WaitDuration(); err != nil {
		return fmt.Errorf("invalid wait: %w", err)
	}
	return nil
}

// WaitDuration returns the parsed wait between attempts. An empty wait is 0.
func (rc *RetryConfig) WaitDuration() (time.Duration, error) {
	return parseDuration(rc.Wait)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("duration cannot be negative")
	}
	return d, nil
}
