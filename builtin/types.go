package builtin

// NodeMetadata describes a node type.
type NodeMetadata struct {
	Type         string         `json:"type" yaml:"type"`
	Category     string         `json:"category" yaml:"category"`
	Description  string         `json:"description" yaml:"description"`
	ConfigSchema map[string]any `json:"configSchema" yaml:"configSchema"`
	Examples     []Example      `json:"examples,omitempty" yaml:"examples,omitempty"`
	Since        string         `json:"since,omitempty" yaml:"since,omitempty"`
}

// Example shows how to use a node.
type Example struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Config      map[string]any `json:"config" yaml:"config"`
	Shared      map[string]any `json:"shared,omitempty" yaml:"shared,omitempty"`
	Result      map[string]any `json:"result,omitempty" yaml:"result,omitempty"`
}
