package yaml

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	goyaml "github.com/goccy/go-yaml"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var documentSchema = gojsonschema.NewBytesLoader(schemaJSON)

// Schema returns the JSON schema flow documents are validated against.
func Schema() []byte {
	return schemaJSON
}

// Parse validates data against the document schema and decodes it.
func Parse(data []byte) (*FlowDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDefinition)
	}

	doc, err := goyaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	result, err := gojsonschema.Validate(documentSchema, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(msgs, "; "))
	}

	var def FlowDefinition
	if err := goyaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &def, nil
}

// ParseString parses a YAML flow definition from a string.
func ParseString(s string) (*FlowDefinition, error) {
	return Parse([]byte(s))
}

// ParseFile reads and parses a YAML flow definition from a file.
func ParseFile(filename string) (*FlowDefinition, error) {
	// #nosec G304 - flow files are user-provided
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(data)
}

// Marshal converts a flow definition to YAML format.
func Marshal(fd *FlowDefinition) ([]byte, error) {
	return goyaml.Marshal(fd)
}
