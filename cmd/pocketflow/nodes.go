package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	goyaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/agentstation/pocketflow/builtin"
)

// nodesCmd represents the nodes command.
var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List builtin node types",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeNodes(cmd.OutOrStdout(), output, builtin.Default(nil).Metadata())
	},
}

// nodesInfoCmd represents the nodes info command.
var nodesInfoCmd = &cobra.Command{
	Use:   "info TYPE",
	Short: "Show a node type's config schema and examples",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeNodeInfo(cmd.OutOrStdout(), builtin.Default(nil), args[0])
	},
}

func init() {
	nodesCmd.AddCommand(nodesInfoCmd)
	rootCmd.AddCommand(nodesCmd)
}

// writeNodes prints node metadata as a table grouped by category, or as JSON
// or YAML. metas must be sorted by category.
func writeNodes(w io.Writer, format string, metas []builtin.NodeMetadata) error {
	switch format {
	case jsonFormat:
		data, err := json.MarshalIndent(metas, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil

	case yamlFormat:
		summary := make([]map[string]any, len(metas))
		for i, meta := range metas {
			summary[i] = map[string]any{
				"type":        meta.Type,
				"category":    meta.Category,
				"description": meta.Description,
			}
			if meta.Since != "" {
				summary[i]["since"] = meta.Since
			}
		}
		data, err := goyaml.Marshal(summary)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(data))
		return nil
	}

	category := ""
	for _, meta := range metas {
		if meta.Category != category {
			category = meta.Category
			fmt.Fprintf(w, "\n%s:\n", strings.ToUpper(category[:1])+category[1:])
			fmt.Fprintln(w, strings.Repeat("-", len(category)+1))
		}
		fmt.Fprintf(w, "  %-12s %s\n", meta.Type, meta.Description)
	}
	fmt.Fprintf(w, "\nTotal: %d node types\n", len(metas))
	fmt.Fprintln(w, "\nUse 'pocketflow nodes info <type>' for a node's config schema and examples.")
	return nil
}

func writeNodeInfo(w io.Writer, registry *builtin.Registry, nodeType string) error {
	builder, ok := registry.Get(nodeType)
	if !ok {
		return fmt.Errorf("node type '%s' not found", nodeType)
	}
	meta := builder.Metadata()

	fmt.Fprintf(w, "Node Type: %s\n", meta.Type)
	fmt.Fprintf(w, "Category: %s\n", meta.Category)
	fmt.Fprintf(w, "Description: %s\n", meta.Description)
	if meta.Since != "" {
		fmt.Fprintf(w, "Since: %s\n", meta.Since)
	}

	if len(meta.ConfigSchema) > 0 {
		schema, err := json.MarshalIndent(meta.ConfigSchema, "  ", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\nConfiguration:\n  %s\n", schema)
	}

	if len(meta.Examples) > 0 {
		fmt.Fprintln(w, "\nExamples:")
		for i, example := range meta.Examples {
			fmt.Fprintf(w, "  %d. %s\n", i+1, example.Name)
			if example.Description != "" {
				fmt.Fprintf(w, "     %s\n", example.Description)
			}
			config, err := goyaml.Marshal(example.Config)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "     Config:")
			for _, line := range strings.Split(strings.TrimRight(string(config), "\n"), "\n") {
				fmt.Fprintf(w, "       %s\n", line)
			}
		}
	}
	return nil
}
