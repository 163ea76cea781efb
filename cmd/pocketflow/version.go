package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Example: `  pocketflow version
  pocketflow version --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeVersion(cmd.OutOrStdout(), output)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func writeVersion(w io.Writer, format string) error {
	info := map[string]string{
		"version":   version,
		"commit":    commit,
		"buildDate": buildDate,
		"goVersion": goVersion,
	}

	switch format {
	case jsonFormat:
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal version info: %w", err)
		}
		fmt.Fprintln(w, string(data))

	case yamlFormat:
		data, err := yaml.Marshal(info)
		if err != nil {
			return fmt.Errorf("failed to marshal version info: %w", err)
		}
		fmt.Fprint(w, string(data))

	default: // text
		fmt.Fprintf(w, "pocketflow version %s\n", version)
		if version != "dev" {
			fmt.Fprintf(w, "  commit:     %s\n", commit)
			fmt.Fprintf(w, "  built:      %s\n", buildDate)
			fmt.Fprintf(w, "  go version: %s\n", goVersion)
		}
	}
	return nil
}
