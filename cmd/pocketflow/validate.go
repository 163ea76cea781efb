package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentstation/pocketflow"
)

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Check a flow document without running it",
	Long: `Validate a flow document against the schema, check its node references
and node configs, and build the graph without running it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := commandLogger(cmd)
		if err != nil {
			return err
		}
		return validateFlow(args[0], logger, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateFlow(path string, logger pocketflow.Logger, w io.Writer) error {
	def, _, err := loadFlow(path, logger)
	if err != nil {
		return err
	}

	name := def.Name
	if name == "" {
		name = path
	}
	_, err = fmt.Fprintf(w, "%s is valid: %s with %d nodes and %d connections\n",
		name, def.FlowKind(), len(def.Nodes), len(def.Connections))
	return err
}
