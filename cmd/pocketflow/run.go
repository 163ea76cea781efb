package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"time"

	goyaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/agentstation/pocketflow"
	"github.com/agentstation/pocketflow/builtin"
	"github.com/agentstation/pocketflow/middleware"
	"github.com/agentstation/pocketflow/yaml"
)

// RunConfig holds configuration for the run command.
type RunConfig struct {
	FilePath   string
	SharedPath string
	Output     string
	Logger     pocketflow.Logger
	// Stats, when set, collects per-node metrics during the run.
	Stats *middleware.Stats
}

// runResult is what the run command prints.
type runResult struct {
	Flow   string                 `json:"flow" yaml:"flow"`
	Action string                 `json:"action" yaml:"action"`
	Shared pocketflow.Shared      `json:"shared" yaml:"shared"`
	Stats  []middleware.NodeStats `json:"stats,omitempty" yaml:"stats,omitempty"`
}

var (
	sharedPath string
	showStats  bool
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Run a flow document",
	Long: `Load a YAML flow document, build it with the builtin node types and run it.

The final shared context is printed when the flow finishes. An initial
shared context can be read from a YAML or JSON file with --shared.`,
	Example: `  # Run a flow
  pocketflow run flow.yaml

  # Seed the shared context and print the result as JSON
  pocketflow run flow.yaml --shared input.json --output json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := commandLogger(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		config := &RunConfig{
			FilePath:   args[0],
			SharedPath: sharedPath,
			Output:     output,
			Logger:     logger,
		}
		if showStats {
			config.Stats = middleware.NewStats()
		}
		return runFlow(ctx, config, cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().StringVar(&sharedPath, "shared", "", "YAML or JSON file holding the initial shared context")
	runCmd.Flags().BoolVar(&showStats, "stats", false, "Include per-node execution stats in the output")
	rootCmd.AddCommand(runCmd)
}

// runFlow loads and runs the flow at config.FilePath and writes the final
// shared context to w.
func runFlow(ctx context.Context, config *RunConfig, w io.Writer) error {
	logger := config.Logger
	if logger == nil {
		logger = pocketflow.NopLogger()
	}

	middlewares := []middleware.Middleware{middleware.Logging(logger)}
	if config.Stats != nil {
		middlewares = append(middlewares, middleware.Metrics(config.Stats))
	}

	def, flow, err := loadFlow(config.FilePath, logger, middlewares...)
	if err != nil {
		return err
	}

	shared := pocketflow.Shared{}
	if config.SharedPath != "" {
		shared, err = readShared(config.SharedPath)
		if err != nil {
			return err
		}
	}

	logger.Info(ctx, "running flow", "flow", def.Name, "kind", def.FlowKind(), "nodes", len(def.Nodes))
	start := time.Now()
	action, err := flow.Run(ctx, shared)
	if err != nil {
		return fmt.Errorf("flow execution failed: %w", err)
	}
	logger.Info(ctx, "flow completed", "flow", def.Name, "action", action, "duration", time.Since(start))

	result := runResult{Flow: def.Name, Action: action, Shared: shared}
	if config.Stats != nil {
		result.Stats = config.Stats.Snapshot()
	}
	return writeResult(w, config.Output, result)
}

// loadFlow parses, validates and builds the flow document at path.
func loadFlow(path string, logger pocketflow.Logger, middlewares ...middleware.Middleware) (*yaml.FlowDefinition, *pocketflow.Flow, error) {
	absPath, err := resolvePath(path)
	if err != nil {
		return nil, nil, err
	}

	def, err := yaml.ParseFile(absPath)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid flow: %w", err)
	}

	loader := yaml.NewLoader().WithLogger(logger).Use(middlewares...)
	builtin.RegisterAll(loader, logger)

	flow, err := loader.Load(def)
	if err != nil {
		return nil, nil, fmt.Errorf("load flow: %w", err)
	}
	return def, flow, nil
}

// readShared decodes a YAML or JSON mapping into a shared context.
func readShared(path string) (pocketflow.Shared, error) {
	absPath, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(absPath) // #nosec G304 - User-provided input file
	if err != nil {
		return nil, fmt.Errorf("read shared: %w", err)
	}

	shared := pocketflow.Shared{}
	if err := goyaml.Unmarshal(data, &shared); err != nil {
		return nil, fmt.Errorf("parse shared: %w", err)
	}
	return shared, nil
}

func writeResult(w io.Writer, format string, result runResult) error {
	switch format {
	case jsonFormat:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case yamlFormat:
		data, err := goyaml.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		_, err = w.Write(data)
		return err

	default: // text
		fmt.Fprintf(w, "flow %q finished with action %q\n", result.Flow, result.Action)
		keys := make([]string, 0, len(result.Shared))
		for k := range result.Shared {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, textValue(result.Shared[k]))
		}
		if len(result.Stats) > 0 {
			fmt.Fprintln(w, "stats:")
			for _, ns := range result.Stats {
				fmt.Fprintf(w, "  %-12s runs=%d exec=%d errors=%d exec_time=%v\n",
					ns.Node, ns.Runs, ns.ExecCalls, ns.Errors, ns.ExecTime)
			}
		}
		return nil
	}
}

// textValue renders scalars with fmt and everything else as compact JSON.
func textValue(v any) string {
	switch v.(type) {
	case nil, string, bool, int, int64, uint64, float64:
		return fmt.Sprint(v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
