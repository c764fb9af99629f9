package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [agent.yaml]",
	Short: "Run the agent once",
	Long: `Loads the agent, executes its root graph with the given inputs and prints the
outputs. On a terminal the result is rendered as markdown, otherwise as JSON.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := cli.RunOptions{EngineOptions: engineOptions(cmd, args)}
		opts.Inputs, _ = cmd.Flags().GetString("inputs")
		opts.Set, _ = cmd.Flags().GetStringArray("set")
		opts.TraceGraph, _ = cmd.Flags().GetString("trace-graph")
		opts.MaxSteps, _ = cmd.Flags().GetInt("max-steps")
		opts.EventsDir, _ = cmd.Flags().GetString("events-dir")

		jsonMode, _ := cmd.Flags().GetBool("json")
		opts.Pretty = !jsonMode && tui.IsTerminal(os.Stdout)

		if trace, _ := cmd.Flags().GetBool("trace"); trace {
			opts.Trace = os.Stderr
		}

		if err := cli.Execute(context.Background(), opts, logger, os.Stdout, os.Stderr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("inputs", "i", "", "Inputs as a JSON object, or @file with JSON or YAML")
	runCmd.Flags().StringArrayP("set", "s", nil, "Set a single input as key=value (repeatable)")
	runCmd.Flags().Bool("json", false, "Print the result as JSON even on a terminal")
	runCmd.Flags().Bool("trace", false, "Print every node transition to stderr")
	runCmd.Flags().String("trace-graph", "", "Write a Mermaid graph of the visited nodes to this file")
	runCmd.Flags().String("events-dir", "", "Append the masked events of the run to <dir>/<run_id>.jsonl")
	runCmd.Flags().Int("max-steps", 0, "Override the step limit of the run")
}
