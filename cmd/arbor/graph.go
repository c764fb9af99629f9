package main

import (
	"fmt"
	"os"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [agent.yaml]",
	Short: "Export the agent graph visualization",
	Long:  `Compiles the agent and outputs a Mermaid diagram (graph TD) of the root graph and its subgraphs.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := cli.NewEngine(engineOptions(cmd, args), logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer engine.Close()

		g := engine.Inspect()
		fmt.Print(graph.GenerateMermaid(g.Root, g.Subgraphs, nil))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
