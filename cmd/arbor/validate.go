package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [agent.yaml]",
	Short: "Check the agent document for consistency",
	Long: `Validates the document structure, compiles every graph and resolves every
tool, reporting each problem found.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(cmd, args); err != nil {
			fmt.Println("Validation failed:")
			var agg *schema.AggregateError
			if errors.As(err, &agg) {
				for _, e := range agg.Errors {
					fmt.Printf("  - %v\n", e)
				}
			} else {
				fmt.Printf("  %v\n", err)
			}
			os.Exit(1)
		}
		fmt.Println("Agent is valid! ✅")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	engine, err := cli.NewEngine(engineOptions(cmd, args), logger)
	if err != nil {
		return err
	}
	return engine.Close()
}
