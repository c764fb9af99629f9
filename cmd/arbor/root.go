package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Arbor runs declarative LLM and tool graphs",
	Long: `Arbor executes agents described in a single YAML document: state, prompts,
tools, a root graph and named subgraphs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := config.LoadEnv(envFile); err != nil {
			return err
		}
		level, _ := cmd.Flags().GetString("log-level")
		lvl, err := logging.ParseLevel(level)
		if err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")
		logger = cli.NewLogger(lvl, debug)
		return nil
	},
}

// logger is configured from the persistent flags before any command runs.
var logger = logging.NewNop()

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("agent", "a", "agent.yaml", "Path to the agent document")
	rootCmd.PersistentFlags().String("tools", "", "Process tools file (defaults to tools.yaml next to the agent)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file loaded before the agent")
	rootCmd.PersistentFlags().String("log-level", slog.LevelWarn.String(), "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("validate-state", false, "Check the final state against state.shape")
}

// engineOptions reads the shared flags. A positional argument names the
// agent when --agent is not set.
func engineOptions(cmd *cobra.Command, args []string) cli.EngineOptions {
	path, _ := cmd.Flags().GetString("agent")
	if !cmd.Flags().Changed("agent") && len(args) > 0 {
		path = args[0]
	}
	toolsPath, _ := cmd.Flags().GetString("tools")
	validate, _ := cmd.Flags().GetBool("validate-state")
	return cli.EngineOptions{
		Path:          path,
		ToolsPath:     toolsPath,
		ValidateState: validate,
	}
}
