// Package cli implements the orchestrator command-line tree, grounded on
// AbdelazizMoustafa10m-Raven's internal/cli (cobra command structure,
// persistent flags, charmbracelet/log setup).
package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/anthropics/agent-orchestrator/internal/logging"
)

var (
	flagVerbose bool
	flagQuiet   bool
	flagDir     string
	flagNoColor bool
	flagJSONLog bool
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Multi-agent workflow orchestrator",
	Long: `orchestrator drives a project through planning, dual-reviewer
validation, task-by-task implementation, verification, and quality/security
gates, coordinating Claude/Cursor/Gemini CLI agents as subprocesses.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("verbose") && os.Getenv("ORCHESTRATOR_VERBOSE") != "" {
			flagVerbose = true
		}
		if !cmd.Flags().Changed("quiet") && os.Getenv("ORCHESTRATOR_QUIET") != "" {
			flagQuiet = true
		}
		if !cmd.Flags().Changed("no-color") && (os.Getenv("NO_COLOR") != "" || os.Getenv("ORCHESTRATOR_NO_COLOR") != "") {
			flagNoColor = true
		}

		logging.Setup(flagVerbose, flagQuiet, flagJSONLog)

		if flagNoColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}

		if flagDir != "" {
			if err := os.Chdir(flagDir); err != nil {
				return fmt.Errorf("changing directory to %s: %w", flagDir, err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (debug) output (env: ORCHESTRATOR_VERBOSE)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress all output except errors (env: ORCHESTRATOR_QUIET)")
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "Override working directory (the project root)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output (env: ORCHESTRATOR_NO_COLOR, NO_COLOR)")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "log-json", false, "Emit NDJSON logs instead of human-readable text")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
