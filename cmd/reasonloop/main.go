package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/pocketomega/reasonloop/internal/config"
)

const version = "0.1.0"

var (
	settingsPath string
	providerName string
	quiet        bool

	settings config.Settings
	envPath  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "reasonloop",
	Short: "Step-by-step reasoning assistant",
	Long: `reasonloop answers questions by building a list of reasoning steps one at a
time. A completeness check decides how many steps are still needed, and every
candidate step is screened for repetition before it is accepted. The answer is
written from the accepted steps.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envPath = config.LoadEnv()
		if quiet {
			log.SetOutput(io.Discard)
		}
		s, err := config.LoadSettings(settingsPath)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		settings = s
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "config", "c", "", "Settings file (default: $REASON_CONFIG or "+config.DefaultSettingsPath+")")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "", "LLM provider: openai or gemini (default: $LLM_PROVIDER or openai)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Discard log output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
