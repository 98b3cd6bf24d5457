// Package commands defines all Cobra CLI commands for the vivoassist binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vivoassist/vivoassist-go/internal/audit"
	"github.com/vivoassist/vivoassist-go/internal/config"
	"github.com/vivoassist/vivoassist-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vivoassist",
		Short: "VivoAssist — a retrieval-augmented assistant for PDF equipment manuals",
		Long: `VivoAssist is a local-first AI assistant that answers questions about a
corpus of PDF equipment manuals.

It resolves which manual a question is about, restricts retrieval to that
manual when confident, and lets you pin the scope explicitly with
'use <manual>' / 'unlock'. Answers cite the manual and pages they came from.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.vivoassist/config.yaml).
See 'vivoassist --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load .env first so the config layering sees its values.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.vivoassist/config.yaml)")

	root.AddCommand(
		NewChatCmd(),
		NewAskCmd(),
		NewIngestCmd(),
		NewModelsCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
