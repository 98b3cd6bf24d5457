package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vivoassist/vivoassist-go/internal/config"
	"github.com/vivoassist/vivoassist-go/internal/logging"
	"github.com/vivoassist/vivoassist-go/internal/models"
	"github.com/vivoassist/vivoassist-go/internal/registry"
)

// NewModelsCmd constructs the `vivoassist models` command, which scans each
// manual for the models and systems it covers and prints the inventory.
func NewModelsCmd() *cobra.Command {
	var listOnly bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Scan the manuals for covered models and print the inventory",
		Long: `Ask the index which models and systems each manual covers and cache the
results in a local SQLite database.

Scanning is resume-safe: manuals that are already cached are skipped, so a
failed run picks up where it left off. Use --list to print the cached
inventory without scanning.

Examples:
  vivoassist models
  vivoassist models --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			settings := config.FromEnv()

			reg, err := registry.Build(settings.DataDir)
			if err != nil {
				return fmt.Errorf("models: %w", err)
			}

			st, err := openModelsStore(settings)
			if err != nil {
				return fmt.Errorf("models: %w", err)
			}
			defer func() { _ = st.Close() }()

			if !listOnly {
				idx, vstore, _, err := buildIndex(ctx, settings)
				if err != nil {
					return fmt.Errorf("models: %w", err)
				}
				defer vstore.Close()

				builder, err := models.NewBuilder(idx, st, reg, models.RetryPolicy{
					MaxAttempts: settings.ModelsMaxAttempts,
					BaseDelay:   settings.ModelsBaseDelay,
					MaxDelay:    settings.ModelsMaxDelay,
				})
				if err != nil {
					return fmt.Errorf("models: %w", err)
				}
				if err := builder.Build(ctx); err != nil {
					return fmt.Errorf("models: %w", err)
				}
			}

			inv, err := models.NewInventory(st, reg)
			if err != nil {
				return fmt.Errorf("models: %w", err)
			}
			lines, err := inv.Lines(ctx)
			if err != nil {
				return fmt.Errorf("models: %w", err)
			}
			for _, l := range lines {
				fmt.Println(l)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&listOnly, "list", false, "Print the cached inventory without scanning")

	return cmd
}
