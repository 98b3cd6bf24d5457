package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vivoassist/vivoassist-go/internal/config"
	"github.com/vivoassist/vivoassist-go/internal/logging"
	"github.com/vivoassist/vivoassist-go/internal/registry"
)

// NewAskCmd constructs the `vivoassist ask` command, which answers a single
// question and exits. Scope resolution works as in the interactive session,
// but nothing persists between invocations.
func NewAskCmd() *cobra.Command {
	var manual string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question about the manuals",
		Long: `Answer one question against the ingested manual corpus and exit.

The manual scope is resolved from the question itself; pass --manual to pin
it explicitly instead.

Examples:
  vivoassist ask "how do I run a GMDSS distress test?"
  vivoassist ask --manual starlink "how do I align the antenna?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			settings := config.FromEnv()

			reg, err := registry.Build(settings.DataDir)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			if len(reg) == 0 {
				return fmt.Errorf("ask: no PDF manuals found in %s — add manuals and run 'vivoassist ingest'", settings.DataDir)
			}

			idx, vstore, _, err := buildIndex(ctx, settings)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer vstore.Close()

			inv, modelsStore, err := buildInventory(reg, settings)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = modelsStore.Close() }()

			engine, _, err := newEngine(reg, idx, inv, settings)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if manual != "" {
				lines, err := engine.Dispatch(ctx, "use "+manual)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				for _, l := range lines {
					fmt.Println(l)
				}
			}

			lines, err := engine.Dispatch(ctx, args[0])
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			for _, l := range lines {
				fmt.Println(l)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&manual, "manual", "m", "", "Pin the answer to one manual (name or filename)")

	return cmd
}
