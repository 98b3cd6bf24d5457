package commands

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vivoassist/vivoassist-go/internal/config"
	"github.com/vivoassist/vivoassist-go/internal/logging"
	"github.com/vivoassist/vivoassist-go/internal/registry"
)

// NewChatCmd constructs the `vivoassist chat` command: an interactive REPL
// over the manual corpus.
func NewChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat over the manual corpus",
		Long: `Start an interactive chat session over the ingested manual corpus.

Besides free-form questions, the session understands a few commands:

  list manuals     show the registered manuals
  use <manual>     restrict answers to one manual (synonym: lock)
  unlock           release the restriction
  exit | quit      leave the session

Examples:
  vivoassist chat
  MODEL_PROVIDER=openai vivoassist chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			settings := config.FromEnv()

			reg, err := registry.Build(settings.DataDir)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			if len(reg) == 0 {
				return fmt.Errorf("chat: no PDF manuals found in %s — add manuals and run 'vivoassist ingest'", settings.DataDir)
			}

			idx, vstore, _, err := buildIndex(ctx, settings)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer vstore.Close()

			inv, modelsStore, err := buildInventory(reg, settings)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer func() { _ = modelsStore.Close() }()

			engine, _, err := newEngine(reg, idx, inv, settings)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			fmt.Printf("VivoAssist — %d manual(s) loaded. Type 'exit' to quit.\n", len(reg))

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					// EOF (ctrl-D) or read error ends the session.
					fmt.Println()
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if lower := strings.ToLower(line); lower == "exit" || lower == "quit" {
					break
				}

				lines, err := engine.Dispatch(ctx, line)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					continue
				}
				for _, l := range lines {
					fmt.Println(l)
				}
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("chat: read input: %w", err)
			}
			return nil
		},
	}
}
