package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/vivoassist/vivoassist-go/internal/config"
	"github.com/vivoassist/vivoassist-go/internal/logging"
	"github.com/vivoassist/vivoassist-go/internal/registry"
	"github.com/vivoassist/vivoassist-go/internal/server"
	"github.com/vivoassist/vivoassist-go/internal/tracing"
)

// NewServeCmd constructs the `vivoassist serve` command, which starts the
// HTTP server exposing the chat engine.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the VivoAssist HTTP server",
		Long: `Start the VivoAssist HTTP server on localhost.

The server exposes POST /api/chat for conversation turns (each
conversation_id gets its own scope and history), GET /api/manuals for the
manual listing, plus health, readiness, and Prometheus metrics endpoints.

Examples:
  vivoassist serve
  vivoassist serve --port 9090
  MODEL_PROVIDER=azure vivoassist serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			settings := config.FromEnv()

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			reg, err := registry.Build(settings.DataDir)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if len(reg) == 0 {
				return fmt.Errorf("serve: no PDF manuals found in %s — add manuals and run 'vivoassist ingest'", settings.DataDir)
			}

			idx, vstore, chatModel, err := buildIndex(ctx, settings)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer vstore.Close()

			inv, modelsStore, err := buildInventory(reg, settings)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = modelsStore.Close() }()

			// Each conversation gets its own engine: independent scope state
			// and session cache over the shared index and registry.
			factory := func() (*server.Conversation, error) {
				eng, sc, err := newEngine(reg, idx, inv, settings)
				if err != nil {
					return nil, err
				}
				return &server.Conversation{Engine: eng, Scope: sc}, nil
			}

			providerName := getEnvOrDefault("MODEL_PROVIDER", "ollama")
			pingers := []server.Pinger{
				vstore,
				server.NewLLMPinger(chatModel, providerName),
			}

			srv, err := server.New(factory, reg, modelsStore, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("VIVOASSIST_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
