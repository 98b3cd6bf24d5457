package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vivoassist/vivoassist-go/internal/config"
	"github.com/vivoassist/vivoassist-go/internal/embedder"
	"github.com/vivoassist/vivoassist-go/internal/ingestion"
	"github.com/vivoassist/vivoassist-go/internal/logging"
)

// NewIngestCmd constructs the `vivoassist ingest` command, which extracts,
// chunks, embeds, and indexes every PDF manual in the corpus directory.
func NewIngestCmd() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index the PDF manuals into the vector store",
		Long: `Extract text from every PDF in the corpus directory, chunk it at three
granularities, embed the chunks, and upsert them into the Qdrant vector store.

Every chunk is tagged with its source manual and page so answers can be
scoped and cited.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: vivoassist-manuals)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  CORPUS_DATA_DIR      Manual corpus directory (default: ./data)
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (model, dimensions, host)

Examples:
  vivoassist ingest
  vivoassist ingest --rebuild
  CORPUS_DATA_DIR=/srv/manuals vivoassist ingest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)
			settings := config.FromEnv()

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised", slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))))

			vstore, err := openVectorStore(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			if rebuild {
				log.Info("rebuild requested, dropping collection")
				if err := vstore.Drop(ctx); err != nil {
					vstore.Close()
					return fmt.Errorf("ingest: drop collection: %w", err)
				}
				vstore.Close()
				// Reopen so the collection and its payload index are recreated.
				vstore, err = openVectorStore(ctx)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
			}
			defer vstore.Close()

			pipeline, err := ingestion.NewPipeline(emb, vstore, &ingestion.Config{
				BigSize:      settings.BigChunkSize,
				BigOverlap:   settings.BigChunkOverlap,
				MidSize:      settings.MidChunkSize,
				MidOverlap:   settings.MidChunkOverlap,
				SmallSize:    settings.SmallChunkSize,
				SmallOverlap: settings.SmallChunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion", slog.String("data_dir", settings.DataDir))

			if err := pipeline.IngestDir(ctx, settings.DataDir, func(msg string) {
				log.Info(msg)
			}); err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Drop and recreate the collection before ingesting")

	return cmd
}
