package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"

	"github.com/vivoassist/vivoassist-go/internal/chat"
	"github.com/vivoassist/vivoassist-go/internal/config"
	"github.com/vivoassist/vivoassist-go/internal/embedder"
	"github.com/vivoassist/vivoassist-go/internal/index"
	"github.com/vivoassist/vivoassist-go/internal/matcher"
	"github.com/vivoassist/vivoassist-go/internal/models"
	"github.com/vivoassist/vivoassist-go/internal/provider"
	"github.com/vivoassist/vivoassist-go/internal/rag"
	"github.com/vivoassist/vivoassist-go/internal/registry"
	"github.com/vivoassist/vivoassist-go/internal/scope"
	"github.com/vivoassist/vivoassist-go/internal/session"
	"github.com/vivoassist/vivoassist-go/internal/store"
)

// defaultCollection is the Qdrant collection used when QDRANT_COLLECTION
// is not set.
const defaultCollection = "vivoassist-manuals"

// openVectorStore connects to Qdrant using QDRANT_* environment variables and
// ensures the collection exists with the embedder's vector dimensions.
func openVectorStore(ctx context.Context) (*rag.QdrantStore, error) {
	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

	vstore, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", defaultCollection),
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	return vstore, nil
}

// buildIndex assembles the retrieval-augmented index: embedder, vector store,
// retriever, and chat model. The returned close function releases the Qdrant
// connection.
func buildIndex(ctx context.Context, settings config.Settings) (*index.EinoIndex, *rag.QdrantStore, model.ToolCallingChatModel, error) {
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	vstore, err := openVectorStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	retriever, err := rag.NewRetriever(emb, vstore, settings.TopK)
	if err != nil {
		vstore.Close()
		return nil, nil, nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		vstore.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}

	idx, err := index.New(&index.Config{
		Retriever: retriever,
		ChatModel: chatModel,
		TopK:      settings.TopK,
	})
	if err != nil {
		vstore.Close()
		return nil, nil, nil, fmt.Errorf("failed to create index: %w", err)
	}

	return idx, vstore, chatModel, nil
}

// openModelsStore opens the SQLite models cache at the configured path, or
// the per-user default when unset.
func openModelsStore(settings config.Settings) (*store.SQLiteStore, error) {
	path := settings.ModelsDBPath
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve models cache path: %w", err)
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open models cache: %w", err)
	}
	return st, nil
}

// newEngine wires a fresh chat engine over shared collaborators: its own
// scope controller and session cache, the shared registry, index, and
// inventory. The controller is returned alongside so callers can observe
// scope state.
func newEngine(reg registry.Registry, idx index.Client, inv chat.Inventory, settings config.Settings) (*chat.Engine, *scope.Controller, error) {
	m := matcher.New(reg, matcher.Config{
		AutoLockThreshold: settings.AutoLockThreshold,
		SuggestThreshold:  settings.SuggestThreshold,
		Algorithm:         settings.Algorithm,
	})
	sc := scope.New(reg, m)

	sessions, err := session.NewCache(idx, session.Config{
		TTL:              settings.SessionTTL,
		MaxEntries:       settings.SessionMaxEntries,
		MaxContextTokens: settings.SessionMaxContextTokens,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	eng, err := chat.New(chat.Config{
		Registry:  reg,
		Scope:     sc,
		Sessions:  sessions,
		Inventory: inv,
		Debug:     settings.Debug,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chat engine: %w", err)
	}
	return eng, sc, nil
}

// buildInventory opens the models cache and wraps it in an inventory reader.
func buildInventory(reg registry.Registry, settings config.Settings) (*models.Inventory, *store.SQLiteStore, error) {
	st, err := openModelsStore(settings)
	if err != nil {
		return nil, nil, err
	}
	inv, err := models.NewInventory(st, reg)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("failed to create inventory: %w", err)
	}
	return inv, st, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
