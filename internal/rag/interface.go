// Package rag defines the interfaces for the retrieval side of the document
// index: vector storage, document retrieval, and embedding. Concrete
// implementations (Qdrant, OpenAI/Ollama embedders) satisfy these interfaces
// so the chat layer never depends on a specific backend.
package rag

import (
	"context"
)

// Document represents one stored or retrieved chunk of manual text.
type Document struct {
	// ID is the unique identifier for this chunk.
	ID string

	// Content is the raw text content of the chunk.
	Content string

	// Manual is the identifier of the manual this chunk was extracted from
	// (the source PDF filename). Scope filtering and the post-answer guard
	// both key on this field.
	Manual string

	// Page is the page label the chunk came from. Empty when unknown.
	Page string

	// Metadata holds additional key-value pairs (chunk level, index, ...).
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval (0.0–1.0).
	// Zero value means the score was not computed.
	Score float32
}

// VectorStore is the interface for persisting and searching document
// embeddings. Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of documents with their pre-computed
	// embeddings. embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns the top-k most similar documents for the query
	// embedding. When manual is non-empty, results are restricted
	// server-side to documents belonging to that manual.
	Search(ctx context.Context, queryEmbedding []float32, topK int, manual string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the answer pipeline to fetch
// relevant manual fragments for a query, optionally restricted to one manual.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the query.
	// When manual is non-empty the search is filtered to that manual.
	Retrieve(ctx context.Context, query string, topK int, manual string) ([]Document, error)
}
