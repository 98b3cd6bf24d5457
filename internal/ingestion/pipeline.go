// Package ingestion implements the manual ingestion pipeline. It walks the
// corpus directory, extracts text from each PDF page, produces three levels
// of overlapping chunks per manual, embeds them, and upserts the results into
// the vector store. Every chunk carries the manual identifier and page label
// that scope filtering and the post-answer guard key on.
// This pipeline is invoked by the `vivoassist ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/vivoassist/vivoassist-go/internal/rag"
)

// chunkLevel names the three chunk granularities. Big chunks carry broad
// context, small chunks carry precise passages; retrieval mixes all three.
type chunkLevel struct {
	name    string
	size    int
	overlap int
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BigSize/BigOverlap control the coarse chunk level.
	// Default 1500/150 characters.
	BigSize    int
	BigOverlap int

	// MidSize/MidOverlap control the middle chunk level.
	// Default 800/100 characters.
	MidSize    int
	MidOverlap int

	// SmallSize/SmallOverlap control the fine chunk level.
	// Default 300/50 characters.
	SmallSize    int
	SmallOverlap int

	// BatchSize is the number of chunks embedded and upserted per request.
	// Defaults to 32 if zero.
	BatchSize int
}

// Page is the text extracted from one PDF page.
type Page struct {
	// Manual is the source PDF filename.
	Manual string
	// Label is the 1-based page number as a string.
	Label string
	// Text is the extracted page text.
	Text string
}

// Pipeline orchestrates the extract → chunk → embed → upsert flow for the
// manual corpus.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// levels are the resolved chunk granularities, coarse to fine.
	levels []chunkLevel
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	applyDefault(&cfg.BigSize, 1500)
	applyDefault(&cfg.BigOverlap, 150)
	applyDefault(&cfg.MidSize, 800)
	applyDefault(&cfg.MidOverlap, 100)
	applyDefault(&cfg.SmallSize, 300)
	applyDefault(&cfg.SmallOverlap, 50)
	applyDefault(&cfg.BatchSize, 32)

	levels := []chunkLevel{
		{"big", cfg.BigSize, cfg.BigOverlap},
		{"mid", cfg.MidSize, cfg.MidOverlap},
		{"small", cfg.SmallSize, cfg.SmallOverlap},
	}
	for i := range levels {
		if levels[i].overlap >= levels[i].size {
			levels[i].overlap = levels[i].size / 10
		}
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		levels:   levels,
	}, nil
}

// applyDefault sets *v to def when it is unset.
func applyDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// IngestDir extracts, chunks, embeds, and stores every PDF in dataDir.
// Manuals are processed sequentially in sorted filename order and the first
// error aborts the run. Progress is reported via the optional callback.
func (p *Pipeline) IngestDir(ctx context.Context, dataDir string, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	paths, err := filepath.Glob(filepath.Join(dataDir, "*.pdf"))
	if err != nil {
		return fmt.Errorf("ingestion: glob %s: %w", dataDir, err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("ingestion: no PDF files in %s", dataDir)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := p.ingestManual(ctx, path, progress); err != nil {
			return err
		}
	}
	return nil
}

// ingestManual runs the full pipeline for one PDF.
func (p *Pipeline) ingestManual(ctx context.Context, path string, progress func(msg string)) error {
	manual := filepath.Base(path)
	progress(fmt.Sprintf("extracting %s", manual))

	pages, err := ExtractPages(path)
	if err != nil {
		return fmt.Errorf("ingestion: extract %s: %w", manual, err)
	}

	docs := p.chunkPages(pages)
	progress(fmt.Sprintf("chunked %s into %d chunks across %d pages", manual, len(docs), len(pages)))

	for start := 0; start < len(docs); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}
		embeddings, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("ingestion: embed %s: %w", manual, err)
		}
		if err := p.store.Upsert(ctx, batch, embeddings); err != nil {
			return fmt.Errorf("ingestion: upsert %s: %w", manual, err)
		}
	}

	progress(fmt.Sprintf("ingested %d chunks from %s", len(docs), manual))
	return nil
}

// ExtractPages extracts per-page plain text from one PDF. Pages that yield
// no text (diagrams, scanned images) are skipped.
func ExtractPages(path string) ([]Page, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	manual := filepath.Base(path)
	var pages []Page
	fonts := make(map[string]*pdf.Font)

	for i := 1; i <= reader.NumPage(); i++ {
		pg := reader.Page(i)
		if pg.V.IsNull() {
			continue
		}
		text, err := pg.GetPlainText(fonts)
		if err != nil {
			// A single malformed page must not sink the whole manual.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{
			Manual: manual,
			Label:  strconv.Itoa(i),
			Text:   text,
		})
	}
	return pages, nil
}

// chunkPages produces all three chunk levels for every page, each tagged
// with its manual, page label, and chunk level.
func (p *Pipeline) chunkPages(pages []Page) []rag.Document {
	var docs []rag.Document
	for _, page := range pages {
		for _, level := range p.levels {
			for i, text := range chunkText(page.Text, level.size, level.overlap) {
				docs = append(docs, rag.Document{
					ID:      chunkID(page.Manual, page.Label, level.name, i),
					Content: text,
					Manual:  page.Manual,
					Page:    page.Label,
					Metadata: map[string]string{
						"chunk_level": level.name,
						"chunk_index": strconv.Itoa(i),
					},
				})
			}
		}
	}
	return docs
}

// chunkText splits text into overlapping chunks of at most size runes.
// Boundaries fall between runes, so multibyte characters are never cut and
// every chunk is valid UTF-8.
func chunkText(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(runes); start += size - overlap {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// chunkID generates a deterministic ID for a chunk from its manual, page,
// level, and index, so re-ingestion overwrites instead of duplicating.
func chunkID(manual, page, level string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%s#%s#%d", manual, page, level, index)))
	return fmt.Sprintf("%x", h[:16])
}
