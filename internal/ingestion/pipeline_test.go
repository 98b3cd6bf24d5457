package ingestion

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/vivoassist/vivoassist-go/internal/rag"
)

// fakeEmbedder returns a fixed-size vector per text.
type fakeEmbedder struct {
	calls int
	texts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.texts = append(f.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 0, 0}
	}
	return out, nil
}

// fakeStore records upserted documents.
type fakeStore struct {
	docs       []rag.Document
	embeddings [][]float32
}

func (f *fakeStore) Upsert(_ context.Context, docs []rag.Document, embeddings [][]float32) error {
	f.docs = append(f.docs, docs...)
	f.embeddings = append(f.embeddings, embeddings...)
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ []float32, _ int, _ string) ([]rag.Document, error) {
	return nil, nil
}

func (f *fakeStore) Delete(_ context.Context, _ []string) error { return nil }
func (f *fakeStore) Close() error                               { return nil }

func Test_ChunkText_OverlappingWindows(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 250)
	chunks := chunkText(text, 100, 20)

	// 250 chars, stride 80: windows start at 0, 80, 160.
	if len(chunks) != 3 {
		t.Fatalf("want 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks[:2] {
		if len(c) != 100 {
			t.Errorf("chunk %d length %d, want 100", i, len(c))
		}
	}
	if len(chunks[2]) != 90 {
		t.Errorf("last chunk length %d, want 90", len(chunks[2]))
	}
}

func Test_ChunkText_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()

	chunks := chunkText("short page", 100, 20)
	if len(chunks) != 1 || chunks[0] != "short page" {
		t.Fatalf("got %v", chunks)
	}
	if chunkText("   ", 100, 20) != nil {
		t.Error("blank text must yield no chunks")
	}
}

func Test_ChunkText_MultibyteRunesNeverSplit(t *testing.T) {
	t.Parallel()

	// Three bytes per rune: byte-index slicing would cut a rune at almost
	// every window boundary.
	text := strings.Repeat("功率表", 50)
	chunks := chunkText(text, 100, 20)

	if len(chunks) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
	}
	if n := utf8.RuneCountInString(chunks[0]); n != 100 {
		t.Errorf("first chunk rune count %d, want 100", n)
	}
	// 150 runes, stride 80: the second window covers runes 80..150.
	if n := utf8.RuneCountInString(chunks[1]); n != 70 {
		t.Errorf("last chunk rune count %d, want 70", n)
	}
}

func Test_ChunkPages_TagsAllLevels(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&fakeEmbedder{}, &fakeStore{}, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	pages := []Page{{Manual: "gmdss.pdf", Label: "7", Text: strings.Repeat("text ", 400)}}
	docs := p.chunkPages(pages)

	levels := map[string]int{}
	for _, d := range docs {
		if d.Manual != "gmdss.pdf" || d.Page != "7" {
			t.Fatalf("chunk missing manual/page tags: %+v", d.Metadata)
		}
		levels[d.Metadata["chunk_level"]]++
	}
	for _, lvl := range []string{"big", "mid", "small"} {
		if levels[lvl] == 0 {
			t.Errorf("no %s-level chunks produced: %v", lvl, levels)
		}
	}
	if levels["small"] <= levels["big"] {
		t.Errorf("finer level should produce more chunks: %v", levels)
	}
}

func Test_ChunkID_Deterministic(t *testing.T) {
	t.Parallel()

	a := chunkID("gmdss.pdf", "7", "big", 0)
	b := chunkID("gmdss.pdf", "7", "big", 0)
	if a != b {
		t.Error("same chunk must get the same ID")
	}
	if a == chunkID("gmdss.pdf", "7", "big", 1) ||
		a == chunkID("gmdss.pdf", "8", "big", 0) ||
		a == chunkID("gmdss.pdf", "7", "mid", 0) ||
		a == chunkID("starlink.pdf", "7", "big", 0) {
		t.Error("distinct chunks must get distinct IDs")
	}
}

func Test_NewPipeline_DefaultsAndValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewPipeline(nil, &fakeStore{}, nil); err == nil {
		t.Error("nil embedder must be rejected")
	}
	if _, err := NewPipeline(&fakeEmbedder{}, nil, nil); err == nil {
		t.Error("nil store must be rejected")
	}

	p, err := NewPipeline(&fakeEmbedder{}, &fakeStore{}, &Config{})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if p.cfg.BigSize != 1500 || p.cfg.MidSize != 800 || p.cfg.SmallSize != 300 {
		t.Errorf("chunk size defaults not applied: %+v", p.cfg)
	}
	if p.cfg.BatchSize != 32 {
		t.Errorf("batch size default not applied: %d", p.cfg.BatchSize)
	}

	// Degenerate overlap is reduced, never allowed to stall the window.
	p2, err := NewPipeline(&fakeEmbedder{}, &fakeStore{}, &Config{SmallSize: 100, SmallOverlap: 200})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if p2.levels[2].overlap >= p2.levels[2].size {
		t.Errorf("overlap not clamped: %+v", p2.levels[2])
	}
}

func Test_IngestDir_EmptyDirFails(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&fakeEmbedder{}, &fakeStore{}, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if err := p.IngestDir(context.Background(), t.TempDir(), nil); err == nil {
		t.Error("empty corpus dir must fail")
	}
}
