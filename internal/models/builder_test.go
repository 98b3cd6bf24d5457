package models

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/vivoassist/vivoassist-go/internal/index"
	"github.com/vivoassist/vivoassist-go/internal/registry"
	"github.com/vivoassist/vivoassist-go/internal/store"
)

// fakeIndex serves canned answers per manual and can fail the first n calls,
// or every call for one specific manual.
type fakeIndex struct {
	answers    map[string]index.Answer
	failFirst  int
	failWith   error
	failManual string
	calls      int
	queried    []string
}

func (f *fakeIndex) Retrieve(_ context.Context, _ string, _ int, _ string) ([]index.Fragment, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeIndex) Answer(_ context.Context, _ string, _ []*schema.Message, manual string) (index.Answer, error) {
	f.calls++
	f.queried = append(f.queried, manual)
	if f.failManual != "" && manual == f.failManual {
		return index.Answer{}, f.failWith
	}
	if f.calls <= f.failFirst {
		return index.Answer{}, f.failWith
	}
	return f.answers[manual], nil
}

func testRegistry(t *testing.T, names ...string) registry.Registry {
	t.Helper()
	reg := make(registry.Registry, len(names))
	for _, n := range names {
		stem := strings.TrimSuffix(n, ".pdf")
		reg[n] = registry.Entry{
			Identifier:   n,
			DisplayTitle: strings.ReplaceAll(stem, "_", " "),
			Tokens:       registry.Tokenize(stem),
		}
	}
	return reg
}

func openTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fastRetry keeps backoff delays negligible in tests.
var fastRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func Test_Builder_ExtractsSubjectsAndPages(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{answers: map[string]index.Answer{
		"starlink.pdf": {
			Text: "Starlink System, Starlink Flat High Performance",
			Fragments: []index.Fragment{
				{Manual: "starlink.pdf", Page: "12"},
				{Manual: "starlink.pdf", Page: "2"},
				{Manual: "other.pdf", Page: "9"},
				{Manual: "starlink.pdf", Page: ""},
			},
		},
	}}
	st := openTestStore(t)
	b, err := NewBuilder(idx, st, testRegistry(t, "starlink.pdf"), fastRetry)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	if err := b.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	got, err := st.Get(context.Background(), "starlink.pdf")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 records, got %d: %+v", len(got), got)
	}
	if got[0].Name != "Starlink System" || got[0].Inferred {
		t.Errorf("record[0]: %+v", got[0])
	}
	// Pages come only from the manual's own fragments, numerically sorted.
	if len(got[0].Pages) != 2 || got[0].Pages[0] != "2" || got[0].Pages[1] != "12" {
		t.Errorf("pages: %v", got[0].Pages)
	}
}

func Test_Builder_FilenameFallbackMarkedInferred(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{answers: map[string]index.Answer{
		"lancer_2012.pdf": {Text: index.NotFound},
	}}
	st := openTestStore(t)
	b, err := NewBuilder(idx, st, testRegistry(t, "lancer_2012.pdf"), fastRetry)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	if err := b.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	got, err := st.Get(context.Background(), "lancer_2012.pdf")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || !got[0].Inferred {
		t.Fatalf("want one inferred record, got %+v", got)
	}
	if !strings.Contains(got[0].Name, "(inferred from filename)") {
		t.Errorf("inferred name not marked: %q", got[0].Name)
	}
	if len(got[0].Pages) != 0 {
		t.Errorf("inferred record should have no pages: %v", got[0].Pages)
	}
}

func Test_Builder_SkipsCachedManuals(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{answers: map[string]index.Answer{
		"b.pdf": {Text: "Device Bravo"},
	}}
	st := openTestStore(t)
	ctx := context.Background()
	if err := st.Put(ctx, "a.pdf", []store.Record{{Name: "Device Alpha"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b, err := NewBuilder(idx, st, testRegistry(t, "a.pdf", "b.pdf"), fastRetry)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	if err := b.Build(ctx); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(idx.queried) != 1 || idx.queried[0] != "b.pdf" {
		t.Errorf("cached manual was re-queried: %v", idx.queried)
	}
}

func Test_Builder_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{
		failFirst: 2,
		failWith:  errors.New("429 too many requests"),
		answers: map[string]index.Answer{
			"a.pdf": {Text: "Device Alpha"},
		},
	}
	st := openTestStore(t)
	b, err := NewBuilder(idx, st, testRegistry(t, "a.pdf"), fastRetry)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	if err := b.Build(context.Background()); err != nil {
		t.Fatalf("Build should succeed after retries: %v", err)
	}
	if idx.calls != 3 {
		t.Errorf("want 3 attempts, got %d", idx.calls)
	}
}

func Test_Builder_PermanentErrorFailsFast(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{
		failFirst: 100,
		failWith:  errors.New("401 invalid api key"),
	}
	st := openTestStore(t)
	b, err := NewBuilder(idx, st, testRegistry(t, "a.pdf"), fastRetry)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	if err := b.Build(context.Background()); err == nil {
		t.Fatal("Build should fail on a permanent error")
	}
	if idx.calls != 1 {
		t.Errorf("permanent error must not be retried, got %d attempts", idx.calls)
	}
}

// Test_Builder_FailingManualDoesNotBlockOthers exhausts retries on one manual
// and verifies the rest of the batch is still scanned: the failure is fatal
// for that manual's cache entry only, and is surfaced in the aggregate error.
func Test_Builder_FailingManualDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{
		failManual: "aaa.pdf",
		failWith:   errors.New("401 invalid api key"),
		answers: map[string]index.Answer{
			"zzz_starlink.pdf": {Text: "Starlink System"},
		},
	}
	st := openTestStore(t)
	b, err := NewBuilder(idx, st, testRegistry(t, "aaa.pdf", "zzz_starlink.pdf"), fastRetry)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	ctx := context.Background()
	err = b.Build(ctx)
	if err == nil {
		t.Fatal("Build must report the failing manual")
	}
	if !strings.Contains(err.Error(), "aaa.pdf") {
		t.Errorf("aggregate error does not name the failed manual: %v", err)
	}

	got, err := st.Get(ctx, "zzz_starlink.pdf")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Starlink System" {
		t.Fatalf("manual after the failure was not scanned: %+v", got)
	}

	// The failed manual stays uncached so a resume retries it.
	cached, err := st.Manuals(ctx)
	if err != nil {
		t.Fatalf("Manuals: %v", err)
	}
	for _, m := range cached {
		if m == "aaa.pdf" {
			t.Error("failed manual must not be cached")
		}
	}
}

func Test_ParseSubjects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"comma list", "GMDSS System, Starlink System", []string{"GMDSS System", "Starlink System"}},
		{"bullets and labels", "- Model: Lancer Evolution\n• Inmarsat FleetBroadband", []string{"Lancer Evolution", "Inmarsat FleetBroadband"}},
		{"refusal", "Not found in the manual.", nil},
		{"deny keywords", "Table of contents, Specifications, Copyright notice", nil},
		{"short and numeric junk", "tv, 1234, pc", nil},
		{"duplicates dropped", "Starlink System; Starlink System", []string{"Starlink System"}},
		{"whitespace collapsed", "  GMDSS   System  ", []string{"GMDSS System"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseSubjects(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("subject[%d]: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func Test_Retryable(t *testing.T) {
	t.Parallel()

	retryable := []string{
		"429 too many requests",
		"rate limit exceeded",
		"request throttled",
		"503 service unavailable",
		"context deadline exceeded (timeout)",
	}
	for _, msg := range retryable {
		if !Retryable(errors.New(msg)) {
			t.Errorf("%q should be retryable", msg)
		}
	}

	permanent := []string{
		"401 unauthorized",
		"collection not found",
		"invalid request",
	}
	for _, msg := range permanent {
		if Retryable(errors.New(msg)) {
			t.Errorf("%q should be permanent", msg)
		}
	}
	if Retryable(nil) {
		t.Error("nil error is not retryable")
	}
}

func Test_SortPages_NumericAware(t *testing.T) {
	t.Parallel()

	pages := []string{"10", "2", "iv", "1", "appendix"}
	SortPages(pages)
	want := []string{"1", "2", "10", "appendix", "iv"}
	for i := range want {
		if pages[i] != want[i] {
			t.Fatalf("got %v, want %v", pages, want)
		}
	}
}

func Test_Inventory_Lines(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	if err := st.Put(ctx, "starlink.pdf", []store.Record{
		{Name: "Starlink System", Pages: []string{"2", "12"}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	inv, err := NewInventory(st, testRegistry(t, "starlink.pdf", "unscanned.pdf"))
	if err != nil {
		t.Fatalf("NewInventory: %v", err)
	}
	lines, err := inv.Lines(ctx)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}

	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "Starlink System — starlink.pdf (pages: 2, 12)") {
		t.Errorf("missing cached record line:\n%s", joined)
	}
	if !strings.Contains(joined, "unscanned.pdf (not scanned yet)") {
		t.Errorf("missing unscanned manual line:\n%s", joined)
	}
	if !strings.HasPrefix(lines[0], "Supported models") {
		t.Errorf("missing header: %q", lines[0])
	}
}
