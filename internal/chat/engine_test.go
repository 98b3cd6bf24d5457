package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/vivoassist/vivoassist-go/internal/guard"
	"github.com/vivoassist/vivoassist-go/internal/index"
	"github.com/vivoassist/vivoassist-go/internal/matcher"
	"github.com/vivoassist/vivoassist-go/internal/registry"
	"github.com/vivoassist/vivoassist-go/internal/scope"
	"github.com/vivoassist/vivoassist-go/internal/session"
)

// fakeIndex answers every question with a fixed text and fragments tagged
// with the scope it was asked in (or overridden via fragments).
type fakeIndex struct {
	text      string
	fragments []index.Fragment // when set, returned verbatim
	calls     int
	scopes    []string
	histories [][]*schema.Message
}

func (f *fakeIndex) Retrieve(_ context.Context, _ string, _ int, _ string) ([]index.Fragment, error) {
	return nil, nil
}

func (f *fakeIndex) Answer(_ context.Context, _ string, history []*schema.Message, manual string) (index.Answer, error) {
	f.calls++
	f.scopes = append(f.scopes, manual)
	f.histories = append(f.histories, append([]*schema.Message(nil), history...))

	text := f.text
	if text == "" {
		text = "an answer"
	}
	frags := f.fragments
	if frags == nil && manual != "" {
		frags = []index.Fragment{{Manual: manual, Page: "3", Text: "excerpt"}}
	}
	return index.Answer{Text: text, Fragments: frags}, nil
}

// fakeInventory serves fixed inventory lines and counts reads.
type fakeInventory struct {
	lines []string
	reads int
}

func (f *fakeInventory) Lines(_ context.Context) ([]string, error) {
	f.reads++
	if f.lines == nil {
		return []string{"Supported models and systems:", "- Device"}, nil
	}
	return f.lines, nil
}

func newTestEngine(t *testing.T, idx index.Client) (*Engine, *fakeInventory) {
	t.Helper()

	reg := registry.Registry{
		"gmdss.pdf":    {Identifier: "gmdss.pdf", DisplayTitle: "gmdss", Tokens: registry.Tokenize("gmdss")},
		"starlink.pdf": {Identifier: "starlink.pdf", DisplayTitle: "starlink", Tokens: registry.Tokenize("starlink")},
	}
	m := matcher.New(reg, matcher.Config{})
	sessions, err := session.NewCache(idx, session.Config{})
	if err != nil {
		t.Fatalf("session.NewCache: %v", err)
	}
	inv := &fakeInventory{}
	eng, err := New(Config{
		Registry:  reg,
		Scope:     scope.New(reg, m),
		Sessions:  sessions,
		Inventory: inv,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, inv
}

func TestHandleTurn_AutoScopeFiltersRetrieval(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	eng, _ := newTestEngine(t, idx)

	lines, err := eng.HandleTurn(context.Background(), "gmdss")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if len(idx.scopes) != 1 || idx.scopes[0] != "gmdss.pdf" {
		t.Fatalf("retrieval not scoped to the matched manual: %v", idx.scopes)
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "an answer") {
		t.Errorf("answer missing:\n%s", joined)
	}
	if !strings.Contains(joined, "gmdss.pdf (pages: 3)") {
		t.Errorf("sources missing:\n%s", joined)
	}
}

func TestHandleTurn_ForcedLockOverridesStrongMatch(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	eng, _ := newTestEngine(t, idx)
	ctx := context.Background()

	if _, err := eng.Dispatch(ctx, "lock gmdss"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	// "starlink" alone would auto-lock starlink.pdf when unlocked.
	if _, err := eng.HandleTurn(ctx, "starlink"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if got := idx.scopes[len(idx.scopes)-1]; got != "gmdss.pdf" {
		t.Fatalf("forced scope must override the matcher, retrieval used %q", got)
	}
}

func TestHandleTurn_GuardReplacesLeakedAnswer(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{
		text: "leaked content",
		fragments: []index.Fragment{
			{Manual: "gmdss.pdf", Page: "1"},
			{Manual: "starlink.pdf", Page: "9"},
		},
	}
	eng, _ := newTestEngine(t, idx)
	ctx := context.Background()

	if _, err := eng.Dispatch(ctx, "use gmdss"); err != nil {
		t.Fatalf("use: %v", err)
	}
	lines, err := eng.HandleTurn(ctx, "anything")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if len(lines) != 1 || lines[0] != guard.Refusal {
		t.Fatalf("violation must yield exactly the refusal, got %v", lines)
	}
	for _, l := range lines {
		if strings.Contains(l, "leaked content") || strings.Contains(l, "Sources") || strings.Contains(l, "starlink") {
			t.Fatalf("suppressed answer leaked into output: %q", l)
		}
	}
}

func TestDispatch_UnlockInvalidatesSession(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	eng, _ := newTestEngine(t, idx)
	ctx := context.Background()

	if _, err := eng.Dispatch(ctx, "lock gmdss"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := eng.HandleTurn(ctx, "first question"); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := eng.HandleTurn(ctx, "second question"); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if len(idx.histories[1]) == 0 {
		t.Fatal("second turn should carry history within the same scope")
	}

	if _, err := eng.Dispatch(ctx, "unlock"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := eng.HandleTurn(ctx, "third question"); err != nil {
		t.Fatalf("third turn: %v", err)
	}
	if got := len(idx.histories[2]); got != 0 {
		t.Fatalf("history must be empty after unlock, got %d messages", got)
	}
	if got := idx.scopes[2]; got != "" {
		t.Fatalf("retrieval must be unrestricted after unlock, got %q", got)
	}
}

func TestDispatch_UnlockIsIdempotent(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, &fakeIndex{})
	ctx := context.Background()

	first, err := eng.Dispatch(ctx, "unlock")
	if err != nil {
		t.Fatalf("first unlock: %v", err)
	}
	second, err := eng.Dispatch(ctx, "unlock")
	if err != nil {
		t.Fatalf("second unlock: %v", err)
	}
	if len(first) == 0 || len(second) == 0 {
		t.Fatal("unlock should always report its outcome")
	}
}

func TestHandleTurn_CompoundQuestionServesBothBranches(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	eng, inv := newTestEngine(t, idx)

	lines, err := eng.HandleTurn(context.Background(), "what models do you have and what is 4wd lock")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if inv.reads != 1 {
		t.Fatalf("inventory branch not taken, reads=%d", inv.reads)
	}
	if idx.calls != 1 {
		t.Fatalf("content branch not taken, calls=%d", idx.calls)
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "Supported models") || !strings.Contains(joined, "an answer") {
		t.Errorf("compound output incomplete:\n%s", joined)
	}
}

func TestHandleTurn_PureInventorySkipsRetrieval(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	eng, inv := newTestEngine(t, idx)

	if _, err := eng.HandleTurn(context.Background(), "what models do you have"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if inv.reads != 1 {
		t.Fatalf("inventory not read, reads=%d", inv.reads)
	}
	if idx.calls != 0 {
		t.Fatalf("pure inventory question must not hit the index, calls=%d", idx.calls)
	}
}

func TestHandleTurn_RefusalShowsNoSources(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{
		text:      index.NotFound,
		fragments: []index.Fragment{{Manual: "gmdss.pdf", Page: "7"}},
	}
	eng, _ := newTestEngine(t, idx)
	ctx := context.Background()

	if _, err := eng.Dispatch(ctx, "use gmdss"); err != nil {
		t.Fatalf("use: %v", err)
	}
	lines, err := eng.HandleTurn(ctx, "anything")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	for _, l := range lines {
		if strings.Contains(l, "Sources") {
			t.Fatalf("refusal must not carry source lines: %v", lines)
		}
	}
}

func TestDispatch_LockUnknownManualReportsNoMatch(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	eng, _ := newTestEngine(t, idx)

	lines, err := eng.Dispatch(context.Background(), "use zzzzzz")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "Could not match") {
		t.Fatalf("expected a no-match report, got %v", lines)
	}

	// The failed lock must not have changed scope.
	if _, err := eng.HandleTurn(context.Background(), "plain question"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if got := idx.scopes[len(idx.scopes)-1]; got != "" {
		t.Fatalf("scope changed after a failed lock: %q", got)
	}
}

func TestDispatch_ListManuals(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, &fakeIndex{})

	lines, err := eng.Dispatch(context.Background(), "list manuals")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "gmdss.pdf") || !strings.Contains(joined, "starlink.pdf") {
		t.Errorf("manual listing incomplete:\n%s", joined)
	}
}

func TestDispatch_LockWithoutTarget(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, &fakeIndex{})

	lines, err := eng.Dispatch(context.Background(), "lock")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "name a manual") {
		t.Fatalf("expected usage report, got %v", lines)
	}
}
