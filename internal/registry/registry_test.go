package registry

import (
	"os"
	"path/filepath"
	"testing"
)

// writeCorpus creates empty PDF placeholder files in a temp dir.
func writeCorpus(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	return dir
}

func Test_Build_DerivesEntries(t *testing.T) {
	t.Parallel()

	dir := writeCorpus(t, "gmdss.pdf", "Telecom_System-IOM Procedure.pdf", "notes.txt")
	reg, err := Build(dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(reg) != 2 {
		t.Fatalf("want 2 entries (non-PDF skipped), got %d", len(reg))
	}

	e, ok := reg["Telecom_System-IOM Procedure.pdf"]
	if !ok {
		t.Fatal("identifier must be the exact filename")
	}
	if e.DisplayTitle != "Telecom System IOM Procedure" {
		t.Errorf("display title: got %q", e.DisplayTitle)
	}
	if !e.Tokens["telecom"] || !e.Tokens["iom"] || !e.Tokens["procedure"] {
		t.Errorf("tokens incomplete: %v", e.Tokens)
	}
}

func Test_Build_EmptyDirYieldsEmptyRegistry(t *testing.T) {
	t.Parallel()

	reg, err := Build(t.TempDir())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(reg) != 0 {
		t.Errorf("want empty registry, got %d entries", len(reg))
	}
}

func Test_Tokenize_DropsFourDigitNumbers(t *testing.T) {
	t.Parallel()

	toks := Tokenize("manual_2014")
	if toks["2014"] {
		t.Error("bare 4-digit token must be dropped")
	}
	if len(toks) != 0 {
		// "manual" is a stopword, "2014" is noise; nothing should remain.
		t.Errorf("want no tokens, got %v", toks)
	}
}

func Test_Tokenize_Exclusions(t *testing.T) {
	t.Parallel()

	toks := Tokenize("Lancer Owners Manual ver 2 GT")
	if !toks["lancer"] {
		t.Error("content token missing")
	}
	for _, bad := range []string{"owners", "manual", "ver"} {
		if toks[bad] {
			t.Errorf("stopword %q kept", bad)
		}
	}
	if toks["2"] || toks["gt"] {
		t.Error("tokens under 3 characters must be dropped")
	}
}

func Test_Tokenize_KeepsLongNumbers(t *testing.T) {
	t.Parallel()

	// Only bare 4-digit tokens are treated as edition-year noise.
	toks := Tokenize("system 12345 x200")
	if !toks["12345"] || !toks["x200"] {
		t.Errorf("long or mixed numbers must be kept: %v", toks)
	}
}

func Test_Identifiers_Sorted(t *testing.T) {
	t.Parallel()

	dir := writeCorpus(t, "zeta.pdf", "alpha.pdf", "mid.pdf")
	reg, err := Build(dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ids := reg.Identifiers()
	want := []string{"alpha.pdf", "mid.pdf", "zeta.pdf"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("identifiers not sorted: %v", ids)
		}
	}
}
