// Package registry builds the manual registry: a lookup from manual
// identifier (the source PDF filename) to its display title and the
// normalized tokens a user question can be matched against.
// The registry is built once at startup from the corpus directory and is
// immutable and safe to share across conversations afterwards.
package registry

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// stopwords are filename boilerplate terms that carry no matching signal.
// "gmdss manual 2014.pdf" should match on "gmdss", never on "manual".
var stopwords = map[string]bool{
	"pdf":     true,
	"manual":  true,
	"manuals": true,
	"owner":   true,
	"owners":  true,
	"guide":   true,
	"handbook": true,
	"user":    true,
	"users":   true,
	"edition": true,
	"ver":     true,
	"version": true,
	"rev":     true,
}

// tokenSplit splits on any run of non-alphanumeric characters.
var tokenSplit = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// minTokenLen is the shortest token kept in an entry's token set. Two-letter
// fragments ("of", "to", model-code debris) match everything and nothing.
const minTokenLen = 3

// Entry describes one manual in the corpus.
type Entry struct {
	// Identifier is the stable manual identifier: the source filename
	// (e.g. "gmdss.pdf"). It is the key used for scope locking and for
	// the retrieval filter.
	Identifier string

	// DisplayTitle is the filename stem with separators cleaned up,
	// suitable for listings and match normalization.
	DisplayTitle string

	// Tokens is the set of normalized matchable tokens derived from the
	// filename: lowercased, stopwords removed, bare 4-digit numbers
	// (edition years) removed, tokens shorter than three characters removed.
	Tokens map[string]bool
}

// Registry maps manual identifier to its entry.
type Registry map[string]Entry

// Build constructs a Registry from the PDF files in dataDir.
// It is a pure function of the directory listing: no side effects, and the
// same corpus always yields the same registry.
func Build(dataDir string) (Registry, error) {
	paths, err := filepath.Glob(filepath.Join(dataDir, "*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("registry: glob %s: %w", dataDir, err)
	}
	sort.Strings(paths)

	reg := make(Registry, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		reg[name] = Entry{
			Identifier:   name,
			DisplayTitle: cleanTitle(stem),
			Tokens:       Tokenize(stem),
		}
	}
	return reg, nil
}

// Identifiers returns the manual identifiers in sorted order for stable
// listings and deterministic iteration.
func (r Registry) Identifiers() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// cleanTitle turns a filename stem into a readable display title:
// "Telecom_System-IOM  Procedure" -> "Telecom System IOM Procedure".
func cleanTitle(stem string) string {
	s := strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	return strings.Join(strings.Fields(s), " ")
}

// Tokenize derives the matchable token set for a manual title or stem.
// Exclusions, in order: empty fragments, stopwords, bare 4-digit numbers
// (treated as edition-year noise), and tokens under minTokenLen.
func Tokenize(text string) map[string]bool {
	toks := make(map[string]bool)
	for _, p := range tokenSplit.Split(strings.ToLower(text), -1) {
		if p == "" || stopwords[p] {
			continue
		}
		if len(p) == 4 && isDigits(p) {
			continue
		}
		if len(p) < minTokenLen {
			continue
		}
		toks[p] = true
	}
	return toks
}

// isDigits reports whether s consists solely of ASCII digits.
func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
