// Package splitter detects inventory-flavored questions ("what models do you
// have") and separates them from a content sub-question joined by a
// conjunction, so the two halves can be routed independently: the inventory
// half to the static models cache, the remainder to retrieval.
package splitter

import (
	"regexp"
	"strings"
)

// intentWords signal a listing request when combined with a subject word.
var intentWords = []string{
	"list", "show", "what", "which", "available", "all", "do you have", "have you got",
}

// subjectWords are the things a listing request can be about. Common
// misspellings of "models" are tolerated so a typo still reaches the
// inventory branch instead of producing a retrieval miss.
var subjectWords = []string{
	"models", "model", "modles", "modells", "manuals", "documents", "docs", "pdfs",
}

// pagePatterns hard-exclude a question from the inventory branch. Questions
// about a specific page or passage must always fall through to content
// retrieval, even when they also contain the word "models".
var pagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bpage\s+\d+`),
	regexp.MustCompile(`\bp\.\s*\d+`),
	regexp.MustCompile(`\bwhat does\b`),
	regexp.MustCompile(`\bon page\b`),
}

// conjunctions are the split points between the inventory half and the
// content remainder. Only the first occurrence is considered.
var conjunctions = []string{" and ", " then "}

// minRemainderLen is the minimum trimmed length for the text after the
// conjunction to count as a content sub-question. Anything shorter is
// treated as trailing filler ("...and so on") and the whole question stays
// pure inventory.
const minRemainderLen = 5

// Split inspects question and returns whether it is compound, the
// inventory-flavored part, and the content remainder.
//
//	"what models do you have and what is 4wd lock"
//	  -> compound=true,  inventory="what models do you have", remainder="what is 4wd lock"
//	"list manuals"
//	  -> compound=false, inventory="list manuals", remainder=""
//	"what does page 12 say about models"
//	  -> compound=false, inventory="", remainder unchanged (content question)
func Split(question string) (compound bool, inventory, remainder string) {
	if !IsInventory(question) {
		return false, "", question
	}

	// Split at the earliest conjunction in the text, whichever word it is.
	lower := strings.ToLower(question)
	idx, conjLen := -1, 0
	for _, conj := range conjunctions {
		if i := strings.Index(lower, conj); i >= 0 && (idx < 0 || i < idx) {
			idx, conjLen = i, len(conj)
		}
	}
	if idx >= 0 {
		head := strings.TrimSpace(question[:idx])
		tail := strings.TrimSpace(question[idx+conjLen:])
		if len(tail) >= minRemainderLen {
			return true, head, tail
		}
		// Remainder too short to be a question: pure inventory.
		return false, strings.TrimSpace(question), ""
	}

	return false, strings.TrimSpace(question), ""
}

// IsInventory reports whether question asks for the list of manuals/models
// rather than manual content. Page-specific questions are never inventory.
func IsInventory(question string) bool {
	q := strings.ToLower(question)

	for _, p := range pagePatterns {
		if p.MatchString(q) {
			return false
		}
	}

	hasIntent := false
	for _, w := range intentWords {
		if strings.Contains(q, w) {
			hasIntent = true
			break
		}
	}
	if !hasIntent {
		return false
	}

	for _, w := range subjectWords {
		if containsWord(q, w) {
			return true
		}
	}
	return false
}

// containsWord reports whether q contains w as a whole word.
func containsWord(q, w string) bool {
	idx := 0
	for {
		i := strings.Index(q[idx:], w)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(w)
		leftOK := start == 0 || !isAlnum(q[start-1])
		rightOK := end == len(q) || !isAlnum(q[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

// isAlnum reports whether c is an ASCII letter or digit.
func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}
