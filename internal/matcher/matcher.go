// Package matcher scores a free-text question against every manual in the
// registry and returns the best candidate with a confidence score in [0,1].
// Callers interpret the confidence against two configurable bands: at or
// above the auto-lock threshold the match is adopted silently as the active
// scope for the turn; at or above the suggest threshold it is accepted for
// explicit lock commands or surfaced as a hint.
//
// Two algorithms are provided. The blended matcher combines whole-string
// similarity, per-token fuzzy coverage, and a literal-substring bonus, and is
// the default — it separates short or overlapping filenames ("starlink" vs
// "starlink system"). The whole-token matcher is a simpler cumulative-hit
// scorer for corpora whose filenames are unambiguous.
package matcher

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/vivoassist/vivoassist-go/internal/registry"
)

// Algorithm selection values for Config.Algorithm.
const (
	// AlgorithmBlended is the weighted lexical/fuzzy/coverage scorer.
	AlgorithmBlended = "blended"
	// AlgorithmTokens is the simple whole-word/fuzzy token hit scorer.
	AlgorithmTokens = "tokens"
)

// Default confidence bands. These are configuration, not design constants:
// deployments tune them per corpus via Config.
const (
	// DefaultAutoLockThreshold is the confidence at which a match is adopted
	// silently as the active scope for the current turn.
	DefaultAutoLockThreshold = 0.72
	// DefaultSuggestThreshold is the confidence at which a match is accepted
	// for explicit lock commands, or surfaced as a non-blocking hint.
	DefaultSuggestThreshold = 0.55
)

// Blended score weights. The whole-string ratio dominates so that a question
// quoting the full title wins outright; the token average rewards partial
// coverage; the literal bonus rewards long distinctive words appearing
// verbatim.
const (
	fullWeight  = 0.55
	tokenWeight = 0.40

	literalBonusPer = 0.08
	literalBonusCap = 0.24

	// minQueryTokenLen is the query-token length floor for the fuzzy token
	// average. Short words ("is", "the", "4wd") add noise, not signal.
	minQueryTokenLen = 4
	// minCandidateTokenLen mirrors the registry's token floor.
	minCandidateTokenLen = 3
	// minLiteralTokenLen is the floor for the literal-substring bonus.
	minLiteralTokenLen = 6

	// fuzzyTokenHit is the minimum ratio for a fuzzy whole-token hit in the
	// tokens algorithm (tolerates misspellings like "vezzel" -> "vezel").
	fuzzyTokenHit = 0.88
	// fuzzyTokenScore is the per-hit score for a fuzzy token hit, slightly
	// below an exact hit.
	fuzzyTokenScore = 0.9
)

// Config holds the tunable matching settings.
type Config struct {
	// AutoLockThreshold is the silent-adoption confidence band.
	// Defaults to DefaultAutoLockThreshold if zero.
	AutoLockThreshold float64

	// SuggestThreshold is the explicit-lock/hint confidence band.
	// Defaults to DefaultSuggestThreshold if zero.
	SuggestThreshold float64

	// Algorithm selects the scorer: AlgorithmBlended (default) or
	// AlgorithmTokens.
	Algorithm string
}

// withDefaults returns cfg with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.AutoLockThreshold == 0 {
		c.AutoLockThreshold = DefaultAutoLockThreshold
	}
	if c.SuggestThreshold == 0 {
		c.SuggestThreshold = DefaultSuggestThreshold
	}
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmBlended
	}
	return c
}

// Result is the ephemeral outcome of matching one query.
type Result struct {
	// Identifier is the best manual's identifier, or "" when nothing
	// scored above zero.
	Identifier string

	// Confidence is the winning score clamped to [0,1]. Zero when there
	// is no match.
	Confidence float64

	// MatchedToken is the registry token that contributed the match in the
	// tokens algorithm. Empty for the blended algorithm.
	MatchedToken string
}

// candidate is a precomputed matchable view of one registry entry.
type candidate struct {
	identifier string
	// normName is the lowercased alphanumeric-plus-space display title.
	normName string
	// nameTokens are the normName fields of at least minCandidateTokenLen.
	nameTokens []string
	// registryTokens is the entry's curated token set (stopwords removed).
	registryTokens []string
}

// Matcher scores queries against a fixed registry. It is stateless after
// construction and safe to share across conversations.
type Matcher struct {
	cfg        Config
	candidates []candidate
}

// New constructs a Matcher over the given registry. Candidates are ordered
// by identifier so that ties resolve deterministically to the first
// encountered.
func New(reg registry.Registry, cfg Config) *Matcher {
	cfg = cfg.withDefaults()

	cands := make([]candidate, 0, len(reg))
	for _, id := range reg.Identifiers() {
		entry := reg[id]
		norm := Normalize(entry.DisplayTitle)

		var nameToks []string
		for _, t := range strings.Fields(norm) {
			if len(t) >= minCandidateTokenLen {
				nameToks = append(nameToks, t)
			}
		}

		regToks := make([]string, 0, len(entry.Tokens))
		for t := range entry.Tokens {
			regToks = append(regToks, t)
		}
		sort.Strings(regToks)

		cands = append(cands, candidate{
			identifier:     id,
			normName:       norm,
			nameTokens:     nameToks,
			registryTokens: regToks,
		})
	}

	return &Matcher{
		cfg:        cfg,
		candidates: cands,
	}
}

// similarity returns the Ratcliff/Obershelp ratio of a and b in [0,1],
// computed rune-wise with difflib's SequenceMatcher. Spaces are treated as
// junk so two strings that share nothing but whitespace score zero.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	m := difflib.NewMatcherWithJunk(
		strings.Split(a, ""), strings.Split(b, ""),
		true, func(s string) bool { return s == " " })
	return m.Ratio()
}

// AutoLockThreshold returns the configured silent-adoption band.
func (m *Matcher) AutoLockThreshold() float64 { return m.cfg.AutoLockThreshold }

// SuggestThreshold returns the configured hint/explicit-lock band.
func (m *Matcher) SuggestThreshold() float64 { return m.cfg.SuggestThreshold }

// Match scores query against every candidate using the configured algorithm
// and returns the best result. Matching is deterministic: the same query and
// registry always produce the same result.
func (m *Matcher) Match(query string) Result {
	if m.cfg.Algorithm == AlgorithmTokens {
		return m.matchTokens(query)
	}
	return m.matchBlended(query)
}

// matchBlended implements the weighted lexical/fuzzy/coverage score.
func (m *Matcher) matchBlended(query string) Result {
	normQuery := Normalize(query)
	queryTokens := strings.Fields(normQuery)

	// Tokens meeting the length floor drive the fuzzy average; if none
	// qualify (e.g. "gps fix"), fall back to all query tokens.
	longTokens := make([]string, 0, len(queryTokens))
	for _, t := range queryTokens {
		if len(t) >= minQueryTokenLen {
			longTokens = append(longTokens, t)
		}
	}
	if len(longTokens) == 0 {
		longTokens = queryTokens
	}

	best := Result{}
	for _, c := range m.candidates {
		score := m.scoreBlended(normQuery, longTokens, c)
		// Strictly greater keeps the first-encountered candidate on ties.
		if score > best.Confidence {
			best = Result{Identifier: c.identifier, Confidence: score}
		}
	}
	if best.Confidence <= 0 {
		return Result{}
	}
	return best
}

// scoreBlended computes the blended score of one candidate.
func (m *Matcher) scoreBlended(normQuery string, queryTokens []string, c candidate) float64 {
	sFull := similarity(normQuery, c.normName)

	var sTokens float64
	if len(queryTokens) > 0 && len(c.nameTokens) > 0 {
		sum := 0.0
		for _, qt := range queryTokens {
			bestTok := 0.0
			for _, ct := range c.nameTokens {
				if s := similarity(qt, ct); s > bestTok {
					bestTok = s
				}
			}
			sum += bestTok
		}
		sTokens = sum / float64(len(queryTokens))
	}

	bonus := 0.0
	for _, qt := range queryTokens {
		if len(qt) >= minLiteralTokenLen && strings.Contains(c.normName, qt) {
			bonus += literalBonusPer
		}
	}
	if bonus > literalBonusCap {
		bonus = literalBonusCap
	}

	score := fullWeight*sFull + tokenWeight*sTokens + bonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// matchTokens implements the simple whole-word/fuzzy token hit scorer.
// Each exact whole-word hit of a registry token in the query scores 1.0,
// each fuzzy hit (ratio >= fuzzyTokenHit against a query word) scores 0.9.
// The highest cumulative score wins; ties go to the longest matched token.
// The cumulative score is clamped to 1.0 to stay a confidence.
func (m *Matcher) matchTokens(query string) Result {
	normQuery := Normalize(query)
	queryWords := strings.Fields(normQuery)
	querySet := make(map[string]bool, len(queryWords))
	for _, w := range queryWords {
		querySet[w] = true
	}

	var (
		bestScore float64
		best      Result
	)
	for _, c := range m.candidates {
		score := 0.0
		matched := ""
		for _, tok := range c.registryTokens {
			if querySet[tok] {
				score += 1.0
				if len(tok) > len(matched) {
					matched = tok
				}
				continue
			}
			if len(tok) < minQueryTokenLen {
				continue
			}
			for _, w := range queryWords {
				if len(w) < minQueryTokenLen {
					continue
				}
				if similarity(w, tok) >= fuzzyTokenHit {
					score += fuzzyTokenScore
					if len(tok) > len(matched) {
						matched = tok
					}
					break
				}
			}
		}

		better := score > bestScore ||
			(score == bestScore && score > 0 && len(matched) > len(best.MatchedToken))
		if better {
			bestScore = score
			conf := score
			if conf > 1.0 {
				conf = 1.0
			}
			best = Result{Identifier: c.identifier, Confidence: conf, MatchedToken: matched}
		}
	}
	if bestScore <= 0 {
		return Result{}
	}
	return best
}

// Normalize lowercases s and reduces it to alphanumeric characters and
// single spaces. Both queries and candidate names pass through this before
// any comparison.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
