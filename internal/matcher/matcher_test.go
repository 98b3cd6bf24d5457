package matcher

import (
	"math"
	"testing"

	"github.com/vivoassist/vivoassist-go/internal/registry"
)

func testRegistry(t *testing.T, titles map[string]string) registry.Registry {
	t.Helper()
	reg := make(registry.Registry, len(titles))
	for id, title := range titles {
		reg[id] = registry.Entry{
			Identifier:   id,
			DisplayTitle: title,
			Tokens:       registry.Tokenize(title),
		}
	}
	return reg
}

func defaultTestRegistry(t *testing.T) registry.Registry {
	t.Helper()
	return testRegistry(t, map[string]string{
		"gmdss.pdf":           "gmdss",
		"starlink.pdf":        "starlink",
		"starlink_system.pdf": "starlink system",
		"lancer_2012.pdf":     "lancer 2012",
	})
}

func Test_Match_ExactTitleReachesAutoLock(t *testing.T) {
	t.Parallel()

	reg := defaultTestRegistry(t)
	m := New(reg, Config{})

	for _, id := range reg.Identifiers() {
		res := m.Match(reg[id].DisplayTitle)
		if res.Identifier != id {
			t.Errorf("title %q matched %q, want %q", reg[id].DisplayTitle, res.Identifier, id)
			continue
		}
		if res.Confidence < m.AutoLockThreshold() {
			t.Errorf("title %q confidence %.3f below auto-lock %.2f",
				reg[id].DisplayTitle, res.Confidence, m.AutoLockThreshold())
		}
	}
}

func Test_Match_Deterministic(t *testing.T) {
	t.Parallel()

	m := New(defaultTestRegistry(t), Config{})

	queries := []string{"gmdss", "starlink system", "how do i reset the lancer", "nothing relevant here"}
	for _, q := range queries {
		first := m.Match(q)
		for i := 0; i < 5; i++ {
			if got := m.Match(q); got != first {
				t.Fatalf("match for %q not deterministic: %+v then %+v", q, first, got)
			}
		}
	}
}

func Test_Match_SeparatesOverlappingTitles(t *testing.T) {
	t.Parallel()

	m := New(defaultTestRegistry(t), Config{})

	if res := m.Match("starlink"); res.Identifier != "starlink.pdf" {
		t.Errorf("query starlink: got %q", res.Identifier)
	}
	if res := m.Match("starlink system"); res.Identifier != "starlink_system.pdf" {
		t.Errorf("query starlink system: got %q", res.Identifier)
	}
}

func Test_Match_NoCandidateAboveZero(t *testing.T) {
	t.Parallel()

	m := New(defaultTestRegistry(t), Config{})

	res := m.Match("zzzz qqqq xxxx")
	if res.Identifier != "" || res.Confidence != 0 {
		t.Errorf("want no match, got %+v", res)
	}
}

func Test_Match_FuzzyTypoStillMatches(t *testing.T) {
	t.Parallel()

	m := New(defaultTestRegistry(t), Config{})

	res := m.Match("gmds")
	if res.Identifier != "gmdss.pdf" {
		t.Fatalf("typo did not match: %+v", res)
	}
	if res.Confidence < m.SuggestThreshold() {
		t.Errorf("typo confidence %.3f below suggest %.2f", res.Confidence, m.SuggestThreshold())
	}
}

func Test_Match_LiteralBonusRewardsLongTokens(t *testing.T) {
	t.Parallel()

	m := New(defaultTestRegistry(t), Config{})

	// "starlink" is >= 6 chars and appears literally in both starlink titles;
	// the blended score must still clear the auto-lock band inside a longer
	// question thanks to the token average plus the literal bonus.
	res := m.Match("starlink antenna")
	if res.Identifier != "starlink.pdf" && res.Identifier != "starlink_system.pdf" {
		t.Fatalf("got %+v", res)
	}
	if res.Confidence <= 0 {
		t.Fatalf("score must be positive, got %.3f", res.Confidence)
	}
}

func Test_Match_ConfidenceClamped(t *testing.T) {
	t.Parallel()

	m := New(defaultTestRegistry(t), Config{})

	res := m.Match("starlink system starlink system")
	if res.Confidence > 1.0 {
		t.Errorf("confidence above 1.0: %.3f", res.Confidence)
	}
}

func Test_Match_ThresholdsConfigurable(t *testing.T) {
	t.Parallel()

	m := New(defaultTestRegistry(t), Config{AutoLockThreshold: 0.9, SuggestThreshold: 0.4})
	if m.AutoLockThreshold() != 0.9 || m.SuggestThreshold() != 0.4 {
		t.Errorf("thresholds not applied: %.2f / %.2f", m.AutoLockThreshold(), m.SuggestThreshold())
	}

	d := New(defaultTestRegistry(t), Config{})
	if d.AutoLockThreshold() != DefaultAutoLockThreshold || d.SuggestThreshold() != DefaultSuggestThreshold {
		t.Errorf("defaults not applied: %.2f / %.2f", d.AutoLockThreshold(), d.SuggestThreshold())
	}
}

func Test_MatchTokens_ExactAndFuzzyHits(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t, map[string]string{
		"vezel.pdf":  "honda vezel",
		"lancer.pdf": "lancer evolution",
	})
	m := New(reg, Config{Algorithm: AlgorithmTokens})

	res := m.Match("how to open the vezel trunk")
	if res.Identifier != "vezel.pdf" {
		t.Fatalf("exact token hit failed: %+v", res)
	}
	if res.Confidence != 1.0 {
		t.Errorf("exact hit confidence: got %.3f, want 1.0", res.Confidence)
	}
	if res.MatchedToken != "vezel" {
		t.Errorf("matched token: got %q", res.MatchedToken)
	}

	// Misspelling within the fuzzy ratio scores slightly lower.
	res = m.Match("how to open the vezzel trunk")
	if res.Identifier != "vezel.pdf" {
		t.Fatalf("fuzzy token hit failed: %+v", res)
	}
	if res.Confidence != 0.9 {
		t.Errorf("fuzzy hit confidence: got %.3f, want 0.9", res.Confidence)
	}
}

func Test_MatchTokens_TieBreaksOnLongestToken(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t, map[string]string{
		"a.pdf": "alpha kit",
		"b.pdf": "alphakit pro",
	})
	m := New(reg, Config{Algorithm: AlgorithmTokens})

	// Both candidates score one exact hit; the longer matched token wins.
	res := m.Match("alpha alphakit")
	if res.MatchedToken != "alphakit" {
		t.Errorf("tie break: got token %q from %q", res.MatchedToken, res.Identifier)
	}
}

// Test_Similarity_RatcliffObershelp pins the whole-string metric: the ratio
// is 2*M/T over matching runes, with whitespace treated as junk so strings
// sharing nothing but spaces score zero.
func Test_Similarity_RatcliffObershelp(t *testing.T) {
	t.Parallel()

	if got := similarity("starlink", "starlink"); got != 1.0 {
		t.Errorf("identical strings: got %.3f, want 1.0", got)
	}
	if got := similarity("", "starlink"); got != 0 {
		t.Errorf("empty string: got %.3f, want 0", got)
	}
	if got := similarity("abc", "xyz"); got != 0 {
		t.Errorf("disjoint strings: got %.3f, want 0", got)
	}
	// "vezzel" and "vezel" share "vez" and "el": 2*5/(6+5).
	got := similarity("vezzel", "vezel")
	if want := 10.0 / 11.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("vezzel/vezel: got %.6f, want %.6f", got, want)
	}
	// Whitespace carries no signal: junk queries must not pick up a fraction
	// of a point from the space in a two-word title.
	if got := similarity("zzzz qqqq xxxx", "starlink system"); got != 0 {
		t.Errorf("junk query: got %.3f, want 0", got)
	}
}

func Test_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"Starlink-System_v2!", "starlink system v2"},
		{"  GMDSS   2014  ", "gmdss 2014"},
		{"", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
