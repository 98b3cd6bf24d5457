package guard

import (
	"errors"
	"testing"

	"github.com/vivoassist/vivoassist-go/internal/index"
)

func Test_Check_UnlockedScopeAcceptsAnything(t *testing.T) {
	t.Parallel()

	fragments := []index.Fragment{
		{Manual: "gmdss.pdf"},
		{Manual: "starlink.pdf"},
	}
	if err := Check("", fragments); err != nil {
		t.Errorf("unlocked scope must accept any sources: %v", err)
	}
}

func Test_Check_MatchingFragmentsPass(t *testing.T) {
	t.Parallel()

	fragments := []index.Fragment{
		{Manual: "gmdss.pdf", Page: "1"},
		{Manual: "gmdss.pdf", Page: "14"},
	}
	if err := Check("gmdss.pdf", fragments); err != nil {
		t.Errorf("in-scope fragments must pass: %v", err)
	}
}

func Test_Check_ForeignFragmentViolates(t *testing.T) {
	t.Parallel()

	fragments := []index.Fragment{
		{Manual: "gmdss.pdf"},
		{Manual: "starlink.pdf"},
	}
	err := Check("gmdss.pdf", fragments)
	if err == nil {
		t.Fatal("foreign fragment must violate")
	}

	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("want *Violation, got %T", err)
	}
	if v.Active != "gmdss.pdf" {
		t.Errorf("active: got %q", v.Active)
	}
	if len(v.Offending) != 1 || v.Offending[0] != "starlink.pdf" {
		t.Errorf("offending: got %v", v.Offending)
	}
}

func Test_Check_OffendingSortedAndDeduplicated(t *testing.T) {
	t.Parallel()

	fragments := []index.Fragment{
		{Manual: "zeta.pdf"},
		{Manual: "alpha.pdf"},
		{Manual: "zeta.pdf"},
		{Manual: "gmdss.pdf"},
	}
	err := Check("gmdss.pdf", fragments)

	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("want *Violation, got %v", err)
	}
	want := []string{"alpha.pdf", "zeta.pdf"}
	if len(v.Offending) != len(want) {
		t.Fatalf("offending: got %v, want %v", v.Offending, want)
	}
	for i := range want {
		if v.Offending[i] != want[i] {
			t.Errorf("offending[%d]: got %q, want %q", i, v.Offending[i], want[i])
		}
	}
}

func Test_Check_NoFragmentsPass(t *testing.T) {
	t.Parallel()

	if err := Check("gmdss.pdf", nil); err != nil {
		t.Errorf("an answer with no sources cannot violate scope: %v", err)
	}
}

func Test_Refusal_IsTheFixedSentence(t *testing.T) {
	t.Parallel()

	if Refusal != "Not found in the requested manual." {
		t.Fatalf("refusal sentence changed: %q", Refusal)
	}
}
