// Package guard enforces post-answer scope containment. Retrieval can leak
// fragments from neighboring manuals (embedding-space neighbors), so after an
// answer is generated the guard inspects the fragments it actually used and
// rejects the whole answer if any fragment belongs to a manual other than the
// locked scope. This is a hard containment rule: on violation the generated
// text and its sources are discarded entirely and a fixed refusal is shown.
package guard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vivoassist/vivoassist-go/internal/index"
)

// Refusal is the exact sentence shown in place of a rejected answer.
// It is matched as a case-insensitive exact substring downstream, so it must
// never be reworded.
const Refusal = "Not found in the requested manual."

// Violation reports fragments whose manual identifier disagreed with the
// active scope.
type Violation struct {
	// Active is the locked manual identifier the answer was scoped to.
	Active string
	// Offending is the sorted, de-duplicated list of foreign manual
	// identifiers found in the answer's fragments.
	Offending []string
}

// Error implements the error interface. The message is for logs only; users
// see Refusal instead.
func (v *Violation) Error() string {
	return fmt.Sprintf("guard: answer for %q used fragments from %s",
		v.Active, strings.Join(v.Offending, ", "))
}

// Check verifies that every fragment belongs to activeManual. An empty
// activeManual means scope is unlocked and any source is acceptable.
// On violation it returns a *Violation listing the offending identifiers.
func Check(activeManual string, fragments []index.Fragment) error {
	if activeManual == "" {
		return nil
	}

	seen := make(map[string]bool)
	for _, f := range fragments {
		if f.Manual != activeManual {
			seen[f.Manual] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}

	offending := make([]string, 0, len(seen))
	for id := range seen {
		offending = append(offending, id)
	}
	sort.Strings(offending)

	return &Violation{Active: activeManual, Offending: offending}
}
