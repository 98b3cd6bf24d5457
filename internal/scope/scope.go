// Package scope owns the manual-scope state machine. For every incoming
// question it decides which manual (if any) retrieval is restricted to, in
// strict priority order: an explicit forced lock always wins; otherwise a
// match at or above the auto-lock threshold is adopted for the current turn;
// a match in the suggest band is surfaced as a hint without changing scope;
// anything weaker leaves scope unchanged.
//
// Auto scope is recomputed fresh on every turn — only a forced lock persists
// across turns. This keeps topic drift from silently pinning the
// conversation to a stale manual; the explicit lock command is the single
// durable override.
//
// A Controller belongs to exactly one conversation and is not safe for
// concurrent use; conversations never share scope state.
package scope

import (
	"errors"

	"github.com/vivoassist/vivoassist-go/internal/matcher"
	"github.com/vivoassist/vivoassist-go/internal/registry"
)

// ErrNoMatch is returned by Lock when the target text does not match any
// manual at or above the suggest threshold. The turn is a no-op: state is
// left unchanged and the caller reports the failure to the user.
var ErrNoMatch = errors.New("scope: no manual matched")

// Mode is the locking state of the controller.
type Mode string

const (
	// Unlocked means retrieval is unrestricted.
	Unlocked Mode = "unlocked"
	// Auto means the current turn's scope was adopted from a high-confidence
	// match. Auto scope does not persist across turns.
	Auto Mode = "auto"
	// Forced means the user explicitly locked a manual. Forced scope
	// persists until an explicit unlock or re-lock; the matcher can never
	// override it.
	Forced Mode = "forced"
)

// Decision is the per-turn scope resolution outcome.
type Decision struct {
	// Manual is the active manual for this turn, or "" when unscoped.
	Manual string

	// Mode is the state the decision was made in.
	Mode Mode

	// Confidence is the matcher confidence that produced an Auto decision.
	// Zero for Forced and Unlocked decisions.
	Confidence float64

	// Switched is true when the active manual differs from the previous
	// turn's. The caller must invalidate the incoming scope's retrieval
	// session so history never bleeds across manuals.
	Switched bool

	// Suggestion is a manual identifier in the suggest band, surfaced as a
	// non-blocking hint. Empty otherwise. A suggestion never changes scope.
	Suggestion string

	// SuggestionConfidence is the matcher confidence behind Suggestion.
	SuggestionConfidence float64
}

// Controller holds one conversation's scope state.
type Controller struct {
	reg registry.Registry
	m   *matcher.Matcher

	// mode and manual are the durable state. Only Forced survives a turn;
	// Auto is rewritten by every Decide call.
	mode   Mode
	manual string

	// lastActive is the active manual of the previous turn, used to detect
	// scope changes for session invalidation.
	lastActive string
}

// New constructs an unlocked Controller over the given registry and matcher.
func New(reg registry.Registry, m *matcher.Matcher) *Controller {
	return &Controller{reg: reg, m: m, mode: Unlocked}
}

// Mode returns the controller's durable mode.
func (c *Controller) Mode() Mode { return c.mode }

// Manual returns the durable locked manual, or "" when none.
func (c *Controller) Manual() string { return c.manual }

// Active returns the previous turn's active manual, or "" when the last
// turn was unscoped.
func (c *Controller) Active() string { return c.lastActive }

// Decide resolves the scope for one non-command question. Transition
// priority: forced wins unconditionally; then auto-lock; then suggest (no
// change); then no-op.
func (c *Controller) Decide(question string) Decision {
	if c.mode == Forced {
		return c.finish(Decision{Manual: c.manual, Mode: Forced})
	}

	res := c.m.Match(question)
	switch {
	case res.Identifier != "" && res.Confidence >= c.m.AutoLockThreshold():
		c.mode = Auto
		c.manual = res.Identifier
		return c.finish(Decision{
			Manual:     res.Identifier,
			Mode:       Auto,
			Confidence: res.Confidence,
		})

	case res.Identifier != "" && res.Confidence >= c.m.SuggestThreshold():
		c.mode = Unlocked
		c.manual = ""
		return c.finish(Decision{
			Mode:                 Unlocked,
			Suggestion:           res.Identifier,
			SuggestionConfidence: res.Confidence,
		})

	default:
		c.mode = Unlocked
		c.manual = ""
		return c.finish(Decision{Mode: Unlocked})
	}
}

// finish computes the Switched flag and records the turn's active manual.
func (c *Controller) finish(d Decision) Decision {
	d.Switched = d.Manual != c.lastActive
	c.lastActive = d.Manual
	return d
}

// Lock transitions to Forced for the manual matching target. An exact
// identifier always locks; otherwise the matcher must reach the suggest
// threshold. Returns the match and whether the active manual changed (in
// which case the caller must invalidate the incoming scope's session).
// On ErrNoMatch the state is left unchanged.
func (c *Controller) Lock(target string) (matcher.Result, bool, error) {
	res := c.resolve(target)
	if res.Identifier == "" {
		return matcher.Result{}, false, ErrNoMatch
	}

	changed := res.Identifier != c.lastActive
	c.mode = Forced
	c.manual = res.Identifier
	c.lastActive = res.Identifier
	return res, changed, nil
}

// resolve maps a lock target to a manual: exact identifier first, then the
// matcher at the suggest threshold.
func (c *Controller) resolve(target string) matcher.Result {
	if _, ok := c.reg[target]; ok {
		return matcher.Result{Identifier: target, Confidence: 1.0}
	}
	res := c.m.Match(target)
	if res.Identifier != "" && res.Confidence >= c.m.SuggestThreshold() {
		return res
	}
	return matcher.Result{}
}

// Unlock transitions unconditionally to Unlocked. It is idempotent: a second
// unlock is a no-op. Returns whether the active manual changed, in which
// case the caller must invalidate the unscoped session so the next question
// starts with empty history.
func (c *Controller) Unlock() bool {
	changed := c.lastActive != ""
	c.mode = Unlocked
	c.manual = ""
	c.lastActive = ""
	return changed
}
