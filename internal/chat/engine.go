// Package chat is the turn engine: the single operation that resolves one
// raw user question into display lines. It wires the splitter, the scope
// controller, the per-scope session cache, and the post-answer guard into
// the turn pipeline, and recognizes the explicit scope commands the REPL and
// the HTTP server both delegate to.
//
// One Engine serves exactly one conversation. A turn is fully resolved
// (split, scope decision, retrieval, guard, display) before the next is
// accepted; the registry and matcher behind the scope controller are
// read-only and safely shared across engines.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/vivoassist/vivoassist-go/internal/guard"
	"github.com/vivoassist/vivoassist-go/internal/index"
	"github.com/vivoassist/vivoassist-go/internal/logging"
	"github.com/vivoassist/vivoassist-go/internal/models"
	"github.com/vivoassist/vivoassist-go/internal/registry"
	"github.com/vivoassist/vivoassist-go/internal/scope"
	"github.com/vivoassist/vivoassist-go/internal/session"
	"github.com/vivoassist/vivoassist-go/internal/splitter"
)

// Inventory is the models-cache reader consumed by the inventory branch.
type Inventory interface {
	Lines(ctx context.Context) ([]string, error)
}

// Engine resolves one conversation's turns.
type Engine struct {
	reg       registry.Registry
	scope     *scope.Controller
	sessions  *session.Cache
	inventory Inventory
	debug     bool
}

// Config holds the collaborators for constructing an Engine.
type Config struct {
	// Registry is the manual registry. Required.
	Registry registry.Registry

	// Scope is the conversation's scope controller. Required.
	Scope *scope.Controller

	// Sessions is the conversation's retrieval session cache. Required.
	Sessions *session.Cache

	// Inventory serves the models-cache listing. Required.
	Inventory Inventory

	// Debug enables logging of guard violations and auto-switch decisions.
	Debug bool
}

// New constructs an Engine from the provided Config.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Registry) == 0 {
		return nil, fmt.Errorf("chat: registry must not be empty")
	}
	if cfg.Scope == nil {
		return nil, fmt.Errorf("chat: scope controller must not be nil")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("chat: session cache must not be nil")
	}
	if cfg.Inventory == nil {
		return nil, fmt.Errorf("chat: inventory must not be nil")
	}
	return &Engine{
		reg:       cfg.Registry,
		scope:     cfg.Scope,
		sessions:  cfg.Sessions,
		inventory: cfg.Inventory,
		debug:     cfg.Debug,
	}, nil
}

// Dispatch routes one raw input line: explicit commands ("list manuals",
// "use <x>", "lock <x>", "unlock") are recognized by prefix; everything else
// is a question handled by HandleTurn. "use" and "lock" are synonyms, both
// force the scope.
func (e *Engine) Dispatch(ctx context.Context, line string) ([]string, error) {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)

	switch {
	case lower == "list manuals" || lower == "list manual":
		return e.listManuals(), nil

	case strings.HasPrefix(lower, "use ") || strings.HasPrefix(lower, "lock "):
		_, target, _ := strings.Cut(trimmed, " ")
		return e.lock(ctx, strings.TrimSpace(target)), nil

	case lower == "use" || lower == "lock":
		// Command word with no target: report, turn no-ops.
		return []string{"Please name a manual to lock, e.g. 'use gmdss'."}, nil

	case lower == "unlock":
		return e.unlock(ctx), nil

	default:
		return e.HandleTurn(ctx, trimmed)
	}
}

// HandleTurn resolves one non-command question into display lines:
// split → inventory branch and/or scope decision → session ask → guard →
// answer plus sources.
func (e *Engine) HandleTurn(ctx context.Context, raw string) ([]string, error) {
	log := logging.FromContext(ctx)

	compound, inventoryPart, remainder := splitter.Split(raw)

	var lines []string
	if inventoryPart != "" {
		inv, err := e.inventory.Lines(ctx)
		if err != nil {
			return nil, fmt.Errorf("chat: inventory: %w", err)
		}
		lines = append(lines, inv...)
		if !compound {
			return lines, nil
		}
	}

	question := remainder
	dec := e.scope.Decide(question)
	if dec.Mode == scope.Auto && e.debug {
		log.Debug("chat: auto scope adopted",
			slog.String("manual", dec.Manual),
			slog.Float64("confidence", dec.Confidence))
	}
	if dec.Switched {
		// Fresh history for the incoming scope: follow-up condensation must
		// never rewrite questions using another manual's context.
		e.sessions.Invalidate(dec.Manual)
	}

	sess := e.sessions.GetOrCreate(dec.Manual)
	ans, err := sess.Ask(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("chat: ask: %w", err)
	}

	if err := guard.Check(dec.Manual, ans.Fragments); err != nil {
		var v *guard.Violation
		if errors.As(err, &v) && e.debug {
			log.Debug("chat: scope violation suppressed",
				slog.String("active", v.Active),
				slog.Any("offending", v.Offending))
		}
		// Hard containment: the generated answer and its sources are
		// discarded entirely.
		lines = append(lines, guard.Refusal)
		return lines, nil
	}

	lines = append(lines, ans.Text)
	if !isRefusal(ans.Text) {
		lines = append(lines, formatSources(ans.Fragments)...)
	}
	if dec.Suggestion != "" {
		lines = append(lines, fmt.Sprintf(
			"Hint: this looks related to %s (confidence %.2f). Say 'use %s' to lock it.",
			dec.Suggestion, dec.SuggestionConfidence, dec.Suggestion))
	}
	return lines, nil
}

// listManuals renders the registry and the current scope state.
func (e *Engine) listManuals() []string {
	lines := []string{"Available manuals:"}
	for _, id := range e.reg.Identifiers() {
		lines = append(lines, fmt.Sprintf("- %s (%s)", e.reg[id].DisplayTitle, id))
	}
	if e.scope.Mode() == scope.Forced {
		lines = append(lines, fmt.Sprintf("Currently locked to %s.", e.scope.Manual()))
	}
	return lines
}

// lock forces the scope to the manual matching target.
func (e *Engine) lock(ctx context.Context, target string) []string {
	if target == "" {
		return []string{"Please name a manual to lock, e.g. 'use gmdss'."}
	}

	res, changed, err := e.scope.Lock(target)
	if err != nil {
		if errors.Is(err, scope.ErrNoMatch) {
			return []string{fmt.Sprintf("Could not match %q to any manual. Say 'list manuals' to see what is available.", target)}
		}
		return []string{fmt.Sprintf("Lock failed: %v", err)}
	}
	if changed {
		e.sessions.Invalidate(res.Identifier)
	}

	if e.debug {
		logging.FromContext(ctx).Debug("chat: scope forced",
			slog.String("manual", res.Identifier),
			slog.Float64("confidence", res.Confidence))
	}
	return []string{fmt.Sprintf("Locked to %s (confidence %.2f). Say 'unlock' to release.",
		res.Identifier, res.Confidence)}
}

// unlock clears the scope unconditionally. Idempotent: a second unlock
// reports the same outcome without error.
func (e *Engine) unlock(ctx context.Context) []string {
	previous := e.scope.Active()
	if e.scope.Unlock() {
		// Drop both the departing manual's session and the unscoped one so
		// the next question starts with empty history.
		e.sessions.Invalidate(previous)
		e.sessions.Invalidate("")
	}
	if e.debug {
		logging.FromContext(ctx).Debug("chat: scope unlocked")
	}
	return []string{"Scope unlocked. Answers are no longer restricted to one manual."}
}

// isRefusal reports whether text is (or contains) one of the fixed refusal
// sentences. Refusals carry no source lines.
func isRefusal(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, strings.ToLower(index.NotFound)) ||
		strings.Contains(t, strings.ToLower(guard.Refusal))
}

// formatSources renders the fragments an answer used, grouped per manual
// with numeric-aware page ordering.
func formatSources(fragments []index.Fragment) []string {
	if len(fragments) == 0 {
		return nil
	}

	pagesByManual := make(map[string]map[string]bool)
	for _, f := range fragments {
		if pagesByManual[f.Manual] == nil {
			pagesByManual[f.Manual] = make(map[string]bool)
		}
		if f.Page != "" {
			pagesByManual[f.Manual][f.Page] = true
		}
	}

	manuals := make([]string, 0, len(pagesByManual))
	for m := range pagesByManual {
		manuals = append(manuals, m)
	}
	sort.Strings(manuals)

	lines := []string{"Sources:"}
	for _, m := range manuals {
		pages := make([]string, 0, len(pagesByManual[m]))
		for p := range pagesByManual[m] {
			pages = append(pages, p)
		}
		models.SortPages(pages)
		if len(pages) > 0 {
			lines = append(lines, fmt.Sprintf("- %s (pages: %s)", m, strings.Join(pages, ", ")))
		} else {
			lines = append(lines, fmt.Sprintf("- %s", m))
		}
	}
	return lines
}
