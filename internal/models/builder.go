// Package models builds and reads the per-manual model inventory. The
// builder queries the document index once per manual for the primary
// product/system the manual covers, validates and parses the response, and
// persists the result to the models store. The reader turns the cached
// records into the display lines the inventory branch of a chat turn emits.
package models

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vivoassist/vivoassist-go/internal/index"
	"github.com/vivoassist/vivoassist-go/internal/logging"
	"github.com/vivoassist/vivoassist-go/internal/registry"
	"github.com/vivoassist/vivoassist-go/internal/store"
)

// subjectPrompt asks the answer model for the primary product/system a
// manual is written for. The refusal instruction reuses the index's exact
// NotFound string so the parser can detect an empty extraction.
const subjectPrompt = `You are analyzing a PDF manual.

Task: Identify ONLY the PRIMARY product/system that this manual is written for.
Examples:
- "GMDSS System"
- "Starlink System"
- "Inmarsat FleetBroadband"

Look specifically at cover/title pages and headings.

Do NOT return:
- tables of contents
- section titles
- part numbers / serial numbers
- firmware/software version strings
- compatible devices lists

If the primary subject is not explicitly stated, say: ` + index.NotFound + `

Return ONLY the name(s) as a comma-separated list.`

// denyKeywords reject extracted names that are document furniture rather
// than product names. Matched as lowercase substrings.
var denyKeywords = []string{
	"appendix", "table", "figure", "revision", "rev.", "copyright",
	"all rights reserved", "contents", "index",
	"part number", "p/n", "serial", "firmware", "software version",
	"specification", "specifications", "dimensions",
	"compatible", "compatibility",
}

var (
	subjectSplit  = regexp.MustCompile(`[,;\n\x{2022}]`)
	bulletPrefix  = regexp.MustCompile(`^[-\x{2022}*]\s*`)
	labelPrefix   = regexp.MustCompile(`(?i)^(model|vehicle|manual|product|system)\s*:\s*`)
	spaceCollapse = regexp.MustCompile(`\s+`)
	allDigits     = regexp.MustCompile(`^\d+$`)
)

// RetryPolicy bounds the backoff retry loop around index queries.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries per manual. Defaults to 8.
	MaxAttempts int
	// BaseDelay is the first retry delay. Defaults to 2s.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth. Defaults to 60s.
	MaxDelay time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 8
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 60 * time.Second
	}
	return p
}

// Builder populates the models store from the document index.
type Builder struct {
	idx   index.Client
	store store.ModelsStore
	reg   registry.Registry
	retry RetryPolicy
}

// NewBuilder constructs a Builder over the given collaborators.
func NewBuilder(idx index.Client, st store.ModelsStore, reg registry.Registry, retry RetryPolicy) (*Builder, error) {
	if idx == nil {
		return nil, fmt.Errorf("models: index client must not be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("models: store must not be nil")
	}
	if len(reg) == 0 {
		return nil, fmt.Errorf("models: registry must not be empty")
	}
	return &Builder{idx: idx, store: st, reg: reg, retry: retry.withDefaults()}, nil
}

// Build scans every registry manual that is not already cached, extracts its
// primary subject, and persists the records. The build is resume-safe:
// cached manuals are skipped, and each manual is written as soon as it
// completes, so an interrupted run picks up where it left off. An extraction
// failure is fatal for that manual's cache entry only; the remaining manuals
// are still scanned and the failures are reported as one aggregate error.
func (b *Builder) Build(ctx context.Context) error {
	log := logging.FromContext(ctx)

	cached, err := b.store.Manuals(ctx)
	if err != nil {
		return fmt.Errorf("models: list cached manuals: %w", err)
	}
	done := make(map[string]bool, len(cached))
	for _, m := range cached {
		done[m] = true
	}

	var failed []string
	for _, id := range b.reg.Identifiers() {
		if done[id] {
			log.Debug("models: manual already cached, skipping", slog.String("manual", id))
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("models: build interrupted: %w", err)
		}

		log.Info("models: scanning manual", slog.String("manual", id))
		records, err := b.buildManual(ctx, b.reg[id])
		if err != nil {
			// The manual stays uncached so the next run retries it.
			log.Error("models: manual scan failed",
				slog.String("manual", id), slog.Any("error", err))
			failed = append(failed, id)
			continue
		}
		if err := b.store.Put(ctx, id, records); err != nil {
			return fmt.Errorf("models: persist %s: %w", id, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("models: %d manual(s) failed to scan: %s",
			len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// buildManual extracts the primary subject records for one manual, falling
// back to a filename-derived name when extraction yields nothing valid.
func (b *Builder) buildManual(ctx context.Context, entry registry.Entry) ([]store.Record, error) {
	ans, err := b.query(ctx, entry.Identifier)
	if err != nil {
		return nil, err
	}

	names := ParseSubjects(ans.Text)
	if len(names) == 0 {
		return []store.Record{{
			Manual:   entry.Identifier,
			Name:     entry.DisplayTitle + " (inferred from filename)",
			Inferred: true,
		}}, nil
	}

	pages := collectPages(entry.Identifier, ans.Fragments)
	records := make([]store.Record, 0, len(names))
	for _, n := range names {
		records = append(records, store.Record{
			Manual: entry.Identifier,
			Name:   n,
			Pages:  pages,
		})
	}
	return records, nil
}

// query runs the subject prompt against the index scoped to one manual,
// retrying transient upstream failures with exponential backoff. Permanent
// failures abort immediately.
func (b *Builder) query(ctx context.Context, manual string) (index.Answer, error) {
	log := logging.FromContext(ctx)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.retry.BaseDelay
	bo.MaxInterval = b.retry.MaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(b.retry.MaxAttempts-1)), ctx)

	var ans index.Answer
	op := func() error {
		var err error
		ans, err = b.idx.Answer(ctx, subjectPrompt, nil, manual)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("models: retrying after transient failure",
			slog.String("manual", manual),
			slog.Duration("wait", wait),
			slog.Any("error", err))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return index.Answer{}, fmt.Errorf("query index: %w", err)
	}
	return ans, nil
}

// Retryable reports whether an upstream error is transient (rate limiting or
// server-side failure) and worth retrying with backoff.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "too many requests", "throttle",
		"500", "502", "503", "504", "timeout", "connection reset",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ParseSubjects parses a comma/newline separated list of product names from
// the model's response, dropping refusals, bullets, label prefixes, and
// names that fail validation. Order is preserved, duplicates dropped.
func ParseSubjects(text string) []string {
	t := strings.TrimSpace(text)
	if t == "" || strings.Contains(strings.ToLower(t), strings.ToLower(index.NotFound)) {
		return nil
	}

	var subjects []string
	seen := make(map[string]bool)
	for _, part := range subjectSplit.Split(t, -1) {
		s := bulletPrefix.ReplaceAllString(strings.TrimSpace(part), "")
		s = labelPrefix.ReplaceAllString(s, "")
		s = strings.TrimSpace(spaceCollapse.ReplaceAllString(s, " "))
		if s == "" || !validSubject(s) || seen[s] {
			continue
		}
		seen[s] = true
		subjects = append(subjects, s)
	}
	return subjects
}

// validSubject rejects junk extractions: empty, deny-listed document
// furniture, very short names, and pure numbers.
func validSubject(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" || len(n) < 4 || allDigits.MatchString(n) {
		return false
	}
	for _, bad := range denyKeywords {
		if strings.Contains(n, bad) {
			return false
		}
	}
	return true
}

// collectPages gathers the distinct page labels of fragments belonging to
// the manual, sorted numerically when the labels are numbers.
func collectPages(manual string, fragments []index.Fragment) []string {
	set := make(map[string]bool)
	for _, f := range fragments {
		if f.Manual == manual && f.Page != "" {
			set[f.Page] = true
		}
	}
	pages := make([]string, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	SortPages(pages)
	return pages
}

// SortPages orders page labels numerically when both labels are integers and
// lexically otherwise, so "2" sorts before "10".
func SortPages(pages []string) {
	sort.Slice(pages, func(i, j int) bool { return pageLess(pages[i], pages[j]) })
}

func pageLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
