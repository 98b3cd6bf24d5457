package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/vivoassist/vivoassist-go/internal/registry"
	"github.com/vivoassist/vivoassist-go/internal/store"
)

// Inventory reads the models cache and renders it as display lines.
type Inventory struct {
	store store.ModelsStore
	reg   registry.Registry
}

// NewInventory constructs an Inventory reader.
func NewInventory(st store.ModelsStore, reg registry.Registry) (*Inventory, error) {
	if st == nil {
		return nil, fmt.Errorf("models: store must not be nil")
	}
	return &Inventory{store: st, reg: reg}, nil
}

// Lines renders the cached inventory, one line per model name, grouped by
// manual in registry order. Manuals without cached records are listed by
// display title so a partially built cache is still visible as such.
func (v *Inventory) Lines(ctx context.Context) ([]string, error) {
	lines := []string{"Supported models and systems:"}

	for _, id := range v.reg.Identifiers() {
		records, err := v.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("models: inventory read %s: %w", id, err)
		}

		entry := v.reg[id]
		if len(records) == 0 {
			lines = append(lines, fmt.Sprintf("- %s — %s (not scanned yet)", entry.DisplayTitle, id))
			continue
		}
		for _, r := range records {
			lines = append(lines, formatRecord(r, id))
		}
	}

	if len(lines) == 1 {
		return []string{"No manuals are registered."}, nil
	}
	return lines, nil
}

// formatRecord renders one cached record.
func formatRecord(r store.Record, manual string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s — %s", r.Name, manual)
	if len(r.Pages) > 0 {
		fmt.Fprintf(&b, " (pages: %s)", strings.Join(r.Pages, ", "))
	}
	return b.String()
}
