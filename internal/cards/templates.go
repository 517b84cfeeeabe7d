package cards

import (
	"context"
	"errors"
	"fmt"

	"github.com/QuinnsCode/qbear3-sub004/internal/decklist"
)

// ErrTemplateNotFound is returned for an out-of-range template index.
var ErrTemplateNotFound = errors.New("deck template not found")

// Template is a pre-built deck a player can seed a sandbox game with.
type Template struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Text        string `json:"-"`
}

// ResolvedDeck is a deck list together with the definitions it references.
type ResolvedDeck struct {
	Name        string
	Text        string
	Definitions []Definition
}

// Templates resolves sandbox templates against a catalog.
type Templates struct {
	list    []Template
	catalog Catalog
}

// NewTemplates creates a template set. A nil list uses the built-in templates.
func NewTemplates(list []Template, catalog Catalog) *Templates {
	if list == nil {
		list = BuiltinTemplates()
	}
	return &Templates{list: list, catalog: catalog}
}

// List returns the available templates in index order.
func (t *Templates) List() []Template {
	out := make([]Template, len(t.list))
	copy(out, t.list)
	return out
}

// Resolve returns the deck text and card definitions for template index.
func (t *Templates) Resolve(ctx context.Context, index int) (ResolvedDeck, error) {
	if index < 0 || index >= len(t.list) {
		return ResolvedDeck{}, fmt.Errorf("%w: index %d", ErrTemplateNotFound, index)
	}
	tmpl := t.list[index]

	defs, err := LookupDeck(ctx, t.catalog, tmpl.Text)
	if err != nil {
		return ResolvedDeck{}, fmt.Errorf("failed to resolve template %q: %w", tmpl.Name, err)
	}

	return ResolvedDeck{
		Name:        tmpl.Name,
		Text:        tmpl.Text,
		Definitions: defs,
	}, nil
}

// LookupDeck parses text just far enough to collect card names and fetches
// their definitions from catalog.
func LookupDeck(ctx context.Context, catalog Catalog, text string) ([]Definition, error) {
	parsed := decklist.Parse(text)
	names := make([]string, 0, len(parsed.Cards))
	for _, entry := range parsed.Cards {
		names = append(names, entry.Name)
	}
	return catalog.Lookup(ctx, names)
}
