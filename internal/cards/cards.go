// Package cards holds card definitions (the static metadata a card instance
// references) and the collaborators that supply them.
package cards

import (
	"context"
	"strings"
)

// Definition is the static metadata for one card.
type Definition struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ImageURL string   `json:"imageUrl,omitempty"`
	TypeLine string   `json:"typeLine,omitempty"`
	ManaCost string   `json:"manaCost,omitempty"`
	Colors   []string `json:"colors,omitempty"`
}

// FrontFace returns the front-face name of a multi-faced card, or the full
// name for single-faced cards.
func (d Definition) FrontFace() string {
	return FrontFace(d.Name)
}

// FrontFace returns the part of name before " // ".
func FrontFace(name string) string {
	if idx := strings.Index(name, " // "); idx >= 0 {
		return strings.TrimSpace(name[:idx])
	}
	return name
}

// Catalog looks up definitions by card name. Names are matched
// case-insensitively; unknown names are simply absent from the result.
type Catalog interface {
	Lookup(ctx context.Context, names []string) ([]Definition, error)
}

// Index resolves definitions by case-insensitive name. Multi-faced cards are
// also reachable by their front-face name alone.
type Index struct {
	byName map[string]Definition
}

// NewIndex indexes defs. When two definitions share a name the first wins.
func NewIndex(defs []Definition) *Index {
	idx := &Index{byName: make(map[string]Definition, len(defs)*2)}
	for _, def := range defs {
		key := normalize(def.Name)
		if _, exists := idx.byName[key]; !exists {
			idx.byName[key] = def
		}
	}
	// Front faces second so a full name always beats a front-face alias.
	for _, def := range defs {
		front := normalize(def.FrontFace())
		if _, exists := idx.byName[front]; !exists {
			idx.byName[front] = def
		}
	}
	return idx
}

// Resolve finds the definition for name.
func (i *Index) Resolve(name string) (Definition, bool) {
	if def, ok := i.byName[normalize(name)]; ok {
		return def, true
	}
	if front := FrontFace(name); front != name {
		def, ok := i.byName[normalize(front)]
		return def, ok
	}
	return Definition{}, false
}

// Len returns the number of indexed names, aliases included.
func (i *Index) Len() int {
	return len(i.byName)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ColorsFromManaCost derives a card's colors from its mana symbols, in WUBRG
// order.
func ColorsFromManaCost(cost string) []string {
	upper := strings.ToUpper(cost)
	colors := make([]string, 0, 5)
	for _, c := range []struct {
		symbol string
		name   string
	}{
		{"W", "white"},
		{"U", "blue"},
		{"B", "black"},
		{"R", "red"},
		{"G", "green"},
	} {
		if strings.Contains(upper, c.symbol) {
			colors = append(colors, c.name)
		}
	}
	return colors
}
