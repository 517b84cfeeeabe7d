package cards

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// MemoryCatalog serves definitions from memory.
type MemoryCatalog struct {
	mu    sync.RWMutex
	defs  []Definition
	index *Index
}

// NewMemoryCatalog creates a catalog over defs.
func NewMemoryCatalog(defs []Definition) *MemoryCatalog {
	c := &MemoryCatalog{}
	c.Add(defs...)
	return c
}

// LoadMemoryCatalog reads a JSON array of definitions from path and merges
// it with the built-in definitions.
func LoadMemoryCatalog(path string) (*MemoryCatalog, error) {
	catalog := NewMemoryCatalog(BuiltinDefinitions())
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read card file: %w", err)
	}

	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to decode card file: %w", err)
	}
	for i := range defs {
		if defs[i].ID == "" {
			return nil, fmt.Errorf("card %q at index %d has no id", defs[i].Name, i)
		}
		if len(defs[i].Colors) == 0 {
			defs[i].Colors = ColorsFromManaCost(defs[i].ManaCost)
		}
	}

	catalog.Add(defs...)
	return catalog, nil
}

// Add appends definitions and rebuilds the index.
func (c *MemoryCatalog) Add(defs ...Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.defs = append(c.defs, defs...)
	c.index = NewIndex(c.defs)
}

// Lookup returns the definitions matching names. Duplicate names yield one
// definition.
func (c *MemoryCatalog) Lookup(ctx context.Context, names []string) ([]Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool, len(names))
	result := make([]Definition, 0, len(names))
	for _, name := range names {
		def, ok := c.index.Resolve(name)
		if !ok || seen[def.ID] {
			continue
		}
		seen[def.ID] = true
		result = append(result, def)
	}
	return result, nil
}
