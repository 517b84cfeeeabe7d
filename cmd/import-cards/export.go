package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// cardRow is one printing from the export.
type cardRow struct {
	Name     string
	SetCode  string
	Number   string
	TypeLine string
	ManaCost string
}

// Export columns, located by header name.
var requiredColumns = []string{"name", "set_code", "card_number"}

// parseExport reads a CSV export with a header row. Columns are matched by
// name; types, subtypes and supertypes are folded into a type line. Rows
// missing a required value are skipped and counted.
func parseExport(r io.Reader) ([]cardRow, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, 0, fmt.Errorf("export is missing column %q", name)
		}
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rows := make([]cardRow, 0)
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read row %d: %w", len(rows)+skipped+2, err)
		}

		row := cardRow{
			Name:     field(record, "name"),
			SetCode:  field(record, "set_code"),
			Number:   field(record, "card_number"),
			ManaCost: field(record, "mana_costs"),
			TypeLine: buildTypeLine(field(record, "types"), field(record, "subtypes"), field(record, "supertypes")),
		}
		if row.ManaCost == "" {
			row.ManaCost = field(record, "mana_cost")
		}
		if row.Name == "" || row.SetCode == "" || row.Number == "" {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

func buildTypeLine(types, subtypes, supertypes string) string {
	parts := make([]string, 0, 2)
	if supertypes != "" {
		parts = append(parts, supertypes)
	}
	if types != "" {
		parts = append(parts, types)
	}
	line := strings.Join(parts, " ")
	if subtypes != "" {
		line += " - " + subtypes
	}
	return line
}

func batches(rows []cardRow, size int) [][]cardRow {
	if size <= 0 {
		size = len(rows)
	}
	out := make([][]cardRow, 0)
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[i:end])
	}
	return out
}
