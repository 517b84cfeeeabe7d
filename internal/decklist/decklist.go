// Package decklist parses plain-text deck lists as exported by common deck
// builders (Moxfield, Archidekt, MTGO/Arena text exports).
//
// Supported line shapes:
//
//	1 Sol Ring
//	4x Lightning Bolt
//	1 Atraxa, Praetors' Voice (2XM) 190 *CMDR*
//	Counterspell
//
// A "Commander" section header marks every entry below it (until the next
// header) as the commander. Sideboard and maybeboard sections are skipped.
package decklist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Entry is one named card with its quantity.
type Entry struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Result is the outcome of parsing a deck list. Errors holds one message per
// rejected line; callers decide whether a non-empty Errors aborts their work.
type Result struct {
	Cards     []Entry  `json:"cards"`
	Commander string   `json:"commander,omitempty"`
	Errors    []string `json:"errors"`
}

// Total returns the summed quantity of every entry.
func (r Result) Total() int {
	total := 0
	for _, e := range r.Cards {
		total += e.Quantity
	}
	return total
}

type section int

const (
	sectionMain section = iota
	sectionCommander
	sectionSkipped
)

const maxQuantity = 250

var (
	quantityPattern = regexp.MustCompile(`^(\d+)\s*[xX]?\s+(.+)$`)
	setPattern      = regexp.MustCompile(`\s+\([A-Za-z0-9]{2,6}\)(\s+[A-Za-z0-9-★]+)?$`)
	markerPattern   = regexp.MustCompile(`\s+(\*[A-Za-z]+\*|\[[^\]]*\])$`)
)

// Parse reads a deck list. It never fails outright; malformed lines are
// reported in Result.Errors.
func Parse(text string) Result {
	result := Result{
		Cards:  make([]Entry, 0),
		Errors: make([]string, 0),
	}
	index := make(map[string]int)
	current := sectionMain

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if next, ok := parseHeader(line); ok {
			current = next
			continue
		}
		if strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}
		if current == sectionSkipped {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(line), "SB:") {
			continue
		}

		entry, isCommander, err := parseLine(line)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", i+1, err))
			continue
		}

		if current == sectionCommander || isCommander {
			if result.Commander != "" && !strings.EqualFold(result.Commander, entry.Name) {
				result.Errors = append(result.Errors,
					fmt.Sprintf("line %d: multiple commanders declared (%q and %q)", i+1, result.Commander, entry.Name))
				continue
			}
			result.Commander = entry.Name
		}

		key := strings.ToLower(entry.Name)
		if pos, exists := index[key]; exists {
			result.Cards[pos].Quantity += entry.Quantity
			continue
		}
		index[key] = len(result.Cards)
		result.Cards = append(result.Cards, entry)
	}

	return result
}

func parseHeader(line string) (section, bool) {
	header := strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "/# ")))
	header = strings.TrimSuffix(header, ":")
	// Archidekt style headers carry a count, e.g. "Commander (1)".
	if idx := strings.Index(header, " ("); idx > 0 {
		header = header[:idx]
	}

	switch header {
	case "commander", "commanders":
		return sectionCommander, true
	case "deck", "main", "mainboard", "main deck", "companion":
		return sectionMain, true
	case "sideboard", "maybeboard", "considering", "tokens":
		return sectionSkipped, true
	}
	return sectionMain, false
}

func parseLine(line string) (Entry, bool, error) {
	quantity := 1
	name := line

	if m := quantityPattern.FindStringSubmatch(line); m != nil {
		q, err := strconv.Atoi(m[1])
		if err != nil {
			return Entry{}, false, fmt.Errorf("invalid quantity %q", m[1])
		}
		quantity = q
		name = m[2]
	}
	if quantity <= 0 {
		return Entry{}, false, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	if quantity > maxQuantity {
		return Entry{}, false, fmt.Errorf("quantity %d exceeds limit of %d", quantity, maxQuantity)
	}

	isCommander := false
	for {
		m := markerPattern.FindStringSubmatch(name)
		if m == nil {
			break
		}
		marker := strings.ToLower(m[1])
		if strings.Contains(marker, "cmdr") || strings.Contains(marker, "commander") {
			isCommander = true
		}
		name = strings.TrimSuffix(name, m[0])
	}
	name = setPattern.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)

	if name == "" {
		return Entry{}, false, fmt.Errorf("missing card name")
	}

	return Entry{Name: name, Quantity: quantity}, isCommander, nil
}
