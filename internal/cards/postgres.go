package cards

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Querier is the subset of pgxpool.Pool the catalog needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresCatalog reads definitions from the cards table populated by
// cmd/import-cards.
type PostgresCatalog struct {
	db             Querier
	imageURLFormat string
	logger         *zap.Logger
}

// NewPostgresCatalog creates a catalog backed by db. imageURLFormat receives
// the lower-cased set code and the collector number.
func NewPostgresCatalog(db Querier, imageURLFormat string, logger *zap.Logger) *PostgresCatalog {
	return &PostgresCatalog{
		db:             db,
		imageURLFormat: imageURLFormat,
		logger:         logger,
	}
}

// Lookup resolves names by full name or by front-face name, choosing one
// printing per card.
func (c *PostgresCatalog) Lookup(ctx context.Context, names []string) ([]Definition, error) {
	if len(names) == 0 {
		return []Definition{}, nil
	}

	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, strings.ToLower(strings.TrimSpace(name)))
	}

	rows, err := c.db.Query(ctx, `
		SELECT DISTINCT ON (lower(name)) name, set_code, card_number, card_type, mana_cost
		FROM cards
		WHERE lower(name) = ANY($1) OR lower(split_part(name, ' // ', 1)) = ANY($1)
		ORDER BY lower(name), set_code, card_number
	`, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	defs := make([]Definition, 0, len(keys))
	for rows.Next() {
		var name, setCode, number, cardType, manaCost string
		if err := rows.Scan(&name, &setCode, &number, &cardType, &manaCost); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		defs = append(defs, Definition{
			ID:       fmt.Sprintf("%s-%s", strings.ToLower(setCode), number),
			Name:     name,
			ImageURL: c.imageURL(setCode, number),
			TypeLine: cardType,
			ManaCost: manaCost,
			Colors:   ColorsFromManaCost(manaCost),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug("card catalog lookup",
			zap.Int("requested", len(names)),
			zap.Int("resolved", len(defs)),
		)
	}
	return defs, nil
}

func (c *PostgresCatalog) imageURL(setCode, number string) string {
	if c.imageURLFormat == "" {
		return ""
	}
	return fmt.Sprintf(c.imageURLFormat, strings.ToLower(setCode), number)
}
