// Command import-cards loads a CSV card export into the Postgres cards table
// read by the postgres card catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/config"
	"github.com/QuinnsCode/qbear3-sub004/internal/repository"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const cardsSchema = `
CREATE TABLE IF NOT EXISTS cards (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	set_code    TEXT NOT NULL,
	card_number TEXT NOT NULL,
	card_type   TEXT NOT NULL DEFAULT '',
	mana_cost   TEXT NOT NULL DEFAULT '',
	UNIQUE (set_code, card_number)
);
CREATE INDEX IF NOT EXISTS cards_lower_name_idx ON cards (lower(name))`

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	csvPath    = flag.String("csv", "data/cards_export.csv", "card export to import")
	truncate   = flag.Bool("truncate", false, "clear the cards table before importing")
	batchSize  = flag.Int("batch", 1000, "rows per transaction")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Fatal("card import failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	file, err := os.Open(*csvPath)
	if err != nil {
		return fmt.Errorf("failed to open card export: %w", err)
	}
	defer file.Close()

	rows, skipped, err := parseExport(file)
	if err != nil {
		return err
	}
	logger.Info("parsed card export",
		zap.String("file", *csvPath),
		zap.Int("rows", len(rows)),
		zap.Int("skipped", skipped),
	)

	db, err := repository.NewDB(ctx, cfg.Storage.Postgres, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(ctx, cardsSchema); err != nil {
		return fmt.Errorf("failed to create cards table: %w", err)
	}
	if *truncate {
		if _, err := db.Exec(ctx, "TRUNCATE cards RESTART IDENTITY"); err != nil {
			return fmt.Errorf("failed to clear cards: %w", err)
		}
		logger.Info("existing cards cleared")
	}

	start := time.Now()
	imported, failed := 0, 0
	for _, batch := range batches(rows, *batchSize) {
		n, err := importBatch(ctx, db, batch)
		if err != nil {
			logger.Warn("batch failed", zap.Int("rows", len(batch)), zap.Error(err))
			failed += len(batch)
			continue
		}
		imported += n
		logger.Info("import progress", zap.Int("imported", imported), zap.Int("total", len(rows)))
	}

	var total int64
	if err := db.QueryRow(ctx, "SELECT COUNT(*) FROM cards").Scan(&total); err != nil {
		return fmt.Errorf("failed to count cards: %w", err)
	}

	logger.Info("card import complete",
		zap.Int("imported", imported),
		zap.Int("failed", failed),
		zap.Int64("total_in_table", total),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// importBatch upserts one batch inside a single transaction.
func importBatch(ctx context.Context, db *repository.DB, batch []cardRow) (int, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	for _, row := range batch {
		b.Queue(`
			INSERT INTO cards (name, set_code, card_number, card_type, mana_cost)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (set_code, card_number) DO UPDATE
			SET name = EXCLUDED.name, card_type = EXCLUDED.card_type, mana_cost = EXCLUDED.mana_cost
		`, row.Name, row.SetCode, row.Number, row.TypeLine, row.ManaCost)
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return len(batch), nil
}
