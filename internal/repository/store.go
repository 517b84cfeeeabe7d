// Package repository provides the key-value persistence used for session
// snapshots, matchmaking queues and stored deck lists.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/config"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("repository: key not found")

// Store is a put/get key-value store. Values are opaque bytes; callers own
// their encoding.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// SessionKey returns the key holding a session snapshot.
func SessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// QueueKey returns the key holding a region's matchmaking queue.
func QueueKey(region string) string {
	return fmt.Sprintf("matchmaking:%s", region)
}

// DeckKey returns the key holding a stored deck list.
func DeckKey(deckID string) string {
	return fmt.Sprintf("deck:%s", deckID)
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Driver {
	case "memory", "":
		store = NewMemoryStore()
	case "redis":
		var rs *RedisStore
		rs, err = NewRedisStore(ctx, cfg.Redis, cfg.SnapshotTTL)
		if err == nil {
			store = rs
		}
	case "postgres":
		var db *DB
		db, err = NewDB(ctx, cfg.Postgres, logger)
		if err == nil {
			var pg *PostgresStore
			pg, err = NewPostgresStore(ctx, db)
			if err != nil {
				db.Close()
			} else {
				store = pg.WithTTL(cfg.SnapshotTTL)
			}
		}
	case "sqlite":
		var lite *SQLiteStore
		lite, err = NewSQLiteStore(ctx, cfg.SQLite.Path)
		if err == nil {
			store = lite.WithTTL(cfg.SnapshotTTL)
		}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Driver, err)
	}

	if logger != nil {
		logger.Info("storage initialized",
			zap.String("driver", cfg.Driver),
			zap.Duration("snapshot_ttl", cfg.SnapshotTTL),
		)
	}
	return store, nil
}

func expiresAt(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}
