package matchmaking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/config"
	"github.com/QuinnsCode/qbear3-sub004/internal/repository"
	"go.uber.org/zap"
)

// Manager holds one queue per configured region.
type Manager struct {
	cfg    config.MatchmakingConfig
	logger *zap.Logger

	mu     sync.RWMutex
	queues map[string]*Queue
}

// NewManager restores the queue of every region in cfg.Regions.
func NewManager(ctx context.Context, cfg config.MatchmakingConfig, store repository.Store, creator SessionCreator, decks DeckChecker, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger,
		queues: make(map[string]*Queue, len(cfg.Regions)),
	}
	for _, region := range cfg.Regions {
		q, err := NewQueue(ctx, region, cfg, store, creator, decks, logger)
		if err != nil {
			return nil, err
		}
		m.queues[region] = q
	}
	logger.Info("matchmaking ready", zap.Strings("regions", cfg.Regions))
	return m, nil
}

// Queue returns the queue for region.
func (m *Manager) Queue(region string) (*Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[region]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegion, region)
	}
	return q, nil
}

// Regions lists the configured regions in sorted order.
func (m *Manager) Regions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.queues))
	for region := range m.queues {
		out = append(out, region)
	}
	sort.Strings(out)
	return out
}

// Run prunes orphaned entries in every region until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.OrphanTimeout / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.mu.RLock()
			queues := make([]*Queue, 0, len(m.queues))
			for _, q := range m.queues {
				queues = append(queues, q)
			}
			m.mu.RUnlock()
			for _, q := range queues {
				q.PruneOrphans(ctx)
			}
		}
	}
}
