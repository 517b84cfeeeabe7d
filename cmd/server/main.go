package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/QuinnsCode/qbear3-sub004/internal/cards"
	"github.com/QuinnsCode/qbear3-sub004/internal/config"
	"github.com/QuinnsCode/qbear3-sub004/internal/game"
	"github.com/QuinnsCode/qbear3-sub004/internal/matchmaking"
	"github.com/QuinnsCode/qbear3-sub004/internal/repository"
	"github.com/QuinnsCode/qbear3-sub004/internal/server"
	"github.com/QuinnsCode/qbear3-sub004/internal/session"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting tabletop server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
	logger.Info("tabletop server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Initialize storage
	store, err := repository.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Initialize card catalog
	catalog, closeCatalog, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCatalog()

	templates := cards.NewTemplates(nil, catalog)
	decks := cards.NewDeckStore(store, catalog)

	// Initialize session manager
	sessions := session.NewManager(cfg.Session, session.Deps{
		Engine:    game.NewEngine(logger),
		Store:     store,
		Templates: templates,
		Decks:     decks,
	}, logger)
	logger.Info("session manager initialized",
		zap.Duration("idle_timeout", cfg.Session.IdleTimeout),
		zap.Duration("heartbeat_timeout", cfg.Session.HeartbeatTimeout),
	)

	// Initialize matchmaking
	creator := server.NewMatchCreator(sessions)
	queues, err := matchmaking.NewManager(ctx, cfg.Matchmaking, store, creator, creator, logger)
	if err != nil {
		return err
	}
	logger.Info("matchmaking initialized", zap.Strings("regions", queues.Regions()))

	srv := server.New(cfg, server.Deps{
		Sessions:    sessions,
		Matchmaking: queues,
		Decks:       decks,
		Templates:   templates,
		Ready:       storeReady(store),
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error { return sessions.Run(gctx) })
	g.Go(func() error { return queues.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully...")
		err := srv.Shutdown(context.Background())
		sessions.Shutdown()
		return err
	})

	return g.Wait()
}

// openCatalog selects the card catalog named by cfg.Cards.Source.
func openCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cards.Catalog, func(), error) {
	switch cfg.Cards.Source {
	case "postgres":
		db, err := repository.NewDB(ctx, cfg.Storage.Postgres, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to card database: %w", err)
		}
		stats := db.Stats()
		logger.Info("card catalog initialized",
			zap.String("source", "postgres"),
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)
		return cards.NewPostgresCatalog(db, cfg.Cards.ImageURLFormat, logger), db.Close, nil
	case "memory", "":
		catalog, err := cards.LoadMemoryCatalog(cfg.Cards.File)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("card catalog initialized",
			zap.String("source", "memory"),
			zap.String("file", cfg.Cards.File),
		)
		return catalog, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown card source %q", cfg.Cards.Source)
	}
}

// storeReady checks the store with a read of a key that normally does not
// exist.
func storeReady(store repository.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := store.Get(ctx, "health:ready")
		if err == nil || errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
