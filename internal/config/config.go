package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root server configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Session     SessionConfig     `mapstructure:"session"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Cards       CardsConfig       `mapstructure:"cards"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig configures the HTTP and websocket listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
}

// SessionConfig configures game sessions and their connection registries.
type SessionConfig struct {
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	MailboxSize      int           `mapstructure:"mailbox_size"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	ReapInterval     time.Duration `mapstructure:"reap_interval"`
	CursorInterval   time.Duration `mapstructure:"cursor_interval"`
	SendBuffer       int           `mapstructure:"send_buffer"`
}

// MatchmakingConfig configures the regional matchmaking queues.
type MatchmakingConfig struct {
	Regions         []string      `mapstructure:"regions"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	CloseDelay      time.Duration `mapstructure:"close_delay"`
	OrphanTimeout   time.Duration `mapstructure:"orphan_timeout"`
	CreateTimeout   time.Duration `mapstructure:"create_timeout"`
}

// StorageConfig selects and configures the key-value persistence backend.
type StorageConfig struct {
	Driver      string         `mapstructure:"driver"` // memory, redis, postgres, sqlite
	SnapshotTTL time.Duration  `mapstructure:"snapshot_ttl"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Postgres    PostgresConfig `mapstructure:"postgres"`
	SQLite      SQLiteConfig   `mapstructure:"sqlite"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig holds Postgres connection settings.
type PostgresConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// SQLiteConfig holds the SQLite database location.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// CardsConfig selects the card-definition catalog.
type CardsConfig struct {
	Source         string `mapstructure:"source"` // memory, postgres
	File           string `mapstructure:"file"`
	ImageURLFormat string `mapstructure:"image_url_format"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const envPrefix = "TABLETOP"

// Load reads configuration from path (if it exists), applying defaults and
// TABLETOP_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "redis", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.Postgres.URL == "" {
		return fmt.Errorf("storage.postgres.url is required for the postgres driver")
	}
	if c.Storage.Driver == "sqlite" && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path is required for the sqlite driver")
	}

	switch c.Cards.Source {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown cards source %q", c.Cards.Source)
	}
	if c.Cards.Source == "postgres" && c.Storage.Postgres.URL == "" {
		return fmt.Errorf("storage.postgres.url is required for the postgres card catalog")
	}

	if len(c.Matchmaking.Regions) == 0 {
		return fmt.Errorf("at least one matchmaking region is required")
	}
	if c.Matchmaking.FreshnessWindow <= 0 {
		return fmt.Errorf("matchmaking.freshness_window must be positive")
	}
	if c.Session.CursorInterval < 0 {
		return fmt.Errorf("session.cursor_interval must not be negative")
	}
	if c.Session.HeartbeatTimeout <= 0 {
		return fmt.Errorf("session.heartbeat_timeout must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.max_message_bytes", 1<<20)

	v.SetDefault("session.idle_timeout", 2*time.Minute)
	v.SetDefault("session.mailbox_size", 64)
	v.SetDefault("session.heartbeat_timeout", 45*time.Second)
	v.SetDefault("session.reap_interval", 15*time.Second)
	v.SetDefault("session.cursor_interval", 16*time.Millisecond)
	v.SetDefault("session.send_buffer", 256)

	v.SetDefault("matchmaking.regions", []string{"us-east"})
	v.SetDefault("matchmaking.freshness_window", time.Hour)
	v.SetDefault("matchmaking.close_delay", 2*time.Second)
	v.SetDefault("matchmaking.orphan_timeout", time.Minute)
	v.SetDefault("matchmaking.create_timeout", 10*time.Second)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.snapshot_ttl", 24*time.Hour)
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.max_conns", 10)
	v.SetDefault("storage.postgres.min_conns", 1)
	v.SetDefault("storage.postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("storage.sqlite.path", "")

	v.SetDefault("cards.source", "memory")
	v.SetDefault("cards.file", "")
	v.SetDefault("cards.image_url_format", "https://api.scryfall.com/cards/%s/%s?format=image")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}
