// Package config loads and validates frontier configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend names accepted by the configuration.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendPubSub   = "pubsub"
	BackendKafka    = "kafka"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendMongo    = "mongo"
	BackendNone     = "none"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Frontier    FrontierConfig  `mapstructure:"frontier"`
	Queue       QueueConfig     `mapstructure:"queue"`
	Realtime    RealtimeConfig  `mapstructure:"realtime"`
	Fetch       FetchConfig     `mapstructure:"fetch"`
	Crawler     CrawlerConfig   `mapstructure:"crawler"`
	Archive     ArchiveConfig   `mapstructure:"archive"`
	Graph       GraphConfig     `mapstructure:"graph"`
	Stats       StatsConfig     `mapstructure:"stats"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FrontierConfig selects the frontier store.
type FrontierConfig struct {
	Backend   string `mapstructure:"backend"`
	Table     string `mapstructure:"table"`
	DSN       string `mapstructure:"dsn"`
	RedisAddr string `mapstructure:"redis_addr"`
}

// QueueConfig selects the work queue.
type QueueConfig struct {
	Backend      string   `mapstructure:"backend"`
	Name         string   `mapstructure:"name"`
	Subscription string   `mapstructure:"subscription"`
	ProjectID    string   `mapstructure:"project_id"`
	Brokers      []string `mapstructure:"brokers"`
	GroupID      string   `mapstructure:"group_id"`
	Depth        int      `mapstructure:"depth"`
}

// RealtimeConfig governs the broadcast gateway.
type RealtimeConfig struct {
	// Endpoint is the callback base URL. Empty means the in-process hub.
	Endpoint      string        `mapstructure:"endpoint"`
	ConnectionTTL time.Duration `mapstructure:"connection_ttl"`
	Registry      string        `mapstructure:"registry"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	MaxParallel   int           `mapstructure:"max_parallel"`
	// RelayChannel carries in-process hub events between processes when the
	// registry is shared through Redis.
	RelayChannel string `mapstructure:"relay_channel"`
}

// FetchConfig configures the page fetcher.
type FetchConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
	MaxBodySize int           `mapstructure:"max_body_size"`
}

// CrawlerConfig governs coordinator and dispatcher behavior.
type CrawlerConfig struct {
	MaxFanOut   int           `mapstructure:"max_fan_out"`
	Workers     int           `mapstructure:"workers"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// ArchiveConfig selects where raw page results are written.
type ArchiveConfig struct {
	Backend       string `mapstructure:"backend"`
	Bucket        string `mapstructure:"bucket"`
	Prefix        string `mapstructure:"prefix"`
	Dir           string `mapstructure:"dir"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	DSN           string `mapstructure:"dsn"`
}

// GraphConfig enables the Neo4j link-graph recorder when URI is set.
type GraphConfig struct {
	Neo4jURI string `mapstructure:"neo4j_uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// StatsConfig selects the per-domain crawl stats repository.
type StatsConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// TelemetryConfig controls tracing. Spans go to Cloud Trace when ProjectID is set.
type TelemetryConfig struct {
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from an optional .env file, disk, and environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "prod")
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("frontier.backend", BackendMemory)
	v.SetDefault("frontier.table", "website-sitemaps")
	v.SetDefault("frontier.dsn", "")
	v.SetDefault("frontier.redis_addr", "localhost:6379")
	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.name", "url-queue")
	v.SetDefault("queue.subscription", "")
	v.SetDefault("queue.project_id", "")
	v.SetDefault("queue.brokers", []string{})
	v.SetDefault("queue.group_id", "frontier-workers")
	v.SetDefault("queue.depth", 1024)
	v.SetDefault("realtime.endpoint", "")
	v.SetDefault("realtime.connection_ttl", 24*time.Hour)
	v.SetDefault("realtime.registry", BackendMemory)
	v.SetDefault("realtime.redis_addr", "")
	v.SetDefault("realtime.max_parallel", 16)
	v.SetDefault("realtime.relay_channel", "frontier:realtime")
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.user_agent", "sitemap-frontier/0.1")
	v.SetDefault("fetch.max_body_size", 10<<20)
	v.SetDefault("crawler.max_fan_out", 0)
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.task_timeout", 5*time.Minute)
	v.SetDefault("archive.backend", BackendMemory)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "scraped")
	v.SetDefault("archive.dir", "")
	v.SetDefault("archive.mongo_uri", "")
	v.SetDefault("archive.mongo_database", "frontier")
	v.SetDefault("archive.dsn", "")
	v.SetDefault("graph.neo4j_uri", "")
	v.SetDefault("graph.user", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "")
	v.SetDefault("stats.backend", BackendMemory)
	v.SetDefault("stats.dsn", "")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// applyFallbacks lets backends share the frontier's connection settings.
func (c *Config) applyFallbacks() {
	if c.Realtime.RedisAddr == "" {
		c.Realtime.RedisAddr = c.Frontier.RedisAddr
	}
	if c.Stats.DSN == "" {
		c.Stats.DSN = c.Frontier.DSN
	}
	if c.Archive.DSN == "" {
		c.Archive.DSN = c.Frontier.DSN
	}
	if c.Queue.Subscription == "" {
		c.Queue.Subscription = c.Queue.Name + "-sub"
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.MaxFanOut < 0 {
		return fmt.Errorf("crawler.max_fan_out must be >= 0")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Realtime.MaxParallel <= 0 {
		return fmt.Errorf("realtime.max_parallel must be > 0")
	}
	if c.Realtime.ConnectionTTL <= 0 {
		return fmt.Errorf("realtime.connection_ttl must be > 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	if err := c.validateFrontier(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	switch c.Realtime.Registry {
	case BackendMemory:
	case BackendRedis:
		if c.Realtime.RedisAddr == "" {
			return fmt.Errorf("realtime.redis_addr is required for the redis registry")
		}
	default:
		return fmt.Errorf("realtime.registry %q is not supported", c.Realtime.Registry)
	}
	switch c.Stats.Backend {
	case BackendMemory, BackendNone:
	case BackendPostgres:
		if c.Stats.DSN == "" {
			return fmt.Errorf("stats.dsn is required for the postgres stats backend")
		}
	default:
		return fmt.Errorf("stats.backend %q is not supported", c.Stats.Backend)
	}
	return nil
}

func (c Config) validateFrontier() error {
	switch c.Frontier.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Frontier.DSN == "" {
			return fmt.Errorf("frontier.dsn is required for the postgres frontier")
		}
	case BackendRedis:
		if c.Frontier.RedisAddr == "" {
			return fmt.Errorf("frontier.redis_addr is required for the redis frontier")
		}
	default:
		return fmt.Errorf("frontier.backend %q is not supported", c.Frontier.Backend)
	}
	return nil
}

func (c Config) validateQueue() error {
	if c.Queue.Name == "" {
		return fmt.Errorf("queue.name is required")
	}
	switch c.Queue.Backend {
	case BackendMemory:
		if c.Queue.Depth <= 0 {
			return fmt.Errorf("queue.depth must be > 0")
		}
	case BackendPubSub:
		if c.Queue.ProjectID == "" {
			return fmt.Errorf("queue.project_id is required for the pubsub queue")
		}
	case BackendKafka:
		if len(c.Queue.Brokers) == 0 {
			return fmt.Errorf("queue.brokers is required for the kafka queue")
		}
	default:
		return fmt.Errorf("queue.backend %q is not supported", c.Queue.Backend)
	}
	return nil
}

func (c Config) validateArchive() error {
	switch c.Archive.Backend {
	case BackendMemory, BackendNone:
	case BackendLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir is required for the local archive")
		}
	case BackendGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs archive")
		}
	case BackendMongo:
		if c.Archive.MongoURI == "" {
			return fmt.Errorf("archive.mongo_uri is required for the mongo archive")
		}
	case BackendPostgres:
		if c.Archive.DSN == "" {
			return fmt.Errorf("archive.dsn is required for the postgres archive")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	return nil
}

// RelayRealtime reports whether in-process hubs exchange events over Redis.
func (c Config) RelayRealtime() bool {
	return c.InProcessRealtime() && c.Realtime.Registry == BackendRedis
}

// InProcessRealtime reports whether websocket connections are served by this
// process rather than an external callback endpoint.
func (c Config) InProcessRealtime() bool {
	return strings.TrimSpace(c.Realtime.Endpoint) == ""
}
