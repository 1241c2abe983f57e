package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"spxreplay/internal/logging"
)

// Source kinds.
const (
	SourceHTTP     = "http"
	SourceYahoo    = "yahoo"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Source   SourceConfig   `mapstructure:"source"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Database DatabaseConfig `mapstructure:"database"`
	Render   RenderConfig   `mapstructure:"render"`
	Server   ServerConfig   `mapstructure:"server"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// PlaybackConfig tunes the replay engine.
type PlaybackConfig struct {
	WindowSize     int           `mapstructure:"window_size"`
	UpdateInterval time.Duration `mapstructure:"update_interval"`
}

// SourceConfig selects and parameterises the batch source.
type SourceConfig struct {
	Kind     string               `mapstructure:"kind"`
	HTTP     HTTPSourceConfig     `mapstructure:"http"`
	Yahoo    YahooSourceConfig    `mapstructure:"yahoo"`
	File     FileSourceConfig     `mapstructure:"file"`
	Postgres PostgresSourceConfig `mapstructure:"postgres"`
}

// HTTPSourceConfig points at an endpoint serving keyed record batches.
type HTTPSourceConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// YahooSourceConfig covers the Yahoo Finance chart API.
type YahooSourceConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Symbol    string        `mapstructure:"symbol"`
	Range     string        `mapstructure:"range"`
	Interval  string        `mapstructure:"interval"`
	RSIPeriod int           `mapstructure:"rsi_period"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Proxy     string        `mapstructure:"proxy"`
}

// FileSourceConfig replays a captured batch file.
type FileSourceConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresSourceConfig replays ingested bars.
type PostgresSourceConfig struct {
	Symbol string `mapstructure:"symbol"`
	Limit  int    `mapstructure:"limit"`
}

// CacheConfig enables the Redis batch cache.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// RenderConfig selects the frame sinks.
type RenderConfig struct {
	Log bool      `mapstructure:"log"`
	PNG PNGConfig `mapstructure:"png"`
}

// PNGConfig describes the chart file sink.
type PNGConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Width   int    `mapstructure:"width"`
	Height  int    `mapstructure:"height"`
}

// ServerConfig exposes the live endpoints.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// AlertingConfig routes decision change notifications.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Symbol   string         `mapstructure:"symbol"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// IngestConfig governs history ingestion into Postgres.
type IngestConfig struct {
	Symbol   string        `mapstructure:"symbol"`
	Interval time.Duration `mapstructure:"interval"`
	DryRun   bool          `mapstructure:"dry_run"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPXREPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "spxreplay")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("playback.window_size", 50)
	v.SetDefault("playback.update_interval", "2s")

	v.SetDefault("source.kind", SourceYahoo)
	v.SetDefault("source.http.url", "http://localhost:5000/data")
	v.SetDefault("source.http.timeout", "10s")
	v.SetDefault("source.http.user_agent", "spxreplay/1.0")
	v.SetDefault("source.yahoo.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("source.yahoo.symbol", "^GSPC")
	v.SetDefault("source.yahoo.range", "5y")
	v.SetDefault("source.yahoo.interval", "1d")
	v.SetDefault("source.yahoo.rsi_period", 14)
	v.SetDefault("source.yahoo.timeout", "30s")
	v.SetDefault("source.postgres.symbol", "^GSPC")
	v.SetDefault("source.postgres.limit", 1260)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.key_prefix", "spxreplay:batch:")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x53505852))

	v.SetDefault("render.log", true)
	v.SetDefault("render.png.enabled", false)
	v.SetDefault("render.png.path", "spxreplay.png")
	v.SetDefault("render.png.width", 1280)
	v.SetDefault("render.png.height", 720)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.symbol", "^GSPC")
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("ingest.symbol", "^GSPC")
	v.SetDefault("ingest.interval", "24h")
	v.SetDefault("ingest.dry_run", false)

	v.SetDefault("export.max_data_points", 5000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Playback.WindowSize <= 0 {
		return fmt.Errorf("playback.window_size must be greater than zero")
	}
	if c.Playback.UpdateInterval <= 0 {
		return fmt.Errorf("playback.update_interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	switch c.Source.Kind {
	case SourceHTTP:
		if c.Source.HTTP.URL == "" {
			return fmt.Errorf("source.http.url is required for source kind %q", SourceHTTP)
		}
	case SourceYahoo:
		if c.Source.Yahoo.Symbol == "" {
			return fmt.Errorf("source.yahoo.symbol is required for source kind %q", SourceYahoo)
		}
	case SourceFile:
		if c.Source.File.Path == "" {
			return fmt.Errorf("source.file.path is required for source kind %q", SourceFile)
		}
	case SourcePostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for source kind %q", SourcePostgres)
		}
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when the cache is enabled")
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when the server is enabled")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
