// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Checkpoint backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// MaxRetryLimit bounds harvest.retry_limit.
const MaxRetryLimit = 20

// EnvPrefix namespaces every environment override, e.g. HARVESTER_HARVEST_TARGET_BOOKS.
const EnvPrefix = "HARVESTER"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Harvest    HarvestConfig    `mapstructure:"harvest"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Output     OutputConfig     `mapstructure:"output"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	DB         DBConfig         `mapstructure:"db"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// HarvestConfig governs the acquisition loop.
type HarvestConfig struct {
	TargetBooks        int           `mapstructure:"target_books"`
	MinWords           int           `mapstructure:"min_words"`
	CatalogURL         string        `mapstructure:"catalog_url"`
	ForceHTTPS         bool          `mapstructure:"force_https"`
	ConcurrentRequests int           `mapstructure:"concurrent_requests"`
	RequestsDelay      time.Duration `mapstructure:"requests_delay"`
	RetryLimit         int           `mapstructure:"retry_limit"`
	InitialBackoff     time.Duration `mapstructure:"initial_backoff"`
	// RateLimitRPS caps requests per second per host; zero disables it.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	Topic          string  `mapstructure:"topic"`
}

// HTTPConfig configures the transport.
type HTTPConfig struct {
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
}

// OutputConfig sets where book texts and the file checkpoint live.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend string `mapstructure:"backend"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN       string `mapstructure:"dsn"`
	MaxConns  int32  `mapstructure:"max_conns"`
	Table     string `mapstructure:"table"`
	RunsTable string `mapstructure:"runs_table"`
}

// StorageConfig enables the GCS mirror when a bucket is set.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig enables accepted-book notifications when a topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the optional status server. An empty Addr disables it.
type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// aliases maps short environment names onto config keys.
var aliases = map[string]string{
	"harvest.target_books":        "TARGET_BOOKS",
	"harvest.min_words":           "MIN_WORDS",
	"output.dir":                  "OUTPUT_DIR",
	"harvest.concurrent_requests": "CONCURRENT_REQUESTS",
	"harvest.requests_delay":      "REQUESTS_DELAY",
	"harvest.retry_limit":         "RETRY_LIMIT",
	"harvest.initial_backoff":     "INITIAL_BACKOFF",
}

// Load builds a Config from defaults, an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, alias := range aliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", alias, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(secondsToDurationHook())); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.target_books", 1664)
	v.SetDefault("harvest.min_words", 10000)
	v.SetDefault("harvest.catalog_url", "https://gutendex.com")
	v.SetDefault("harvest.force_https", true)
	v.SetDefault("harvest.concurrent_requests", 10)
	v.SetDefault("harvest.requests_delay", "120ms")
	v.SetDefault("harvest.retry_limit", 4)
	v.SetDefault("harvest.initial_backoff", "1s")
	v.SetDefault("harvest.rate_limit_rps", 0)
	v.SetDefault("harvest.rate_limit_burst", 1)
	v.SetDefault("harvest.respect_robots", false)
	v.SetDefault("harvest.topic", "book.accepted")
	v.SetDefault("http.user_agent", "book-harvester/1.0 (+https://github.com/JakeFAU/book-harvester)")
	v.SetDefault("http.timeout", "60s")
	v.SetDefault("http.max_body_bytes", 64<<20)
	v.SetDefault("output.dir", "library")
	v.SetDefault("checkpoint.backend", BackendFile)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.table", "harvested_books")
	v.SetDefault("db.runs_table", "harvest_runs")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "books")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("server.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// secondsToDurationHook accepts bare numbers as seconds ("0.12", 1) alongside
// Go duration strings ("120ms").
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(_ reflect.Type, t reflect.Type, data any) (any, error) {
		if t != durationType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			s := strings.TrimSpace(v)
			if secs, err := strconv.ParseFloat(s, 64); err == nil {
				return seconds(secs), nil
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("invalid duration %q: %w", v, err)
			}
			return d, nil
		case float64:
			return seconds(v), nil
		case float32:
			return seconds(float64(v)), nil
		case int:
			return seconds(float64(v)), nil
		case int64:
			return seconds(float64(v)), nil
		}
		return data, nil
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	h := c.Harvest
	if h.TargetBooks <= 0 {
		return fmt.Errorf("harvest.target_books must be > 0")
	}
	if h.MinWords <= 0 {
		return fmt.Errorf("harvest.min_words must be > 0")
	}
	if h.CatalogURL == "" {
		return fmt.Errorf("harvest.catalog_url is required")
	}
	if h.ConcurrentRequests <= 0 {
		return fmt.Errorf("harvest.concurrent_requests must be > 0")
	}
	if h.RequestsDelay < 0 {
		return fmt.Errorf("harvest.requests_delay must be >= 0")
	}
	if h.RetryLimit < 0 || h.RetryLimit > MaxRetryLimit {
		return fmt.Errorf("harvest.retry_limit must be between 0 and %d", MaxRetryLimit)
	}
	if h.InitialBackoff < 0 {
		return fmt.Errorf("harvest.initial_backoff must be >= 0")
	}
	if h.RateLimitRPS < 0 {
		return fmt.Errorf("harvest.rate_limit_rps must be >= 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	switch c.Checkpoint.Backend {
	case BackendFile:
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres checkpoint backend")
		}
	default:
		return fmt.Errorf("checkpoint.backend must be %q or %q, got %q", BackendFile, BackendPostgres, c.Checkpoint.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// RunHistoryEnabled reports whether run rows are persisted.
func (c Config) RunHistoryEnabled() bool {
	return c.DB.DSN != ""
}
