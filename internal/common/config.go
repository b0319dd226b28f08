// Package common provides shared utilities for fnoscreen
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// DateLayout is the calendar date format used in config, storage keys and the API.
const DateLayout = "2006-01-02"

// Config holds all configuration for fnoscreen
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Universe    UniverseConfig  `toml:"universe"`
	Clients     ClientsConfig   `toml:"clients"`
	Reconcile   ReconcileConfig `toml:"reconcile"`
	Screens     ScreensConfig   `toml:"screens"`
	Schedule    ScheduleConfig  `toml:"schedule"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	CORSOrigin string `toml:"cors_origin"` // empty allows any origin
}

// StorageConfig selects and configures the storage backend.
// Backends: "sqlite" (default, embedded), "postgres", "surrealdb".
type StorageConfig struct {
	Backend   string `toml:"backend"`
	Path      string `toml:"path"` // sqlite file
	DSN       string `toml:"dsn"`  // postgres
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// PipelineConfig holds collection settings
type PipelineConfig struct {
	StartDate    string `toml:"start_date"` // YYYY-MM-DD, fixed, not rolling
	Workers      int    `toml:"workers"`
	MaxAttempts  int    `toml:"max_attempts"`
	BackoffBase  string `toml:"backoff_base"`
	BackoffMax   string `toml:"backoff_max"`
	FetchTimeout string `toml:"fetch_timeout"`
}

// GetStartDate parses the configured start date, falling back to 2025-01-01.
func (c *PipelineConfig) GetStartDate() time.Time {
	t, err := time.Parse(DateLayout, c.StartDate)
	if err != nil {
		return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// GetBackoffBase parses and returns the initial retry backoff
func (c *PipelineConfig) GetBackoffBase() time.Duration {
	return parseDuration(c.BackoffBase, time.Second)
}

// GetBackoffMax parses and returns the retry backoff cap
func (c *PipelineConfig) GetBackoffMax() time.Duration {
	return parseDuration(c.BackoffMax, 30*time.Second)
}

// GetFetchTimeout parses and returns the per-symbol fetch timeout
func (c *PipelineConfig) GetFetchTimeout() time.Duration {
	return parseDuration(c.FetchTimeout, 60*time.Second)
}

// UniverseConfig defines the symbol universe.
// When Symbols is empty the universe is read from the primary source index listing.
type UniverseConfig struct {
	Symbols []string `toml:"symbols"`
	Index   string   `toml:"index"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	RequestInterval string      `toml:"request_interval"` // minimum gap between any two external calls
	NSE             NSEConfig   `toml:"nse"`
	Yahoo           YahooConfig `toml:"yahoo"`
}

// GetRequestInterval parses and returns the shared pacing interval
func (c *ClientsConfig) GetRequestInterval() time.Duration {
	return parseDuration(c.RequestInterval, 500*time.Millisecond)
}

// NSEConfig holds primary source configuration
type NSEConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *NSEConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// YahooConfig holds secondary source configuration
type YahooConfig struct {
	BaseURL         string            `toml:"base_url"`
	Timeout         string            `toml:"timeout"`
	SymbolSuffix    string            `toml:"symbol_suffix"`
	SymbolOverrides map[string]string `toml:"symbol_overrides"`
	BenchmarkSymbol string            `toml:"benchmark_symbol"`
	BenchmarkName   string            `toml:"benchmark_name"`
}

// GetTimeout parses and returns the timeout duration
func (c *YahooConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// ReconcileConfig holds mismatch detection settings
type ReconcileConfig struct {
	MismatchTolerance float64 `toml:"mismatch_tolerance"`
}

// ScreensConfig holds screen engine settings
type ScreensConfig struct {
	DefinitionsFile string `toml:"definitions_file"`
	SparklinePoints int    `toml:"sparkline_points"`
}

// ScheduleConfig holds scheduled pipeline settings. An empty cron disables scheduling.
type ScheduleConfig struct {
	CollectCron string `toml:"collect_cron"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string   `toml:"level"`
	Format   string   `toml:"format"`
	Outputs  []string `toml:"outputs"`
	FilePath string   `toml:"file_path"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend:   "sqlite",
			Path:      "data/stocks.db",
			Address:   "ws://localhost:8000/rpc",
			Namespace: "fnoscreen",
			Database:  "market",
			Username:  "root",
			Password:  "root",
		},
		Pipeline: PipelineConfig{
			StartDate:    "2025-01-01",
			Workers:      5,
			MaxAttempts:  3,
			BackoffBase:  "1s",
			BackoffMax:   "30s",
			FetchTimeout: "60s",
		},
		Universe: UniverseConfig{
			Index: "SECURITIES IN F&O",
		},
		Clients: ClientsConfig{
			RequestInterval: "500ms",
			NSE: NSEConfig{
				BaseURL: "https://www.nseindia.com",
				Timeout: "30s",
			},
			Yahoo: YahooConfig{
				BaseURL:         "https://query1.finance.yahoo.com",
				Timeout:         "30s",
				SymbolSuffix:    ".NS",
				BenchmarkSymbol: "^NSEI",
				BenchmarkName:   "NIFTY 50",
			},
		},
		Reconcile: ReconcileConfig{
			MismatchTolerance: 0.05,
		},
		Screens: ScreensConfig{
			SparklinePoints: 50,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"console"},
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FNOSCREEN_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("FNOSCREEN_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("FNOSCREEN_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("FNOSCREEN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if v := os.Getenv("FNOSCREEN_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = v
	}
	if v := os.Getenv("FNOSCREEN_STORAGE_PATH"); v != "" {
		config.Storage.Path = v
	}
	if v := os.Getenv("FNOSCREEN_STORAGE_DSN"); v != "" {
		config.Storage.DSN = v
	}
	if v := os.Getenv("FNOSCREEN_STORAGE_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("FNOSCREEN_STORAGE_PASSWORD"); v != "" {
		config.Storage.Password = v
	}

	if v := os.Getenv("FNOSCREEN_START_DATE"); v != "" {
		config.Pipeline.StartDate = v
	}
	if v := os.Getenv("FNOSCREEN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Pipeline.Workers = n
		}
	}
	if v := os.Getenv("FNOSCREEN_REQUEST_INTERVAL"); v != "" {
		config.Clients.RequestInterval = v
	}
	if v := os.Getenv("FNOSCREEN_SYMBOLS"); v != "" {
		var symbols []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				symbols = append(symbols, s)
			}
		}
		config.Universe.Symbols = symbols
	}
	if v := os.Getenv("FNOSCREEN_COLLECT_CRON"); v != "" {
		config.Schedule.CollectCron = v
	}
}

// Validate rejects values that would make the pipeline misbehave rather than fail loudly.
func (c *Config) Validate() error {
	if _, err := time.Parse(DateLayout, c.Pipeline.StartDate); err != nil {
		return fmt.Errorf("invalid pipeline.start_date %q: expected YYYY-MM-DD", c.Pipeline.StartDate)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Reconcile.MismatchTolerance < 0 {
		return fmt.Errorf("reconcile.mismatch_tolerance must not be negative")
	}
	switch c.Storage.Backend {
	case "sqlite", "postgres", "surrealdb":
	default:
		return fmt.Errorf("unknown storage backend: %s (supported: sqlite, postgres, surrealdb)", c.Storage.Backend)
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
