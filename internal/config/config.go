// Package config loads the service configuration: YAML file first,
// environment overrides for secrets second, validation last.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cryptoscout/scout/internal/persistence/postgres"
	"github.com/cryptoscout/scout/internal/scan"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Scan      scan.Config     `yaml:"scan"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Market    MarketConfig    `yaml:"market"`
	AI        AIConfig        `yaml:"ai"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Database  postgres.Config `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SchedulerConfig configures the background scan loop.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
}

// MarketConfig configures the market data provider.
type MarketConfig struct {
	APIKey           string        `yaml:"api_key"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// AIConfig configures the LLM analyst. An empty key disables the
// model path; the pipeline then runs on the deterministic fallback.
type AIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// SentimentConfig configures the sentiment sources.
type SentimentConfig struct {
	NewsAPIKey    string `yaml:"news_api_key"`
	Subreddit     string `yaml:"subreddit"`
	RedditEnabled bool   `yaml:"reddit_enabled"`
}

// RedisConfig configures the optional rankings cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
		Scan: scan.DefaultConfig(),
		Scheduler: SchedulerConfig{
			Interval: 5 * time.Minute,
			Enabled:  true,
		},
		Market: MarketConfig{
			RequestTimeout:   15 * time.Second,
			MaxRetries:       3,
			FailureThreshold: 5,
			RecoveryTimeout:  2 * time.Minute,
		},
		AI: AIConfig{
			Model: "gpt-4o-mini",
		},
		Sentiment: SentimentConfig{
			Subreddit:     "CryptoCurrency",
			RedditEnabled: true,
		},
		Database: postgres.DefaultConfig(),
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Load reads the YAML file at path (optional), applies environment
// overrides, and validates. A missing file is not an error; a
// malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv lets secrets and endpoints come from the environment so
// they stay out of config files.
func applyEnv(cfg *Config) {
	setIfPresent := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setIfPresent(&cfg.Market.APIKey, "COINGECKO_API_KEY")
	setIfPresent(&cfg.AI.APIKey, "OPENAI_API_KEY")
	setIfPresent(&cfg.Sentiment.NewsAPIKey, "NEWS_API_KEY")
	setIfPresent(&cfg.Database.DSN, "PG_DSN")
	setIfPresent(&cfg.Redis.Addr, "REDIS_ADDR")
	setIfPresent(&cfg.Redis.Password, "REDIS_PASSWORD")
	setIfPresent(&cfg.Server.Addr, "SERVER_ADDR")
	setIfPresent(&cfg.Logging.Level, "LOG_LEVEL")
}

// Validate enforces the startup invariants. These are the only errors
// allowed to kill the process.
func (c Config) Validate() error {
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("config: database enabled but no DSN configured")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis enabled but no address configured")
	}
	if c.Scheduler.Interval < 10*time.Second {
		return fmt.Errorf("config: scheduler interval %s is below the 10s floor", c.Scheduler.Interval)
	}
	return nil
}
