/*
config.go - Service configuration

PURPOSE:
  Loads the settings of the server, the generation backend, the narrative
  cache, the refresh coordinator and the background scheduler.

SOURCES (later wins):
  1. Defaults
  2. YAML file (optional, missing file means defaults)
  3. .env file in the working directory (optional), then the environment:
       BIZVISTA_DB, BIZVISTA_PORT,
       LLM_PROVIDER, LLM_MODEL, LLM_BASE_URL, LLM_API_KEY
  CLI flags override port and db on top of this.

EXAMPLE FILE:
  server:
    port: 4174
    db: bizvista.db
  llm:
    provider: ollama
    model: phi3:mini
    base_url: http://localhost:11434
    retries: 2
    backoff: 250ms
  refresh:
    min_reviews: 25
    timeout: 2.5s
  scheduler:
    enabled: true
    interval: 6h
    periods: [30d, 90d]

SEE ALSO:
  - cmd/server/main.go: wiring
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bizvista/review-engine/llm"
	"github.com/bizvista/review-engine/narrative"
	"github.com/bizvista/review-engine/review"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Narrative NarrativeConfig `yaml:"narrative"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig configures the HTTP server and database.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	DB             string   `yaml:"db"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LLMConfig selects the generation backend and its sampling parameters.
type LLMConfig struct {
	llm.Config `yaml:",inline"`

	Temperature float64       `yaml:"temperature"`
	Seed        int           `yaml:"seed"`
	ContextSize int           `yaml:"num_ctx"`
	MaxTokens   int           `yaml:"max_tokens"`
	Retries     int           `yaml:"retries"`
	Backoff     time.Duration `yaml:"backoff"`
}

// NarrativeConfig configures narrative resolution for interactive queries.
type NarrativeConfig struct {
	QueryTimeout time.Duration `yaml:"query_timeout"`
	CacheSize    int           `yaml:"cache_size"`
}

// RefreshConfig configures the refresh coordinator.
type RefreshConfig struct {
	MinReviews int           `yaml:"min_reviews"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SchedulerConfig configures the background refresh scheduler.
type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Periods  []string      `yaml:"periods"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           4174,
			DB:             "bizvista.db",
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:4174"},
		},
		LLM: LLMConfig{
			Config: llm.Config{
				Provider: "ollama",
				Model:    "phi3:mini",
				BaseURL:  "http://localhost:11434",
			},
			Temperature: narrative.DefaultOptions.Temperature,
			Seed:        narrative.DefaultOptions.Seed,
			ContextSize: narrative.DefaultOptions.ContextSize,
			MaxTokens:   narrative.DefaultOptions.MaxTokens,
			Retries:     2,
			Backoff:     250 * time.Millisecond,
		},
		Narrative: NarrativeConfig{
			QueryTimeout: 60 * time.Second,
			CacheSize:    256,
		},
		Refresh: RefreshConfig{
			MinReviews: 25,
			Timeout:    2500 * time.Millisecond,
		},
		Scheduler: SchedulerConfig{
			Interval: 6 * time.Hour,
			Periods:  []string{"30d", "90d", "ytd"},
		},
	}
}

// Load reads the YAML file at path (if any) over the defaults, then applies
// .env and environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("BIZVISTA_DB"); v != "" {
		c.Server.DB = v
	}
	if v := os.Getenv("BIZVISTA_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BIZVISTA_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.DB == "" {
		errs = append(errs, errors.New("server.db is required"))
	}
	switch c.LLM.Provider {
	case "ollama", "openai", "none":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q: must be ollama, openai or none", c.LLM.Provider))
	}
	if c.LLM.Retries < 0 {
		errs = append(errs, errors.New("llm.retries must not be negative"))
	}
	if c.Narrative.CacheSize < 1 {
		errs = append(errs, errors.New("narrative.cache_size must be positive"))
	}
	if c.Narrative.QueryTimeout <= 0 || c.Refresh.Timeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.Refresh.MinReviews < 1 {
		errs = append(errs, errors.New("refresh.min_reviews must be positive"))
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}
	if _, err := c.SchedulerPeriods(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.periods: %w", err))
	}
	return errors.Join(errs...)
}

// SchedulerPeriods parses the scheduler's period tokens.
func (c Config) SchedulerPeriods() ([]review.Period, error) {
	out := make([]review.Period, 0, len(c.Scheduler.Periods))
	for _, s := range c.Scheduler.Periods {
		p, err := review.ParsePeriod(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// NarrativeOptions are the sampling parameters sent with every call.
func (c Config) NarrativeOptions() narrative.Options {
	return narrative.Options{
		Temperature: c.LLM.Temperature,
		Seed:        c.LLM.Seed,
		ContextSize: c.LLM.ContextSize,
		MaxTokens:   c.LLM.MaxTokens,
	}
}
