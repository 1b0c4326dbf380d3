package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"fiszki/internal/openrouter"
)

const (
	defaultPort          = 8080
	defaultDevUserID     = "11111111-1111-1111-1111-111111111111"
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultGenerateLimit = 10
	defaultLimitWindow   = time.Minute
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
	// DevUserID is attributed to requests that carry no X-User-Id header.
	DevUserID string `yaml:"dev_user_id"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OpenRouterConfig configures the AI provider client. Empty fields fall back to the
// OPENROUTER_* environment variables and then to the client defaults.
type OpenRouterConfig struct {
	APIKey              string       `yaml:"api_key"`
	BaseURL             string       `yaml:"base_url"`
	DefaultModel        string       `yaml:"default_model"`
	DefaultSystemPrompt string       `yaml:"default_system_prompt"`
	AppURL              string       `yaml:"app_url"`
	AppTitle            string       `yaml:"app_title"`
	RequestTimeoutMS    int          `yaml:"request_timeout_ms"`
	Retry               RetryConfig  `yaml:"retry"`
	Params              ParamsConfig `yaml:"params"`
}

// RetryConfig keys are pointers so an explicit 0 reaches the client, which clamps it,
// while an absent key keeps the client default.
type RetryConfig struct {
	Attempts    *int `yaml:"attempts"`
	BaseDelayMS *int `yaml:"base_delay_ms"`
	MaxDelayMS  *int `yaml:"max_delay_ms"`
}

// ParamsConfig holds default model params; absent keys are not sent.
type ParamsConfig struct {
	Temperature      *float64 `yaml:"temperature"`
	MaxTokens        *int     `yaml:"max_tokens"`
	TopP             *float64 `yaml:"top_p"`
	PresencePenalty  *float64 `yaml:"presence_penalty"`
	FrequencyPenalty *float64 `yaml:"frequency_penalty"`
}

// PostgresConfig is optional; without a DSN generations are not persisted.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig enables rate limiting of the generate endpoint when URL is set.
type RedisConfig struct {
	URL           string        `yaml:"url"`
	GenerateLimit int           `yaml:"generate_limit"`
	Window        time.Duration `yaml:"window"`
}

// Load reads YAML configuration from disk, expands ${VAR} references, applies defaults
// and validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config file %q: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML bytes with the same expansion, defaults and validation as Load.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns a configuration usable without a file: everything else comes from
// the environment.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if strings.TrimSpace(c.Server.DevUserID) == "" {
		c.Server.DevUserID = defaultDevUserID
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
	if c.Redis.GenerateLimit == 0 {
		c.Redis.GenerateLimit = defaultGenerateLimit
	}
	if c.Redis.Window == 0 {
		c.Redis.Window = defaultLimitWindow
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if _, err := uuid.Parse(c.Server.DevUserID); err != nil {
		return fmt.Errorf("server.dev_user_id must be a UUID, got %q", c.Server.DevUserID)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn or error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be one of %q or %q", c.Log.Format, "text", "json")
	}

	if err := c.OpenRouter.validate(); err != nil {
		return err
	}

	if c.Redis.GenerateLimit < 0 {
		return fmt.Errorf("redis.generate_limit must not be negative, got %d", c.Redis.GenerateLimit)
	}
	if c.Redis.Window < time.Second {
		return fmt.Errorf("redis.window must be at least 1s, got %s", c.Redis.Window)
	}

	return nil
}

func (o OpenRouterConfig) validate() error {
	if o.BaseURL != "" && !strings.HasPrefix(o.BaseURL, "http://") && !strings.HasPrefix(o.BaseURL, "https://") {
		return fmt.Errorf("openrouter.base_url must be an http(s) URL, got %q", o.BaseURL)
	}
	if o.RequestTimeoutMS < 0 {
		return fmt.Errorf("openrouter.request_timeout_ms must not be negative, got %d", o.RequestTimeoutMS)
	}
	if o.Retry.Attempts != nil && *o.Retry.Attempts < 0 {
		return fmt.Errorf("openrouter.retry.attempts must not be negative, got %d", *o.Retry.Attempts)
	}
	if negative(o.Retry.BaseDelayMS) || negative(o.Retry.MaxDelayMS) {
		return fmt.Errorf("openrouter.retry delays must not be negative")
	}
	return nil
}

func negative(v *int) bool { return v != nil && *v < 0 }

// ClientOptions maps the section onto client options. Only non-empty values become
// explicit options so the client's environment fallbacks still apply.
func (o OpenRouterConfig) ClientOptions() []openrouter.Option {
	var opts []openrouter.Option

	strOpts := []struct {
		value string
		opt   func(string) openrouter.Option
	}{
		{o.APIKey, openrouter.WithAPIKey},
		{o.BaseURL, openrouter.WithBaseURL},
		{o.DefaultModel, openrouter.WithDefaultModel},
		{o.DefaultSystemPrompt, openrouter.WithDefaultSystemPrompt},
		{o.AppURL, openrouter.WithAppURL},
		{o.AppTitle, openrouter.WithAppTitle},
	}
	for _, s := range strOpts {
		if strings.TrimSpace(s.value) != "" {
			opts = append(opts, s.opt(s.value))
		}
	}

	if o.RequestTimeoutMS > 0 {
		opts = append(opts, openrouter.WithRequestTimeout(time.Duration(o.RequestTimeoutMS)*time.Millisecond))
	}

	if o.Retry.Attempts != nil {
		opts = append(opts, openrouter.WithRetryAttempts(*o.Retry.Attempts))
	}
	if o.Retry.BaseDelayMS != nil {
		opts = append(opts, openrouter.WithRetryBaseDelay(time.Duration(*o.Retry.BaseDelayMS)*time.Millisecond))
	}
	if o.Retry.MaxDelayMS != nil {
		opts = append(opts, openrouter.WithRetryMaxDelay(time.Duration(*o.Retry.MaxDelayMS)*time.Millisecond))
	}

	opts = append(opts,
		openrouter.WithDefaultModelParams(openrouter.ModelParams{
			Temperature:      o.Params.Temperature,
			MaxTokens:        o.Params.MaxTokens,
			TopP:             o.Params.TopP,
			PresencePenalty:  o.Params.PresencePenalty,
			FrequencyPenalty: o.Params.FrequencyPenalty,
		}),
	)

	return opts
}
