// Package config loads news2docx settings from a YAML file and N2D_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/news2docx/internal/backend"
	"github.com/valpere/news2docx/internal/paragraph"
	"github.com/valpere/news2docx/internal/ratelimit"
	"github.com/valpere/news2docx/internal/stage"
)

const EnvPrefix = "N2D"

var (
	ErrInvalidBand        = errors.New("word_min must be positive and not greater than word_max")
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	ErrInvalidAttempts    = errors.New("attempt counts must be at least 1")
	ErrInvalidTimeout     = errors.New("call_timeout must be positive")
	ErrMissingTarget      = errors.New("target_language_code is required")
	ErrInvalidBackend     = errors.New("invalid backend")
	ErrDuplicateBackend   = errors.New("duplicate backend name")
	ErrInvalidPattern     = errors.New("invalid forbidden pattern")
	ErrNegativeValue      = errors.New("value must not be negative")
)

type BackendConfig struct {
	Name         string        `mapstructure:"name"`
	Kind         string        `mapstructure:"kind"`
	Endpoint     string        `mapstructure:"endpoint"`
	Model        string        `mapstructure:"model"`
	RateBucket   string        `mapstructure:"rate_bucket"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
	RPM          int           `mapstructure:"rpm"`
	APIKeyEnv    string        `mapstructure:"api_key_env"`
	Credentials  string        `mapstructure:"credentials"`
}

type DiscoveryConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Endpoint        string   `mapstructure:"endpoint"`
	APIKeyEnv       string   `mapstructure:"api_key_env"`
	Include         []string `mapstructure:"include"`
	ExcludePrefixes []string `mapstructure:"exclude_prefixes"`
	Limit           int      `mapstructure:"limit"`
	RateBucket      string   `mapstructure:"rate_bucket"`
}

type Config struct {
	TargetLanguage     string `mapstructure:"target_language"`
	TargetLanguageCode string `mapstructure:"target_language_code"`
	ValidateLanguage   bool   `mapstructure:"validate_language"`

	WordMin                int      `mapstructure:"word_min"`
	WordMax                int      `mapstructure:"word_max"`
	MinParagraphWords      int      `mapstructure:"min_paragraph_words"`
	MinSourceWords         int      `mapstructure:"min_source_words"`
	MergeShortWords        int      `mapstructure:"merge_short_words"`
	ParagraphCeilingFactor int      `mapstructure:"paragraph_ceiling_factor"`
	ForbiddenPrefixes      []string `mapstructure:"forbidden_prefixes"`
	ForbiddenPatterns      []string `mapstructure:"forbidden_patterns"`

	Concurrency       int           `mapstructure:"concurrency"`
	RaceFanout        int           `mapstructure:"race_fanout"`
	RateInterval      time.Duration `mapstructure:"rate_interval"`
	PerModelRPM       int           `mapstructure:"per_model_rpm"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	CallAttempts      int           `mapstructure:"call_attempts"`
	NormalizeAttempts int           `mapstructure:"normalize_attempts"`
	TranslateAttempts int           `mapstructure:"translate_attempts"`
	MaxTokens         int           `mapstructure:"max_tokens"`

	CachePath string `mapstructure:"cache_path"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Backends  []BackendConfig `mapstructure:"backends"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("target_language", "Chinese")
	v.SetDefault("target_language_code", "zh")
	v.SetDefault("validate_language", true)
	v.SetDefault("word_min", 400)
	v.SetDefault("word_max", 500)
	v.SetDefault("min_paragraph_words", 3)
	v.SetDefault("min_source_words", 0)
	v.SetDefault("merge_short_words", 80)
	v.SetDefault("paragraph_ceiling_factor", 2)
	v.SetDefault("forbidden_prefixes", []string{})
	v.SetDefault("forbidden_patterns", []string{})
	v.SetDefault("concurrency", 4)
	v.SetDefault("race_fanout", 0)
	v.SetDefault("rate_interval", time.Duration(0))
	v.SetDefault("per_model_rpm", 0)
	v.SetDefault("call_timeout", backend.DefaultTimeout)
	v.SetDefault("call_attempts", backend.DefaultAttempts)
	v.SetDefault("normalize_attempts", 3)
	v.SetDefault("translate_attempts", 2)
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("cache_path", "./data/news2docx.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("discovery.enabled", false)
	v.SetDefault("discovery.endpoint", "https://api.siliconflow.cn/v1")
	v.SetDefault("discovery.api_key_env", "SILICONFLOW_API_KEY")
	v.SetDefault("discovery.exclude_prefixes", []string{"Pro/"})
	v.SetDefault("discovery.limit", 0)
}

// Load reads path (when non-empty) into v, applies N2D_* environment
// overrides and validates the result. A nil v uses a fresh viper instance;
// callers pass their own to bind command-line flags first.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.WordMin <= 0 || c.WordMax < c.WordMin {
		return ErrInvalidBand
	}
	if c.TargetLanguageCode == "" {
		return ErrMissingTarget
	}
	if c.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.CallAttempts < 1 || c.NormalizeAttempts < 1 || c.TranslateAttempts < 1 {
		return ErrInvalidAttempts
	}
	if c.CallTimeout <= 0 {
		return ErrInvalidTimeout
	}
	for name, n := range map[string]int{
		"min_paragraph_words": c.MinParagraphWords,
		"min_source_words":    c.MinSourceWords,
		"merge_short_words":   c.MergeShortWords,
		"race_fanout":         c.RaceFanout,
		"per_model_rpm":       c.PerModelRPM,
		"max_tokens":          c.MaxTokens,
		"discovery.limit":     c.Discovery.Limit,
	} {
		if n < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeValue, name)
		}
	}
	if c.RateInterval < 0 {
		return fmt.Errorf("%w: rate_interval", ErrNegativeValue)
	}
	if _, err := c.Filter(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("%w: backends[%d] has no name", ErrInvalidBackend, i)
		}
		if seen[b.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateBackend, b.Name)
		}
		seen[b.Name] = true
		switch backend.Kind(b.Kind) {
		case backend.KindChat:
			if b.Model == "" {
				return fmt.Errorf("%w: backends[%d] %s needs a model", ErrInvalidBackend, i, b.Name)
			}
		case backend.KindGoogle:
		default:
			return fmt.Errorf("%w: backends[%d] %s has unknown kind %q", ErrInvalidBackend, i, b.Name, b.Kind)
		}
		if b.RPM < 0 || b.RateInterval < 0 {
			return fmt.Errorf("%w: backends[%d] %s rate", ErrNegativeValue, i, b.Name)
		}
	}
	return nil
}

// Filter compiles the forbidden prefixes and patterns.
func (c *Config) Filter() (*paragraph.Filter, error) {
	return paragraph.NewFilter(c.ForbiddenPrefixes, c.ForbiddenPatterns, c.MinParagraphWords)
}

func (c *Config) Target() stage.Target {
	return stage.Target{Name: c.TargetLanguage, Code: c.TargetLanguageCode}
}

// Identities resolves the configured backends, reading API keys from the
// environment variables they name.
func (c *Config) Identities() []backend.Identity {
	out := make([]backend.Identity, 0, len(c.Backends))
	for _, b := range c.Backends {
		id := backend.Identity{
			Name:        b.Name,
			Kind:        backend.Kind(b.Kind),
			Endpoint:    b.Endpoint,
			Model:       b.Model,
			RateBucket:  b.RateBucket,
			Credentials: b.Credentials,
		}
		if b.APIKeyEnv != "" {
			id.APIKey = os.Getenv(b.APIKeyEnv)
		}
		out = append(out, id)
	}
	return out
}

// DefaultInterval is the spacing applied to buckets without an override.
// An explicit rate_interval wins over per_model_rpm.
func (c *Config) DefaultInterval() time.Duration {
	if c.RateInterval > 0 {
		return c.RateInterval
	}
	return ratelimit.IntervalFromRPM(c.PerModelRPM)
}

// LimiterOverrides maps rate buckets to the interval configured for them.
// When several backends share a bucket the longest interval wins.
func (c *Config) LimiterOverrides() map[string]time.Duration {
	out := make(map[string]time.Duration)
	for _, b := range c.Backends {
		d := b.RateInterval
		if d <= 0 {
			d = ratelimit.IntervalFromRPM(b.RPM)
		}
		if d <= 0 {
			continue
		}
		bucket := b.RateBucket
		if bucket == "" {
			bucket = b.Name
		}
		if d > out[bucket] {
			out[bucket] = d
		}
	}
	return out
}

// DiscoveryRequest returns the discovery settings with the API key
// resolved, or false when discovery is disabled.
func (c *Config) DiscoveryRequest() (backend.DiscoveryConfig, bool) {
	d := c.Discovery
	if !d.Enabled {
		return backend.DiscoveryConfig{}, false
	}
	return backend.DiscoveryConfig{
		Endpoint:        d.Endpoint,
		APIKey:          os.Getenv(d.APIKeyEnv),
		Include:         d.Include,
		ExcludePrefixes: d.ExcludePrefixes,
		Limit:           d.Limit,
		RateBucket:      d.RateBucket,
	}, true
}

func (c *Config) NormalizeConfig() stage.NormalizeConfig {
	return stage.NormalizeConfig{
		WordMin:         c.WordMin,
		WordMax:         c.WordMax,
		Attempts:        c.NormalizeAttempts,
		MergeShortWords: c.MergeShortWords,
		CeilingFactor:   c.ParagraphCeilingFactor,
		MaxTokens:       c.MaxTokens,
	}
}

func (c *Config) TranslateConfig() stage.TranslateConfig {
	return stage.TranslateConfig{Attempts: c.TranslateAttempts, MaxTokens: c.MaxTokens}
}

func (c *Config) ClientConfig() backend.ClientConfig {
	return backend.ClientConfig{Timeout: c.CallTimeout, Attempts: c.CallAttempts}
}
