package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valpere/news2docx/internal/backend"
)

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "news2docx.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WordMin != 400 || cfg.WordMax != 500 {
		t.Errorf("Expected band 400-500, got %d-%d", cfg.WordMin, cfg.WordMax)
	}
	if cfg.TargetLanguageCode != "zh" || cfg.Concurrency != 4 {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.CallTimeout != 20*time.Second || cfg.CallAttempts != 4 {
		t.Errorf("Expected 20s timeout and 4 attempts, got %v/%d", cfg.CallTimeout, cfg.CallAttempts)
	}
	if len(cfg.Discovery.ExcludePrefixes) != 1 || cfg.Discovery.ExcludePrefixes[0] != "Pro/" {
		t.Errorf("Expected Pro/ excluded by default, got %v", cfg.Discovery.ExcludePrefixes)
	}
}

func TestLoad_File(t *testing.T) {
	path := createTempConfigFile(t, `
target_language: French
target_language_code: fr
word_min: 300
word_max: 350
concurrency: 2
call_timeout: 5s
forbidden_prefixes:
  - "Photo:"
forbidden_patterns:
  - 'Copyright \d{4}'
backends:
  - name: qwen
    kind: chat
    model: Qwen/Qwen2.5-7B-Instruct
    endpoint: https://api.siliconflow.cn/v1
    api_key_env: TEST_N2D_KEY
    rpm: 60
  - name: gt
    kind: google
    credentials: /tmp/creds.json
`)
	t.Setenv("TEST_N2D_KEY", "secret")

	cfg, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Target().Code != "fr" || cfg.Target().Name != "French" {
		t.Errorf("Unexpected target %+v", cfg.Target())
	}
	if cfg.WordMin != 300 || cfg.CallTimeout != 5*time.Second || cfg.Concurrency != 2 {
		t.Errorf("File values not applied: %+v", cfg)
	}

	ids := cfg.Identities()
	if len(ids) != 2 {
		t.Fatalf("Expected 2 identities, got %d", len(ids))
	}
	if ids[0].Kind != backend.KindChat || ids[0].APIKey != "secret" {
		t.Errorf("Unexpected chat identity %+v", ids[0])
	}
	if ids[1].Kind != backend.KindGoogle || ids[1].Credentials != "/tmp/creds.json" {
		t.Errorf("Unexpected google identity %+v", ids[1])
	}

	if d := cfg.LimiterOverrides()["qwen"]; d != time.Second {
		t.Errorf("Expected 1s interval for 60 rpm, got %v", d)
	}

	f, err := cfg.Filter()
	if err != nil {
		t.Fatal(err)
	}
	if !f.IsForbidden("Copyright 2024 Example News") || !f.IsForbidden("Photo: AP") {
		t.Error("Expected configured prefixes and patterns to be forbidden")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := createTempConfigFile(t, "word_min: 300\nword_max: 400\n")
	t.Setenv("N2D_WORD_MAX", "450")
	t.Setenv("N2D_PER_MODEL_RPM", "120")

	cfg, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WordMax != 450 {
		t.Errorf("Expected env override 450, got %d", cfg.WordMax)
	}
	if cfg.DefaultInterval() != 500*time.Millisecond {
		t.Errorf("Expected 500ms default interval, got %v", cfg.DefaultInterval())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(nil, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			TargetLanguageCode: "zh",
			WordMin:            400,
			WordMax:            500,
			Concurrency:        4,
			CallTimeout:        time.Second,
			CallAttempts:       1,
			NormalizeAttempts:  1,
			TranslateAttempts:  1,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"inverted band", func(c *Config) { c.WordMin, c.WordMax = 500, 400 }, ErrInvalidBand},
		{"zero band", func(c *Config) { c.WordMin = 0 }, ErrInvalidBand},
		{"no target", func(c *Config) { c.TargetLanguageCode = "" }, ErrMissingTarget},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, ErrInvalidConcurrency},
		{"zero attempts", func(c *Config) { c.TranslateAttempts = 0 }, ErrInvalidAttempts},
		{"zero timeout", func(c *Config) { c.CallTimeout = 0 }, ErrInvalidTimeout},
		{"negative fanout", func(c *Config) { c.RaceFanout = -1 }, ErrNegativeValue},
		{"bad regex", func(c *Config) { c.ForbiddenPatterns = []string{"("} }, ErrInvalidPattern},
		{"unknown kind", func(c *Config) {
			c.Backends = []BackendConfig{{Name: "x", Kind: "deepl"}}
		}, ErrInvalidBackend},
		{"chat without model", func(c *Config) {
			c.Backends = []BackendConfig{{Name: "x", Kind: "chat"}}
		}, ErrInvalidBackend},
		{"duplicate name", func(c *Config) {
			c.Backends = []BackendConfig{{Name: "x", Kind: "google"}, {Name: "x", Kind: "google"}}
		}, ErrDuplicateBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Expected valid config, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLimiterOverrides_SharedBucketTakesLongest(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{
		{Name: "a", RateBucket: "sf", RPM: 120},
		{Name: "b", RateBucket: "sf", RateInterval: 2 * time.Second},
		{Name: "c"},
	}}
	got := cfg.LimiterOverrides()
	if got["sf"] != 2*time.Second {
		t.Errorf("Expected 2s for shared bucket, got %v", got["sf"])
	}
	if _, ok := got["c"]; ok {
		t.Error("Backends without a rate should not get an override")
	}
}

func TestDiscoveryRequest(t *testing.T) {
	t.Setenv("SF_KEY", "k")
	cfg := Config{Discovery: DiscoveryConfig{Endpoint: "https://x/v1", APIKeyEnv: "SF_KEY", Limit: 3}}
	if _, ok := cfg.DiscoveryRequest(); ok {
		t.Error("Disabled discovery should not produce a request")
	}
	cfg.Discovery.Enabled = true
	req, ok := cfg.DiscoveryRequest()
	if !ok || req.APIKey != "k" || req.Limit != 3 {
		t.Errorf("Unexpected discovery request %+v", req)
	}
}
