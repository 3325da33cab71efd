/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/valpere/news2docx/internal/backend"
	"github.com/valpere/news2docx/internal/config"
	"github.com/valpere/news2docx/internal/engine"
	"github.com/valpere/news2docx/internal/ratelimit"
	"github.com/valpere/news2docx/internal/selector"
	"github.com/valpere/news2docx/internal/stage"
	"github.com/valpere/news2docx/internal/store"
	"github.com/valpere/news2docx/internal/validator"
)

const defaultConfigFile = "news2docx.yaml"

// loadConfig resolves the config file and layers flags, environment and
// file values.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	return config.Load(settings, path)
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func openStore(cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	if cfg.CachePath == "" {
		return nil, fmt.Errorf("no cache path configured")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return store.New(cfg.CachePath, logger)
}

// pipeline is the fully wired engine plus the resources it owns.
type pipeline struct {
	cfg    *config.Config
	logger *slog.Logger
	chat   *backend.ChatTransport
	engine *engine.Engine
	db     *store.Store
	cache  stage.Cache
}

// buildPipeline wires client, selector, stages and engine from cfg. With
// noCache set, or when the durable store cannot be opened, results are
// cached in memory for the lifetime of the process only.
func buildPipeline(cfg *config.Config, logger *slog.Logger, noCache bool) (*pipeline, error) {
	filter, err := cfg.Filter()
	if err != nil {
		return nil, err
	}

	p := &pipeline{cfg: cfg, logger: logger, chat: backend.NewChatTransport(nil)}

	if !noCache && cfg.CachePath != "" {
		db, err := openStore(cfg, logger)
		if err != nil {
			logger.Warn("durable cache unavailable, using memory cache", "path", cfg.CachePath, "error", err)
		} else {
			p.db = db
			p.cache = db
		}
	}
	if p.cache == nil {
		p.cache = store.NewMemoryCache(logger)
	}

	limiter := ratelimit.New(cfg.DefaultInterval(), cfg.LimiterOverrides())
	client := backend.NewClient(cfg.ClientConfig(), limiter, logger)
	client.Register(backend.KindChat, p.chat)
	racer := selector.New(client, cfg.RaceFanout, logger)

	var v *validator.Validator
	if cfg.ValidateLanguage {
		v = validator.New("en", cfg.TargetLanguageCode)
	}

	normalizer := stage.NewNormalizer(racer, p.cache, filter, cfg.NormalizeConfig(), logger)
	translator := stage.NewTranslator(racer, p.cache, filter, v, cfg.TranslateConfig(), logger)
	p.engine = engine.New(normalizer, translator, engine.Config{
		Concurrency:    cfg.Concurrency,
		MinSourceWords: cfg.MinSourceWords,
	}, logger)
	return p, nil
}

// backends returns the configured identities followed by any discovered
// ones. Discovery failures are logged and leave the configured list.
func (p *pipeline) backends(ctx context.Context) []backend.Identity {
	ids := p.cfg.Identities()
	req, ok := p.cfg.DiscoveryRequest()
	if !ok {
		return ids
	}

	found, err := p.chat.Discover(ctx, req)
	if err != nil {
		p.logger.Warn("model discovery failed", "endpoint", req.Endpoint, "error", err)
		return ids
	}
	p.logger.Info("discovered models", "endpoint", req.Endpoint, "count", len(found))
	return append(ids, found...)
}

func (p *pipeline) Close() {
	if p.db != nil {
		p.db.Close()
	}
}
