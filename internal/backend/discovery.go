package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	openai "github.com/openai/openai-go"
)

// DiscoveryConfig describes an OpenAI-compatible endpoint whose model list
// is turned into chat identities at batch start.
type DiscoveryConfig struct {
	Endpoint        string
	APIKey          string
	Include         []string
	ExcludePrefixes []string
	Limit           int
	// RateBucket is shared by every discovered identity when set; otherwise
	// each model gets its own bucket.
	RateBucket string
}

// Discover lists the endpoint's models once and returns a sorted snapshot
// of identities. Models matching an excluded prefix are skipped; when
// Include is non-empty a model must contain one of its substrings.
func (t *ChatTransport) Discover(ctx context.Context, cfg DiscoveryConfig) ([]Identity, error) {
	probe := Identity{Name: "discovery", Endpoint: cfg.Endpoint, APIKey: cfg.APIKey}
	client := openai.NewClient(t.options(probe)...)

	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	var ids []string
	for _, m := range page.Data {
		if keepModel(m.ID, cfg.Include, cfg.ExcludePrefixes) {
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)
	if cfg.Limit > 0 && len(ids) > cfg.Limit {
		ids = ids[:cfg.Limit]
	}

	identities := make([]Identity, 0, len(ids))
	for _, model := range ids {
		bucket := cfg.RateBucket
		if bucket == "" {
			bucket = "model:" + model
		}
		identities = append(identities, Identity{
			Name:       "discovered/" + model,
			Kind:       KindChat,
			Endpoint:   cfg.Endpoint,
			Model:      model,
			RateBucket: bucket,
			APIKey:     cfg.APIKey,
		})
	}
	return identities, nil
}

func keepModel(id string, include, exclude []string) bool {
	if id == "" {
		return false
	}
	for _, p := range exclude {
		if p != "" && strings.HasPrefix(id, p) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, s := range include {
		if strings.Contains(id, s) {
			return true
		}
	}
	return false
}
