package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/valpere/news2docx/internal"
	"github.com/valpere/news2docx/internal/backend"
	"github.com/valpere/news2docx/internal/paragraph"
	"github.com/valpere/news2docx/internal/store"
)

// NormalizeConfig holds the word band and retry policy of the normalizer.
type NormalizeConfig struct {
	WordMin int
	WordMax int
	// Attempts bounds the number of races per article.
	Attempts int
	// MergeShortWords merges source paragraphs shorter than this into a
	// neighbour before anything else happens. Zero disables merging.
	MergeShortWords int
	// CeilingFactor scales the source paragraph count into the maximum
	// accepted paragraph count.
	CeilingFactor int
	MaxTokens     int
}

func (c NormalizeConfig) withDefaults() NormalizeConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.CeilingFactor <= 0 {
		c.CeilingFactor = 2
	}
	return c
}

// Normalizer rewrites articles into the configured word band.
type Normalizer struct {
	racer  Racer
	cache  Cache
	filter *paragraph.Filter
	cfg    NormalizeConfig
	logger *slog.Logger
}

func NewNormalizer(racer Racer, cache Cache, filter *paragraph.Filter, cfg NormalizeConfig, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		racer:  racer,
		cache:  cache,
		filter: filter,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// candidate is one parsed normalization reply.
type candidate struct {
	paras   []string
	words   int
	paraOK  bool
	backend string
	seq     int
}

func paragraphFloor(sourceParas int) int {
	if sourceParas <= 1 {
		return 1
	}
	return 2
}

func paragraphCeiling(sourceParas, factor int) int {
	return sourceParas*factor + 2
}

func (n *Normalizer) distance(words int) int {
	switch {
	case words < n.cfg.WordMin:
		return n.cfg.WordMin - words
	case words > n.cfg.WordMax:
		return words - n.cfg.WordMax
	}
	return 0
}

// better reports whether a should be preferred over b: smaller distance to
// the band, then a valid paragraph structure, then the later response.
func (n *Normalizer) better(a, b *candidate) bool {
	if b == nil {
		return true
	}
	da, db := n.distance(a.words), n.distance(b.words)
	if da != db {
		return da < db
	}
	if a.paraOK != b.paraOK {
		return a.paraOK
	}
	return a.seq > b.seq
}

func (n *Normalizer) cacheKey(body []string) store.Key {
	return store.NewKey(fmt.Sprintf("%s:%d-%d", NameNormalize, n.cfg.WordMin, n.cfg.WordMax), paragraph.Join(body), "")
}

// Normalize returns the article rewritten to a word count inside
// [WordMin, WordMax]. A cleaned source already inside the band is returned
// without any remote call. When every attempt misses, the closest reply is
// accepted and flagged with BandMiss and/or ParagraphMiss; only when no
// backend produced a usable reply at all does Normalize fail.
func (n *Normalizer) Normalize(ctx context.Context, art internal.Article, candidates []backend.Identity) (*internal.NormalizedArticle, error) {
	body, removed := n.filter.Sanitize(art.Body)
	body = paragraph.MergeShort(body, n.cfg.MergeShortWords)
	if removed > 0 {
		n.logger.Debug("removed forbidden source paragraphs", "url", art.URL, "removed", removed)
	}
	if len(body) == 0 {
		return nil, &Error{Stage: NameNormalize, Err: ErrEmpty}
	}

	title := paragraph.CleanTitle(art.Title)
	words := paragraph.CountAll(body)
	if n.distance(words) == 0 {
		return &internal.NormalizedArticle{
			URL:       art.URL,
			Title:     title,
			Body:      body,
			WordCount: words,
		}, nil
	}

	key := n.cacheKey(body)
	var cached internal.NormalizedArticle
	if cacheGet(ctx, n.cache, key, &cached, n.logger) {
		cached.URL = art.URL
		cached.Title = title
		return &cached, nil
	}

	generative := make([]backend.Identity, 0, len(candidates))
	for _, id := range candidates {
		if id.Generative() {
			generative = append(generative, id)
		}
	}

	floor := paragraphFloor(len(body))
	ceiling := paragraphCeiling(len(body), n.cfg.CeilingFactor)

	var (
		best    *candidate
		last    *candidate
		lastErr error
		seq     int
		attempt int
	)

	for attempt = 1; attempt <= n.cfg.Attempts; attempt++ {
		req := backend.Request{
			Stage:       NameNormalize,
			System:      editorSystemPrompt,
			User:        normalizePrompt(body, n.cfg.WordMin, n.cfg.WordMax, last),
			MaxTokens:   n.cfg.MaxTokens,
			Temperature: 0.3,
		}

		// Validation runs on the selector's single committer goroutine.
		var seen []*candidate
		validate := func(resp *backend.Response) error {
			paras, _ := n.filter.Sanitize(parseBody(resp.Text))
			if len(paras) == 0 {
				return fmt.Errorf("%w: reply is empty after cleaning", backend.ErrMalformed)
			}
			seq++
			c := &candidate{
				paras:   paras,
				words:   paragraph.CountAll(paras),
				paraOK:  len(paras) >= floor && len(paras) <= ceiling,
				backend: resp.Identity.Name,
				seq:     seq,
			}
			seen = append(seen, c)
			if n.distance(c.words) == 0 && c.paraOK {
				return nil
			}
			return fmt.Errorf("reply outside policy: %d words in %d paragraphs, want %d-%d words in %d-%d paragraphs",
				c.words, len(paras), n.cfg.WordMin, n.cfg.WordMax, floor, ceiling)
		}

		res, err := n.racer.Race(ctx, generative, req, validate)
		if err == nil {
			winner := seen[len(seen)-1]
			out := n.result(art.URL, title, winner, attempt)
			cachePut(ctx, n.cache, key, out, n.logger)
			n.logger.Debug("article normalized",
				"url", art.URL, "words", winner.words, "attempts", attempt, "backend", res.Winner.Name)
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Stage: NameNormalize, Attempts: attempt, Err: ctxErr}
		}

		lastErr = err
		for _, c := range seen {
			if n.better(c, best) {
				best = c
			}
		}
		if len(seen) == 0 {
			// Every backend failed outright; a stricter prompt will not help.
			break
		}
		last = seen[len(seen)-1]
		n.logger.Debug("normalization attempt missed policy",
			"url", art.URL, "attempt", attempt, "words", last.words, "paragraphs", len(last.paras))
	}

	if attempt > n.cfg.Attempts {
		attempt = n.cfg.Attempts
	}
	if best == nil {
		if lastErr == nil {
			lastErr = errors.New("no attempt was made")
		}
		return nil, &Error{Stage: NameNormalize, Attempts: attempt, Err: lastErr}
	}

	out := n.result(art.URL, title, best, attempt)
	n.logger.Warn("accepting closest normalization outside policy",
		"url", art.URL, "words", best.words, "band_miss", out.BandMiss, "paragraph_miss", out.ParagraphMiss)
	cachePut(ctx, n.cache, key, out, n.logger)
	return out, nil
}

func (n *Normalizer) result(url, title string, c *candidate, attempts int) *internal.NormalizedArticle {
	return &internal.NormalizedArticle{
		URL:           url,
		Title:         title,
		Body:          c.paras,
		WordCount:     c.words,
		BandMiss:      n.distance(c.words) > 0,
		ParagraphMiss: !c.paraOK,
		Attempts:      attempts,
		Backend:       c.backend,
	}
}
