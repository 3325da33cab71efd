// Package engine runs batches of articles through normalization and
// translation with bounded concurrency. Every article gets its own outcome;
// one article failing never affects the others.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valpere/news2docx/internal"
	"github.com/valpere/news2docx/internal/backend"
	"github.com/valpere/news2docx/internal/paragraph"
	"github.com/valpere/news2docx/internal/selector"
	"github.com/valpere/news2docx/internal/stage"
)

// Normalizer is implemented by *stage.Normalizer.
type Normalizer interface {
	Normalize(ctx context.Context, art internal.Article, candidates []backend.Identity) (*internal.NormalizedArticle, error)
}

// Translator is implemented by *stage.Translator.
type Translator interface {
	Translate(ctx context.Context, art internal.NormalizedArticle, target stage.Target, candidates []backend.Identity) (*internal.ProcessedArticle, error)
}

type Config struct {
	// Concurrency bounds the number of articles in flight.
	Concurrency int
	// MinSourceWords skips articles shorter than this before any remote
	// call. Zero disables the check.
	MinSourceWords int
}

// Class categorises a per-article failure.
type Class string

const (
	ClassAllFailed     Class = "all_failed"
	ClassMisaligned    Class = "misaligned"
	ClassWrongLanguage Class = "wrong_language"
	ClassEmpty         Class = "empty"
	ClassCancelled     Class = "cancelled"
	ClassInternal      Class = "internal"
)

const stageInput = "input"

type Failure struct {
	Stage   string `json:"stage" yaml:"stage"`
	Class   Class  `json:"class" yaml:"class"`
	Message string `json:"message" yaml:"message"`
}

// Outcome is the result of one article. Exactly one of Processed and
// Failure is set; Normalized is kept when translation failed after a
// successful normalization.
type Outcome struct {
	URL        string                      `json:"url" yaml:"url"`
	Normalized *internal.NormalizedArticle `json:"normalized,omitempty" yaml:"normalized,omitempty"`
	Processed  *internal.ProcessedArticle  `json:"processed,omitempty" yaml:"processed,omitempty"`
	Failure    *Failure                    `json:"failure,omitempty" yaml:"failure,omitempty"`
}

func (o Outcome) OK() bool { return o.Processed != nil && o.Failure == nil }

// Batch is one unit of work. Backends is copied at the start of Process and
// the copy is used for every article.
type Batch struct {
	Articles []internal.Article
	Target   stage.Target
	Backends []backend.Identity
}

// Report lists outcomes in input order.
type Report struct {
	Target     stage.Target `json:"target" yaml:"target"`
	Outcomes   []Outcome    `json:"outcomes" yaml:"outcomes"`
	Succeeded  int          `json:"succeeded" yaml:"succeeded"`
	Failed     int          `json:"failed" yaml:"failed"`
	BandMiss   int          `json:"band_miss" yaml:"band_miss"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
}

type Engine struct {
	normalizer Normalizer
	translator Translator
	cfg        Config
	logger     *slog.Logger
}

func New(n Normalizer, t Translator, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{normalizer: n, translator: t, cfg: cfg, logger: logger}
}

// Process runs every article through normalize then translate with at most
// Concurrency articles in flight. It always returns a report covering every
// input article.
func (e *Engine) Process(ctx context.Context, b Batch) *Report {
	report := &Report{
		Target:    b.Target,
		Outcomes:  make([]Outcome, len(b.Articles)),
		StartedAt: time.Now(),
	}
	backends := append([]backend.Identity(nil), b.Backends...)

	e.logger.Info("processing batch",
		"articles", len(b.Articles), "target", b.Target.Code, "backends", len(backends), "concurrency", e.cfg.Concurrency)

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, art := range b.Articles {
		g.Go(func() error {
			report.Outcomes[i] = e.processOne(ctx, art, b.Target, backends)
			return nil
		})
	}
	g.Wait()

	for _, o := range report.Outcomes {
		if o.OK() {
			report.Succeeded++
			if o.Processed.BandMiss {
				report.BandMiss++
			}
		} else {
			report.Failed++
		}
	}
	report.FinishedAt = time.Now()

	e.logger.Info("batch finished",
		"succeeded", report.Succeeded, "failed", report.Failed, "band_miss", report.BandMiss,
		"elapsed", report.FinishedAt.Sub(report.StartedAt))
	return report
}

func (e *Engine) processOne(ctx context.Context, art internal.Article, target stage.Target, backends []backend.Identity) (out Outcome) {
	out.URL = art.URL
	defer func() {
		if r := recover(); r != nil {
			out.Processed = nil
			out.Failure = &Failure{Stage: stageInput, Class: ClassInternal, Message: fmt.Sprintf("panic: %v", r)}
			e.logger.Error("article processing panicked", "url", art.URL, "panic", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Failure = &Failure{Stage: stageInput, Class: ClassCancelled, Message: err.Error()}
		return out
	}

	if e.cfg.MinSourceWords > 0 {
		if words := paragraph.CountAll(art.Body); words < e.cfg.MinSourceWords {
			out.Failure = &Failure{
				Stage:   stageInput,
				Class:   ClassEmpty,
				Message: fmt.Sprintf("source has %d words, minimum is %d", words, e.cfg.MinSourceWords),
			}
			e.logger.Info("skipping short article", "url", art.URL, "words", words)
			return out
		}
	}

	norm, err := e.normalizer.Normalize(ctx, art, backends)
	if err != nil {
		out.Failure = e.failure(ctx, stage.NameNormalize, err)
		e.logger.Warn("normalization failed", "url", art.URL, "class", out.Failure.Class, "error", err)
		return out
	}
	out.Normalized = norm

	processed, err := e.translator.Translate(ctx, *norm, target, backends)
	if err != nil {
		out.Failure = e.failure(ctx, stage.NameTranslate, err)
		e.logger.Warn("translation failed", "url", art.URL, "class", out.Failure.Class, "error", err)
		return out
	}
	if !processed.Aligned() {
		out.Failure = &Failure{
			Stage:   stage.NameTranslate,
			Class:   ClassMisaligned,
			Message: fmt.Sprintf("%d source vs %d target paragraphs", len(processed.SourceParagraphs), len(processed.TargetParagraphs)),
		}
		return out
	}
	out.Processed = processed
	return out
}

func (e *Engine) failure(ctx context.Context, stageName string, err error) *Failure {
	var se *stage.Error
	if errors.As(err, &se) && se.Stage != "" {
		stageName = se.Stage
	}
	return &Failure{Stage: stageName, Class: classify(ctx, err), Message: err.Error()}
}

func classify(ctx context.Context, err error) Class {
	var afe *selector.AllFailedError
	switch {
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return ClassCancelled
	case errors.Is(err, stage.ErrEmpty):
		return ClassEmpty
	case errors.Is(err, stage.ErrMisaligned):
		return ClassMisaligned
	case errors.Is(err, stage.ErrWrongLanguage):
		return ClassWrongLanguage
	case errors.As(err, &afe):
		return ClassAllFailed
	}
	return ClassInternal
}
