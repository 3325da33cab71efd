package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/valpere/news2docx/internal"
	"github.com/valpere/news2docx/internal/backend"
	"github.com/valpere/news2docx/internal/paragraph"
	"github.com/valpere/news2docx/internal/store"
	"github.com/valpere/news2docx/internal/validator"
)

// Target names the output language for prompts (Name) and for language
// tags and detection (Code, ISO 639-1).
type Target struct {
	Name string `json:"name" yaml:"name"`
	Code string `json:"code" yaml:"code"`
}

// TranslateConfig holds the retry policy of the translator.
type TranslateConfig struct {
	// Attempts bounds the number of races per article.
	Attempts  int
	MaxTokens int
}

func (c TranslateConfig) withDefaults() TranslateConfig {
	if c.Attempts <= 0 {
		c.Attempts = 2
	}
	return c
}

// Translator produces paragraph-aligned bilingual articles.
type Translator struct {
	racer     Racer
	cache     Cache
	filter    *paragraph.Filter
	validator *validator.Validator
	cfg       TranslateConfig
	logger    *slog.Logger
}

// NewTranslator returns a translator. filter drops noise source paragraphs
// before the request is built; a nil validator disables target-language
// detection.
func NewTranslator(racer Racer, cache Cache, filter *paragraph.Filter, v *validator.Validator, cfg TranslateConfig, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		racer:     racer,
		cache:     cache,
		filter:    filter,
		validator: v,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

func schemaFailure(err error) bool {
	return errors.Is(err, ErrMisaligned) || errors.Is(err, ErrWrongLanguage) || errors.Is(err, backend.ErrMalformed)
}

// Translate returns art translated into target with exactly one target
// paragraph per kept source paragraph. A reply whose paragraph count differs
// from the source is never accepted; the request is re-issued with a
// reinforced instruction until the attempt budget runs out.
func (t *Translator) Translate(ctx context.Context, art internal.NormalizedArticle, target Target, candidates []backend.Identity) (*internal.ProcessedArticle, error) {
	src := t.filter.Apply(art.Body)
	if len(src) == 0 {
		return nil, &Error{Stage: NameTranslate, Err: ErrEmpty}
	}
	title := strings.TrimSpace(art.Title)

	key := store.NewKey(NameTranslate, title+"\n\n"+paragraph.Join(src), target.Code)
	var cached internal.ProcessedArticle
	if cacheGet(ctx, t.cache, key, &cached, t.logger) {
		cached.URL = art.URL
		cached.BandMiss = art.BandMiss
		return &cached, nil
	}

	validate := func(resp *backend.Response) error {
		_, paras, err := parseTranslation(resp)
		if err != nil {
			return err
		}
		if len(paras) != len(src) {
			return &CountError{Want: len(src), Got: len(paras)}
		}
		// A blank slot usually means its paragraph was merged into a
		// neighbour, so the pairs around it are no longer aligned.
		if filled := countFilled(paras); filled != len(src) {
			return &CountError{Want: len(src), Got: filled}
		}
		return t.validator.Check(paragraph.Join(paras), target.Code)
	}

	var (
		lastErr   error
		lastGot   = -1
		wrongLang bool
		attempt   int
	)

	for attempt = 1; attempt <= t.cfg.Attempts; attempt++ {
		req := backend.Request{
			Stage:       NameTranslate,
			System:      translateSystemPrompt(target.Name),
			User:        translatePrompt(title, src, target.Name, lastGot, wrongLang),
			Segments:    append([]string{title}, src...),
			TargetLang:  target.Code,
			MaxTokens:   t.cfg.MaxTokens,
			Temperature: 0.3,
		}

		res, err := t.racer.Race(ctx, candidates, req, validate)
		if err == nil {
			out, perr := t.assemble(art, target, src, res.Response)
			if perr != nil {
				return nil, &Error{Stage: NameTranslate, Attempts: attempt, Err: perr}
			}
			cachePut(ctx, t.cache, key, out, t.logger)
			t.logger.Debug("article translated",
				"url", art.URL, "paragraphs", len(out.TargetParagraphs), "attempts", attempt, "backend", res.Winner.Name)
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Stage: NameTranslate, Attempts: attempt, Err: ctxErr}
		}

		lastErr = err
		if !schemaFailure(err) {
			break
		}
		lastGot = -1
		var ce *CountError
		if errors.As(err, &ce) {
			lastGot = ce.Got
		}
		wrongLang = errors.Is(err, ErrWrongLanguage)
		t.logger.Debug("translation attempt rejected", "url", art.URL, "attempt", attempt, "error", err)
	}

	if attempt > t.cfg.Attempts {
		attempt = t.cfg.Attempts
	}
	return nil, &Error{Stage: NameTranslate, Attempts: attempt, Err: lastErr}
}

// assemble pairs source and target paragraphs. Pairs whose target matches a
// forbidden prefix or pattern are dropped from both sides together.
func (t *Translator) assemble(art internal.NormalizedArticle, target Target, src []string, resp *backend.Response) (*internal.ProcessedArticle, error) {
	tgtTitle, paras, err := parseTranslation(resp)
	if err != nil {
		return nil, err
	}
	if len(paras) != len(src) {
		return nil, &CountError{Want: len(src), Got: len(paras)}
	}

	out := &internal.ProcessedArticle{
		URL:            art.URL,
		SourceTitle:    art.Title,
		TargetTitle:    paragraph.CleanTitle(tgtTitle),
		TargetLanguage: target.Code,
		BandMiss:       art.BandMiss,
		Backend:        resp.Identity.Name,
	}
	if out.TargetTitle == "" {
		out.TargetTitle = art.Title
	}

	for i := range src {
		if t.filter.IsForbidden(paras[i]) {
			continue
		}
		out.SourceParagraphs = append(out.SourceParagraphs, src[i])
		out.TargetParagraphs = append(out.TargetParagraphs, paras[i])
	}
	if len(out.TargetParagraphs) == 0 {
		return nil, fmt.Errorf("%w: every translated paragraph was empty", ErrEmpty)
	}
	return out, nil
}

func countFilled(paras []string) int {
	n := 0
	for _, p := range paras {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}
