package stage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/valpere/news2docx/internal"
	"github.com/valpere/news2docx/internal/backend"
	"github.com/valpere/news2docx/internal/paragraph"
	"github.com/valpere/news2docx/internal/store"
	"github.com/valpere/news2docx/internal/validator"
)

var chinese = Target{Name: "Chinese", Code: "zh"}

func normalized(paras ...string) internal.NormalizedArticle {
	return internal.NormalizedArticle{
		URL:       "https://example.com/a",
		Title:     "Markets rally",
		Body:      paras,
		WordCount: paragraph.CountAll(paras),
	}
}

func TestTranslate_Aligned(t *testing.T) {
	caller := &scriptedCaller{reply: func(int, backend.Identity, backend.Request) (*backend.Response, error) {
		return textReply(jsonReply("市场上涨", []string{"第一段。", "第二段。", "第三段。"}))
	}}
	tr := NewTranslator(newRacer(caller), nil, nil, nil, TranslateConfig{}, nil)

	out, err := tr.Translate(context.Background(), normalized("One.", "Two.", "Three."), chinese, chatIDs("A"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Aligned() || len(out.TargetParagraphs) != 3 {
		t.Fatalf("expected 3 aligned pairs, got %+v", out)
	}
	if out.TargetTitle != "市场上涨" || out.SourceTitle != "Markets rally" {
		t.Errorf("unexpected titles: %q / %q", out.SourceTitle, out.TargetTitle)
	}
	if out.TargetParagraphs[1] != "第二段。" || out.SourceParagraphs[1] != "Two." {
		t.Errorf("pairs out of order: %v / %v", out.SourceParagraphs, out.TargetParagraphs)
	}
	if out.TargetLanguage != "zh" || out.Backend != "A" {
		t.Errorf("unexpected metadata: %+v", out)
	}

	req := caller.lastRequest()
	if !strings.Contains(req.User, "[3] Three.") || !strings.Contains(req.User, "exactly 3 strings") {
		t.Errorf("prompt should enumerate paragraphs, got %q", req.User)
	}
	if len(req.Segments) != 4 || req.Segments[0] != "Markets rally" {
		t.Errorf("segments should carry title and paragraphs, got %v", req.Segments)
	}
}

func TestTranslate_MisalignedIsRetried(t *testing.T) {
	caller := &scriptedCaller{reply: func(n int, _ backend.Identity, _ backend.Request) (*backend.Response, error) {
		if n == 1 {
			return textReply(jsonReply("标题", []string{"第一段。第二段。", "第三段。"}))
		}
		return textReply(jsonReply("标题", []string{"第一段。", "第二段。", "第三段。"}))
	}}
	tr := NewTranslator(newRacer(caller), nil, nil, nil, TranslateConfig{Attempts: 2}, nil)

	out, err := tr.Translate(context.Background(), normalized("One.", "Two.", "Three."), chinese, chatIDs("A"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.TargetParagraphs) != 3 {
		t.Errorf("expected 3 paragraphs, got %d", len(out.TargetParagraphs))
	}
	if caller.calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", caller.calls.Load())
	}
	if !strings.Contains(caller.lastRequest().User, "previous reply had 2 paragraphs instead of 3") {
		t.Error("retry prompt should be reinforced with the previous count")
	}
}

func TestTranslate_MisalignedExhausted(t *testing.T) {
	caller := &scriptedCaller{reply: func(int, backend.Identity, backend.Request) (*backend.Response, error) {
		return textReply(jsonReply("标题", []string{"第一段。第二段。", "第三段。"}))
	}}
	tr := NewTranslator(newRacer(caller), nil, nil, nil, TranslateConfig{Attempts: 2}, nil)

	out, err := tr.Translate(context.Background(), normalized("One.", "Two.", "Three."), chinese, chatIDs("A"))
	if out != nil {
		t.Errorf("misaligned output must never be returned, got %+v", out)
	}
	if !errors.Is(err, ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned, got %v", err)
	}
	var se *Error
	if !errors.As(err, &se) || se.Stage != NameTranslate || se.Attempts != 2 {
		t.Errorf("expected translate stage error after 2 attempts, got %v", err)
	}
}

func TestTranslate_BlankSlotAfterMergeIsRetried(t *testing.T) {
	caller := &scriptedCaller{reply: func(n int, _ backend.Identity, _ backend.Request) (*backend.Response, error) {
		if n == 1 {
			return textReply(jsonReply("标题", []string{"第一段。第二段。", "", "第三段。"}))
		}
		return textReply(jsonReply("标题", []string{"第一段。", "第二段。", "第三段。"}))
	}}
	tr := NewTranslator(newRacer(caller), nil, nil, nil, TranslateConfig{Attempts: 2}, nil)

	out, err := tr.Translate(context.Background(), normalized("One.", "Two.", "Three."), chinese, chatIDs("A"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caller.calls.Load() != 2 {
		t.Errorf("reply with a blank slot must be retried, got %d calls", caller.calls.Load())
	}
	if len(out.SourceParagraphs) != 3 || out.SourceParagraphs[1] != "Two." || out.TargetParagraphs[1] != "第二段。" {
		t.Errorf("pairs misaligned: %v / %v", out.SourceParagraphs, out.TargetParagraphs)
	}
	if !strings.Contains(caller.lastRequest().User, "previous reply had 2 paragraphs instead of 3") {
		t.Error("retry prompt should name the filled paragraph count")
	}
}

func TestTranslate_BlankSlotExhausted(t *testing.T) {
	caller := &scriptedCaller{reply: func(int, backend.Identity, backend.Request) (*backend.Response, error) {
		return textReply(jsonReply("标题", []string{"第一段。第二段。", "", "第三段。"}))
	}}
	tr := NewTranslator(newRacer(caller), nil, nil, nil, TranslateConfig{Attempts: 2}, nil)

	out, err := tr.Translate(context.Background(), normalized("One.", "Two.", "Three."), chinese, chatIDs("A"))
	if out != nil {
		t.Errorf("merged reply must never be returned, got %+v", out)
	}
	if !errors.Is(err, ErrMisaligned) {
		t.Errorf("expected ErrMisaligned, got %v", err)
	}
}

func TestTranslate_FirstAlignedBackendWins(t *testing.T) {
	caller := &scriptedCaller{reply: func(_ int, id backend.Identity, _ backend.Request) (*backend.Response, error) {
		if id.Name == "short" {
			return textReply(jsonReply("标题", []string{"只有一段。"}))
		}
		return textReply(jsonReply("标题", []string{"一。", "二。"}))
	}}
	tr := NewTranslator(newRacer(caller), nil, nil, nil, TranslateConfig{Attempts: 1}, nil)

	out, err := tr.Translate(context.Background(), normalized("One.", "Two."), chinese, chatIDs("short", "good"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Backend != "good" {
		t.Errorf("expected aligned backend to win, got %s", out.Backend)
	}
}

func TestTranslate_TransportFailureIsNotRetried(t *testing.T) {
	caller := &scriptedCaller{reply: func(int, backend.Identity, backend.Request) (*backend.Response, error) {
		return nil, &backend.StatusError{Code: 401}
	}}
	tr := NewTranslator(newRacer(caller), nil, nil, nil, TranslateConfig{Attempts: 3}, nil)

	_, err := tr.Translate(context.Background(), normalized("One."), chinese, chatIDs("A"))
	if err == nil {
		t.Fatal("expected error")
	}
	if caller.calls.Load() != 1 {
		t.Errorf("expected a single race, got %d calls", caller.calls.Load())
	}
}

func TestTranslate_SegmentBackend(t *testing.T) {
	caller := &scriptedCaller{reply: func(_ int, _ backend.Identity, req backend.Request) (*backend.Response, error) {
		out := make([]string, len(req.Segments))
		for i, s := range req.Segments {
			out[i] = "译:" + s
		}
		return &backend.Response{Segments: out}, nil
	}}
	tr := NewTranslator(newRacer(caller), nil, nil, nil, TranslateConfig{}, nil)

	out, err := tr.Translate(context.Background(), normalized("One.", "Two."), chinese,
		[]backend.Identity{{Name: "g", Kind: backend.KindGoogle}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TargetTitle != "译:Markets rally" || out.TargetParagraphs[1] != "译:Two." {
		t.Errorf("unexpected result: %+v", out)
	}
}

func TestTranslate_PlainSeparatorFallback(t *testing.T) {
	caller := &scriptedCaller{reply: func(int, backend.Identity, backend.Request) (*backend.Response, error) {
		return textReply("第一段。\n%%\n第二段。")
	}}
	tr := NewTranslator(newRacer(caller), nil, nil, nil, TranslateConfig{}, nil)

	out, err := tr.Translate(context.Background(), normalized("One.", "Two."), chinese, chatIDs("A"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.TargetParagraphs) != 2 || out.TargetTitle != "Markets rally" {
		t.Errorf("unexpected fallback result: %+v", out)
	}
}

func TestTranslate_DropsNoiseSourceParagraphs(t *testing.T) {
	f, err := paragraph.NewFilter([]string{"Photo:"}, nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	caller := &scriptedCaller{reply: func(_ int, _ backend.Identity, req backend.Request) (*backend.Response, error) {
		tgt := make([]string, len(req.Segments)-1)
		for i := range tgt {
			tgt[i] = "译文。"
		}
		return textReply(jsonReply("标题", tgt))
	}}
	tr := NewTranslator(newRacer(caller), nil, f, nil, TranslateConfig{}, nil)

	_, _ = tr.Translate(context.Background(),
		normalized("Photo: AP", "Markets rallied strongly today.", "Hi.", "Oil prices fell sharply overnight."),
		chinese, chatIDs("A"))

	req := caller.lastRequest()
	if strings.Contains(req.User, "Photo: AP") || strings.Contains(req.User, "Hi.") {
		t.Errorf("noise paragraphs must not reach the backend: %q", req.User)
	}
	if len(req.Segments) != 3 {
		t.Errorf("expected title plus 2 paragraphs, got %v", req.Segments)
	}
}

func TestTranslate_ForbiddenTargetDroppedPairwise(t *testing.T) {
	f, err := paragraph.NewFilter([]string{"图片来源"}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	caller := &scriptedCaller{reply: func(int, backend.Identity, backend.Request) (*backend.Response, error) {
		return textReply(jsonReply("标题", []string{"第一段。", "图片来源：美联社", "第三段。"}))
	}}
	tr := NewTranslator(newRacer(caller), nil, f, nil, TranslateConfig{}, nil)

	out, err := tr.Translate(context.Background(), normalized("One.", "Two.", "Three."), chinese, chatIDs("A"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Aligned() || len(out.SourceParagraphs) != 2 {
		t.Fatalf("expected 2 aligned pairs, got %v / %v", out.SourceParagraphs, out.TargetParagraphs)
	}
	if out.SourceParagraphs[1] != "Three." || out.TargetParagraphs[1] != "第三段。" {
		t.Errorf("pair dropped on one side only: %v / %v", out.SourceParagraphs, out.TargetParagraphs)
	}
}

func TestTranslate_WrongLanguageRejected(t *testing.T) {
	english := "The central bank kept interest rates unchanged on Thursday and signalled further caution."
	caller := &scriptedCaller{reply: func(int, backend.Identity, backend.Request) (*backend.Response, error) {
		return textReply(jsonReply("Markets", []string{english}))
	}}
	tr := NewTranslator(newRacer(caller), nil, nil, validator.New("en", "zh"), TranslateConfig{Attempts: 1}, nil)

	_, err := tr.Translate(context.Background(), normalized(english), chinese, chatIDs("A"))
	if !errors.Is(err, ErrWrongLanguage) {
		t.Errorf("expected ErrWrongLanguage, got %v", err)
	}
}

func TestTranslate_WrongLanguageRetryRemindsTarget(t *testing.T) {
	english := "The central bank kept interest rates unchanged on Thursday and signalled further caution."
	caller := &scriptedCaller{reply: func(n int, _ backend.Identity, _ backend.Request) (*backend.Response, error) {
		if n == 1 {
			return textReply(jsonReply("Markets", []string{english}))
		}
		return textReply(jsonReply("市场", []string{"央行维持利率不变。"}))
	}}
	tr := NewTranslator(newRacer(caller), nil, nil, validator.New("en", "zh"), TranslateConfig{Attempts: 2}, nil)

	out, err := tr.Translate(context.Background(), normalized(english), chinese, chatIDs("A"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TargetParagraphs[0] != "央行维持利率不变。" {
		t.Errorf("unexpected translation %v", out.TargetParagraphs)
	}
	if !strings.Contains(caller.lastRequest().User, "not written in Chinese") {
		t.Errorf("retry prompt should remind the target language, got %q", caller.lastRequest().User)
	}
	if strings.Contains(caller.lastRequest().User, "previous reply had") {
		t.Error("language retry should not claim a paragraph count mismatch")
	}
}

func TestTranslate_CacheHitMakesNoCalls(t *testing.T) {
	caller := &scriptedCaller{reply: func(int, backend.Identity, backend.Request) (*backend.Response, error) {
		return textReply(jsonReply("标题", []string{"一。", "二。"}))
	}}
	cache := store.NewMemoryCache(nil)
	tr := NewTranslator(newRacer(caller), cache, nil, nil, TranslateConfig{}, nil)
	art := normalized("One.", "Two.")

	first, err := tr.Translate(context.Background(), art, chinese, chatIDs("A"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := tr.Translate(context.Background(), art, chinese, chatIDs("A"))
	if err != nil {
		t.Fatal(err)
	}
	if caller.calls.Load() != 1 {
		t.Errorf("expected cache hit, got %d calls", caller.calls.Load())
	}
	if strings.Join(first.TargetParagraphs, "|") != strings.Join(second.TargetParagraphs, "|") {
		t.Error("cached translation differs")
	}

	// A different target language must miss.
	if _, err := tr.Translate(context.Background(), art, Target{Name: "French", Code: "fr"}, chatIDs("A")); err != nil {
		t.Fatal(err)
	}
	if caller.calls.Load() != 2 {
		t.Errorf("expected a new call for another language, got %d calls", caller.calls.Load())
	}
}
