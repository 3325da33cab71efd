package internal

import "strings"

// Article is one scraped article as handed over by the scraper. The engine
// treats it as read-only.
type Article struct {
	URL       string   `json:"url" yaml:"url"`
	Title     string   `json:"title" yaml:"title"`
	Body      []string `json:"paragraphs" yaml:"paragraphs"`
	WordCount int      `json:"word_count" yaml:"word_count"`
}

// Text joins the body paragraphs with blank lines.
func (a Article) Text() string {
	return strings.Join(a.Body, "\n\n")
}

// NormalizedArticle is the output of the length normalization stage.
type NormalizedArticle struct {
	URL       string   `json:"url" yaml:"url"`
	Title     string   `json:"title" yaml:"title"`
	Body      []string `json:"paragraphs" yaml:"paragraphs"`
	WordCount int      `json:"word_count" yaml:"word_count"`

	// BandMiss is set when no attempt landed inside the word band and the
	// closest response was accepted instead.
	BandMiss bool `json:"band_miss" yaml:"band_miss"`
	// ParagraphMiss is set when the accepted response violates the
	// paragraph floor/ceiling policy.
	ParagraphMiss bool   `json:"paragraph_miss" yaml:"paragraph_miss"`
	Attempts      int    `json:"attempts" yaml:"attempts"`
	Backend       string `json:"backend,omitempty" yaml:"backend,omitempty"`
}

// ProcessedArticle is the bilingual, paragraph-aligned result consumed by
// the exporter. SourceParagraphs[i] and TargetParagraphs[i] are mutual
// translations and both slices always have the same length.
type ProcessedArticle struct {
	URL              string   `json:"url" yaml:"url"`
	SourceTitle      string   `json:"source_title" yaml:"source_title"`
	TargetTitle      string   `json:"target_title" yaml:"target_title"`
	SourceParagraphs []string `json:"source_paragraphs" yaml:"source_paragraphs"`
	TargetParagraphs []string `json:"target_paragraphs" yaml:"target_paragraphs"`
	TargetLanguage   string   `json:"target_language" yaml:"target_language"`
	BandMiss         bool     `json:"band_miss" yaml:"band_miss"`
	Backend          string   `json:"backend,omitempty" yaml:"backend,omitempty"`
}

// Aligned reports whether both paragraph lists have the same length.
func (p ProcessedArticle) Aligned() bool {
	return len(p.SourceParagraphs) == len(p.TargetParagraphs)
}
