// Package paragraph splits article text into paragraphs, counts words and
// removes noise paragraphs (bylines, captions, copyright lines) before they
// reach a remote backend or the exporter.
package paragraph

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// Separator is the explicit paragraph delimiter models are asked to use
	// in plain-text replies.
	Separator = "%%"
)

var (
	wordRe      = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	blankLineRe = regexp.MustCompile(`\n\s*\n`)
)

// CountWords returns the number of word tokens in text.
func CountWords(text string) int {
	return len(wordRe.FindAllStringIndex(text, -1))
}

// CountAll returns the total word count of all paragraphs.
func CountAll(paras []string) int {
	n := 0
	for _, p := range paras {
		n += CountWords(p)
	}
	return n
}

// Split breaks text into trimmed, non-empty paragraphs. An explicit %%
// separator wins over blank lines; text with neither is returned as a single
// paragraph.
func Split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var parts []string
	if strings.Contains(text, Separator) {
		parts = strings.Split(text, Separator)
	} else {
		parts = blankLineRe.Split(text, -1)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = collapse(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// collapse joins the lines of one paragraph with single spaces.
func collapse(p string) string {
	return strings.Join(strings.Fields(p), " ")
}

// Join renders paragraphs as blank-line separated text.
func Join(paras []string) string {
	return strings.Join(paras, "\n\n")
}

// Filter drops noise paragraphs: lines starting with a forbidden prefix,
// lines matching a forbidden pattern, and paragraphs below MinWords.
type Filter struct {
	prefixes []string
	patterns []*regexp.Regexp
	minWords int
}

// NewFilter compiles the forbidden patterns. Patterns are anchored at the
// start of the trimmed line, matching the scraper's configuration format.
func NewFilter(prefixes, patterns []string, minWords int) (*Filter, error) {
	f := &Filter{minWords: minWords}
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			f.prefixes = append(f.prefixes, p)
		}
	}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(`^(?:` + p + `)`)
		if err != nil {
			return nil, fmt.Errorf("invalid forbidden pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// IsNoise reports whether p should be dropped.
func (f *Filter) IsNoise(p string) bool {
	s := strings.TrimSpace(p)
	if s == "" {
		return true
	}
	if f == nil {
		return false
	}
	if f.forbidden(s) {
		return true
	}
	return f.minWords > 0 && CountWords(s) < f.minWords
}

// IsForbidden reports whether p is blank or matches a forbidden prefix or
// pattern. Unlike IsNoise it ignores the word floor, so it is safe on text
// whose script does not separate words with spaces.
func (f *Filter) IsForbidden(p string) bool {
	s := strings.TrimSpace(p)
	if s == "" {
		return true
	}
	return f != nil && f.forbidden(s)
}

// forbidden only checks prefixes and patterns, ignoring the word floor.
func (f *Filter) forbidden(s string) bool {
	for _, pref := range f.prefixes {
		if strings.HasPrefix(s, pref) {
			return true
		}
	}
	for _, re := range f.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Sanitize removes forbidden paragraphs but keeps short ones. It is used on
// whole-article text where the word floor does not apply. The number of
// removed paragraphs is returned for logging.
func (f *Filter) Sanitize(paras []string) ([]string, int) {
	out := make([]string, 0, len(paras))
	removed := 0
	for _, p := range paras {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		if f != nil && f.forbidden(s) {
			removed++
			continue
		}
		out = append(out, s)
	}
	return out, removed
}

// Apply removes every noise paragraph, including those below the word floor.
func (f *Filter) Apply(paras []string) []string {
	out := make([]string, 0, len(paras))
	for _, p := range paras {
		if !f.IsNoise(p) {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

// MergeShort folds paragraphs with fewer than minWords words into their
// shorter neighbour until every paragraph reaches the floor or only one
// paragraph is left. minWords <= 0 disables merging.
func MergeShort(paras []string, minWords int) []string {
	if minWords <= 0 || len(paras) < 2 {
		return paras
	}
	out := append([]string(nil), paras...)

	i := 0
	for i < len(out) && len(out) > 1 {
		if CountWords(out[i]) >= minWords {
			i++
			continue
		}
		prev, next := -1, -1
		if i > 0 {
			prev = CountWords(out[i-1])
		}
		if i+1 < len(out) {
			next = CountWords(out[i+1])
		}
		switch {
		case next >= 0 && (prev < 0 || next <= prev):
			out[i] = out[i] + " " + out[i+1]
			out = append(out[:i+1], out[i+2:]...)
		default:
			out[i-1] = out[i-1] + " " + out[i]
			out = append(out[:i], out[i+1:]...)
			i--
		}
	}
	return out
}

// CleanTitle strips a trailing " | Site Name" suffix and sentence punctuation.
func CleanTitle(title string) string {
	t := strings.TrimSpace(title)
	if i := strings.Index(t, " | "); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return strings.TrimRight(t, ".?!。！？")
}
