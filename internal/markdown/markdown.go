package markdown

import (
	"bytes"
	"html"
	"regexp"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// blockEndRe matches closing tags of block elements so paragraph breaks
// survive tag stripping.
var blockEndRe = regexp.MustCompile(`(?i)</(?:p|h[1-6]|li|blockquote|pre|div)>|<br\s*/?>|<hr\s*/?>`)

func ToHTML(md []byte) string {
	// No smartypants: quotes and dashes must come back exactly as written.
	opts := mdhtml.RendererOptions{
		Flags: mdhtml.SkipHTML | mdhtml.SkipImages,
	}
	renderer := mdhtml.NewRenderer(opts)

	ext := parser.CommonExtensions &^ parser.MathJax
	p := parser.NewWithExtensions(ext)
	doc := p.Parse(md)

	return string(markdown.Render(doc, renderer))
}

// ToPlainText renders md and drops all markup, leaving block elements
// separated by blank lines.
func ToPlainText(md []byte) string {
	htmlContent := ToHTML(md)
	htmlContent = blockEndRe.ReplaceAllString(htmlContent, "\n\n")
	return html.UnescapeString(StripHTMLTags(htmlContent))
}

func StripHTMLTags(htmlContent string) string {
	var result bytes.Buffer
	inTag := false

	for _, ch := range htmlContent {
		switch ch {
		case '<':
			inTag = true
		case '>':
			inTag = false
		default:
			if !inTag {
				result.WriteRune(ch)
			}
		}
	}

	return result.String()
}
