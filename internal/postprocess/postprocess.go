// Package postprocess removes common LLM artifacts from backend replies.
//
// Every chat-completion reply passes through Clean before it is parsed. Plain
// additionally flattens markdown so word counts and paragraph splits see the
// same text the exporter will print.
package postprocess

import (
	"regexp"
	"strings"

	"github.com/valpere/news2docx/internal/markdown"
)

// Clean removes LLM artifacts from text in three phases and returns the
// trimmed result:
//  1. Thinking / reasoning block removal
//  2. Instruction echo removal (prompt leakage)
//  3. Quote wrapping removal
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeInstructionEchoes(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// Plain runs Clean, drops code fences and renders markdown emphasis,
// headings and lists down to plain paragraphs separated by blank lines.
func Plain(text string) string {
	text = Clean(text)
	text = StripFences(text)
	return strings.TrimSpace(markdown.ToPlainText([]byte(text)))
}

// --- Phase 1: thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// Each tag variant is listed explicitly because Go's RE2 engine does not
// support backreferences.
// Flags: i = case-insensitive, s = dot matches newline.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- Phase 2: instruction echoes ---

// echoPatterns match introductory phrases that LLMs sometimes prepend even
// when instructed not to. Each pattern is anchored to the start of the string
// and requires a colon to reduce false positives on legitimate content.
var echoPatterns = []*regexp.Regexp{
	// "Here is / Here's [the] [rewritten|adjusted|...] [article|translation|text]:"
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the| your)? (?:refined |polished |translated |rewritten |adjusted |revised |expanded |edited )?(?:translation|text|article|version|body)\s*:`),
	// "[The] [rewritten|translated] [article|translation]:"
	regexp.MustCompile(`(?i)^(?:the )?(?:refined |polished |rewritten |revised |adjusted )?(?:translation|translated text|article|rewritten article)\s*:`),
	// "Certainly / Sure / Of course[,] here is [the] translation:"
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is)(?: the| your)? (?:refined |polished |translated |rewritten |adjusted |revised )?(?:translation|text|article|version)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- Phase 3: quote wrapping ---

// removeQuoteWrapping strips a matching pair of outer quotes when the entire
// text is wrapped in them (a common LLM artifact). Supported pairs:
//
//	"…"  '…'  «…»  "…"  '…'
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}

	first, last := runes[0], runes[n-1]
	inner := string(runes[1 : n-1])
	// A quote char inside means the outer pair is not a wrapper but two
	// separately quoted phrases.
	if strings.ContainsRune(inner, first) || strings.ContainsRune(inner, last) {
		return text
	}
	if (first == '"' && last == '"') ||
		(first == '\'' && last == '\'') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') || // " "
		(first == '‘' && last == '’') { //  ' '
		return strings.TrimSpace(inner)
	}
	return text
}

// --- fences ---

var fenceLineRe = regexp.MustCompile("(?m)^\\s*```[a-zA-Z0-9_-]*\\s*$")

// StripFences removes markdown code fence lines while keeping their content.
// Models often wrap JSON or the whole reply in ```…``` blocks.
func StripFences(text string) string {
	return strings.TrimSpace(fenceLineRe.ReplaceAllString(text, ""))
}
