package stage

import (
	"fmt"
	"strings"
)

const editorSystemPrompt = `You are a professional news editor.
STRICT RULES:
- Output ONLY the clean English article body, nothing else.
- DO NOT output titles, notes, remarks, timestamps, media names, sources, authors, copyright, image captions, ads or disclaimers.
- Keep the meaning, facts and style of the original.
- Separate paragraphs with a line containing only %%.`

func normalizePrompt(body []string, lo, hi int, last *candidate) string {
	var sb strings.Builder

	floor := paragraphFloor(len(body))
	sb.WriteString(fmt.Sprintf("Rewrite the article below so that it has between %d and %d words.\n", lo, hi))
	sb.WriteString(fmt.Sprintf("The source has %d paragraphs; keep a similar structure ", len(body)))
	if floor > 1 {
		sb.WriteString(fmt.Sprintf("with at least %d paragraphs. ", floor))
	} else {
		sb.WriteString("with one or more paragraphs. ")
	}
	sb.WriteString("Do not add information that is not in the source.\n")

	if last != nil {
		sb.WriteString(fmt.Sprintf("\nIMPORTANT: your previous version had %d words in %d paragraphs. ", last.words, len(last.paras)))
		switch {
		case last.words < lo:
			sb.WriteString(fmt.Sprintf("It was too short. Expand it to at least %d words. ", lo))
		case last.words > hi:
			sb.WriteString(fmt.Sprintf("It was too long. Shorten it to at most %d words. ", hi))
		}
		if !last.paraOK {
			sb.WriteString("Its paragraph structure was wrong; do not collapse or fragment paragraphs. ")
		}
		sb.WriteString("Count carefully.\n")
	}

	sb.WriteString("\nARTICLE:\n")
	sb.WriteString(strings.Join(body, "\n%%\n"))
	return sb.String()
}

func translateSystemPrompt(lang string) string {
	return fmt.Sprintf(`You are a professional %s translator of news articles.
STRICT RULES:
- Reply with a single JSON object and nothing else.
- Translate every numbered paragraph into exactly one %s paragraph, in the same order.
- Never merge, split, drop or add paragraphs.
- DO NOT output notes, remarks, sources, authors or captions.`, lang, lang)
}

func translatePrompt(title string, paras []string, lang string, lastGot int, wrongLang bool) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Translate the title and the %d numbered paragraphs below into %s.\n", len(paras), lang))
	sb.WriteString(`Reply with JSON: {"title": "<translated title>", "paragraphs": ["<paragraph 1>", "<paragraph 2>", ...]}` + "\n")
	sb.WriteString(fmt.Sprintf("The \"paragraphs\" array MUST contain exactly %d strings.\n", len(paras)))
	if lastGot >= 0 {
		sb.WriteString(fmt.Sprintf("\nIMPORTANT: your previous reply had %d paragraphs instead of %d. One array entry per numbered paragraph.\n", lastGot, len(paras)))
	}
	if wrongLang {
		sb.WriteString(fmt.Sprintf("\nIMPORTANT: your previous reply was not written in %s. Every paragraph and the title must be in %s.\n", lang, lang))
	}

	sb.WriteString("\nTITLE: ")
	sb.WriteString(title)
	sb.WriteString("\n\n")
	for i, p := range paras {
		sb.WriteString(fmt.Sprintf("[%d] %s\n", i+1, p))
	}
	return sb.String()
}
