package stage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/valpere/news2docx/internal/backend"
	"github.com/valpere/news2docx/internal/paragraph"
	"github.com/valpere/news2docx/internal/postprocess"
)

// enumRe strips the "[3] " markers models sometimes copy from the prompt.
var enumRe = regexp.MustCompile(`^\s*\[\d+\]\s*`)

// parseBody turns a normalization reply into paragraphs.
func parseBody(text string) []string {
	return paragraph.Split(postprocess.Plain(text))
}

// parseTranslation extracts the title and paragraph list of a translation
// reply. Segment responses map one-to-one: the first segment is the title.
// Chat replies are expected to be a JSON object; a %%-separated plain reply
// is accepted when no JSON object can be found.
func parseTranslation(resp *backend.Response) (string, []string, error) {
	if resp == nil {
		return "", nil, fmt.Errorf("%w: nil response", backend.ErrMalformed)
	}
	if len(resp.Segments) > 0 {
		return strings.TrimSpace(resp.Segments[0]), cleanSegments(resp.Segments[1:]), nil
	}

	text := postprocess.StripFences(postprocess.Clean(resp.Text))
	if obj, ok := jsonObject(text); ok {
		res := gjson.Parse(obj)
		items := res.Get("paragraphs")
		if !items.IsArray() {
			return "", nil, fmt.Errorf("%w: reply has no paragraphs array", backend.ErrMalformed)
		}
		var paras []string
		items.ForEach(func(_, v gjson.Result) bool {
			if v.IsObject() {
				v = v.Get("text")
			}
			paras = append(paras, v.String())
			return true
		})
		return strings.TrimSpace(res.Get("title").String()), cleanSegments(paras), nil
	}

	if !strings.Contains(text, paragraph.Separator) {
		return "", nil, fmt.Errorf("%w: reply is neither JSON nor %s-separated", backend.ErrMalformed, paragraph.Separator)
	}
	return "", cleanSegments(paragraph.Split(text)), nil
}

// jsonObject returns the outermost {...} span of text if it is valid JSON.
func jsonObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	obj := text[start : end+1]
	return obj, gjson.Valid(obj)
}

func cleanSegments(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		s = enumRe.ReplaceAllString(s, "")
		out[i] = strings.Join(strings.Fields(postprocess.Plain(s)), " ")
	}
	return out
}
