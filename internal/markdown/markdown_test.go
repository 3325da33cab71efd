package markdown

import (
	"strings"
	"testing"
)

func TestToPlainText(t *testing.T) {
	got := ToPlainText([]byte("# Markets\n\nStocks **rose** on *Friday*.\n\nFish & chips cost more."))

	for _, want := range []string{"Markets", "Stocks rose on Friday.", "Fish & chips cost more."} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
	if strings.ContainsAny(got, "*<>#") {
		t.Errorf("markup left in %q", got)
	}
	if !strings.Contains(got, "\n\n") {
		t.Errorf("block elements should stay separated, got %q", got)
	}
}

func TestToPlainText_KeepsQuotes(t *testing.T) {
	got := strings.TrimSpace(ToPlainText([]byte(`He said "no" -- twice.`)))
	if got != `He said "no" -- twice.` {
		t.Errorf("punctuation rewritten: %q", got)
	}
}

func TestStripHTMLTags(t *testing.T) {
	if got := StripHTMLTags("<p>Hello <b>world</b></p>"); got != "Hello world" {
		t.Errorf("StripHTMLTags() = %q", got)
	}
}
