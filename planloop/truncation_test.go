package planloop

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSummarizeResultShortContentUnchanged(t *testing.T) {
	if got := SummarizeResult("small result", 240); got != "small result" {
		t.Errorf("got %q", got)
	}
}

func TestSummarizeResultCollapsesWhitespace(t *testing.T) {
	got := SummarizeResult("line one\n\tline two\n\n  line three", 240)
	if got != "line one line two line three" {
		t.Errorf("got %q", got)
	}
}

func TestSummarizeResultHeadTailTruncation(t *testing.T) {
	content := strings.Repeat("a", 300) + strings.Repeat("z", 300)
	got := SummarizeResult(content, 100)

	if !strings.HasPrefix(got, strings.Repeat("a", 50)) {
		t.Errorf("summary head missing: %q", got[:60])
	}
	if !strings.HasSuffix(got, strings.Repeat("z", 50)) {
		t.Errorf("summary tail missing: %q", got[len(got)-60:])
	}
	if !strings.Contains(got, "[... 500 chars omitted ...]") {
		t.Errorf("omission marker wrong: %q", got)
	}
}

func TestSummarizeResultCutsOnRuneBoundaries(t *testing.T) {
	content := strings.Repeat("日本語テキスト", 100)
	for limit := 40; limit <= 50; limit++ {
		got := SummarizeResult(content, limit)
		if !utf8.ValidString(got) {
			t.Errorf("limit %d: summary contains a split rune: %q", limit, got)
		}
	}
}

func TestSummarizeResultZeroLimitUsesDefault(t *testing.T) {
	content := strings.Repeat("x", DefaultSummaryLimit+100)
	got := SummarizeResult(content, 0)
	if len(got) >= len(content) {
		t.Errorf("content above the default limit was not truncated")
	}
	if !strings.Contains(got, "omitted") {
		t.Errorf("got %q", got)
	}
}
