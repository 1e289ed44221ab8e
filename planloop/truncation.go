package planloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSummaryLimit is the character budget for the result summary carried
// on tool_call_finished events. Only the event summary is shortened; the
// full result is always fed back to the model verbatim.
const DefaultSummaryLimit = 240

// SummarizeResult produces the human-readable summary shown to observers for
// one tool result. Newlines are collapsed so the summary renders on a single
// line, then a head/tail truncation is applied when the content exceeds the
// limit.
func SummarizeResult(content string, limit int) string {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	flat := strings.Join(strings.Fields(content), " ")
	if len(flat) <= limit {
		return flat
	}

	// Both cut points must land on rune boundaries.
	head := limit / 2
	for head > 0 && !utf8.RuneStart(flat[head]) {
		head--
	}
	tailStart := len(flat) - limit/2
	for tailStart < len(flat) && !utf8.RuneStart(flat[tailStart]) {
		tailStart++
	}
	omitted := tailStart - head
	return flat[:head] +
		fmt.Sprintf(" [... %d chars omitted ...] ", omitted) +
		flat[tailStart:]
}
