package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/martinemde/issueplanner/planloop"
)

// renderer turns run events into console output: tool calls as numbered
// progress lines, reasoning as one-line notes, and the plan streamed verbatim.
type renderer struct {
	w       io.Writer
	midText bool
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

func (r *renderer) render(event planloop.RunEvent) {
	switch event.Kind {
	case planloop.EventReasoning:
		r.breakLine()
		fmt.Fprintf(r.w, "* Reasoning: %s\n", firstLine(event.Text, 100))

	case planloop.EventToolCallStarted:
		r.breakLine()
		fmt.Fprintf(r.w, "[%d] Calling: %s%s...\n", event.Index, event.ToolName, describeArgs(event.Args))

	case planloop.EventToolCallFinished:
		if event.IsError {
			fmt.Fprintf(r.w, "[%d] Failed: %s\n", event.Index, event.ResultSummary)
		}

	case planloop.EventOutputText:
		fmt.Fprint(r.w, event.Fragment)
		r.midText = true

	case planloop.EventDone:
		r.breakLine()
		if len(event.ToolsUsed) > 0 {
			fmt.Fprintf(r.w, "\n---\n\nTools used (%d): %s\n", event.ToolCallCount, strings.Join(event.ToolsUsed, ", "))
		}

	case planloop.EventError:
		r.breakLine()
		fmt.Fprintf(r.w, "\nError (%s): %s\n", event.ErrKind, event.Message)
	}
}

// breakLine ends an in-progress streamed text line before a status line.
func (r *renderer) breakLine() {
	if r.midText {
		fmt.Fprintln(r.w)
		r.midText = false
	}
}

func firstLine(s string, max int) string {
	line := strings.TrimSpace(s)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if len(line) > max {
		line = line[:max] + "..."
	}
	return line
}

// describeArgs picks the most recognizable argument for the progress line,
// the way a developer would skim a trace: repo#issue, a path, a query, a URL,
// or the listing filters.
func describeArgs(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return ""
	}

	if repo, ok := args["repo"].(string); ok {
		if n, ok := args["issue_number"].(float64); ok {
			return fmt.Sprintf(" -> %s#%d", repo, int(n))
		}
		if path, ok := args["path"].(string); ok {
			return fmt.Sprintf(" -> %s:%s", repo, path)
		}
		var filters []string
		if exts, ok := args["extensions"]; ok {
			filters = append(filters, fmt.Sprintf("ext=%v", exts))
		}
		if prefixes, ok := args["path_prefixes"]; ok {
			filters = append(filters, fmt.Sprintf("paths=%v", prefixes))
		}
		if len(filters) > 0 {
			return " -> " + strings.Join(filters, ", ")
		}
		return " -> " + repo
	}
	if query, ok := args["query"].(string); ok {
		if len(query) > 40 {
			query = query[:40] + "..."
		}
		return " -> " + query
	}
	if u, ok := args["url"].(string); ok {
		return " -> " + u
	}
	return ""
}
