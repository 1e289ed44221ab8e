package planloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/martinemde/issueplanner/modelwire"
)

// scriptedTurn describes what the scripted consultant streams for one
// consultation.
type scriptedTurn struct {
	reasoning []string
	text      []string
	calls     []modelwire.ToolCall
	streamErr error
}

// scriptedConsultant replays a fixed sequence of turns and records every
// request it receives.
type scriptedConsultant struct {
	turns    []scriptedTurn
	requests []modelwire.Request
	startErr error
}

func (s *scriptedConsultant) Stream(ctx context.Context, req modelwire.Request) (<-chan modelwire.StreamEvent, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.requests = append(s.requests, req)
	if len(s.requests) > len(s.turns) {
		return nil, fmt.Errorf("scripted consultant exhausted after %d turns", len(s.turns))
	}
	turn := s.turns[len(s.requests)-1]

	ch := make(chan modelwire.StreamEvent, 16)
	go func() {
		defer close(ch)
		ch <- modelwire.StreamEvent{Type: modelwire.StreamStart}
		for _, r := range turn.reasoning {
			ch <- modelwire.StreamEvent{Type: modelwire.ReasoningDelta, Delta: r}
		}
		for _, t := range turn.text {
			ch <- modelwire.StreamEvent{Type: modelwire.TextDelta, Delta: t}
		}
		if turn.streamErr != nil {
			ch <- modelwire.StreamEvent{Type: modelwire.StreamError, Error: turn.streamErr}
			return
		}
		for i := range turn.calls {
			call := turn.calls[i]
			ch <- modelwire.StreamEvent{Type: modelwire.ToolCallEvent, ToolCall: &call}
		}
		ch <- modelwire.StreamEvent{Type: modelwire.StreamFinish, Usage: &modelwire.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}}
	}()
	return ch, nil
}

func rawArgs(t *testing.T, v map[string]interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return raw
}

// planningRegistry builds a registry with stubbed research tools.
func planningRegistry() *ToolRegistry {
	reg := NewToolRegistry()
	reg.Register(RegisteredTool{
		Spec: ToolSpec{Name: "get_issue", Description: "Fetch a GitHub issue."},
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			return `{"title": "Bug X"}`, nil
		},
	})
	reg.Register(RegisteredTool{
		Spec: ToolSpec{Name: "list_repo_files", Description: "List repository files."},
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			return `["src/app.py"]`, nil
		},
	})
	return reg
}

// checkPairing verifies every tool_call_started has exactly one matching
// tool_call_finished later in the log with no duplicate started indices.
func checkPairing(t *testing.T, events []RunEvent) {
	t.Helper()
	started := make(map[int]int)
	finished := make(map[int]int)
	for i, e := range events {
		switch e.Kind {
		case EventToolCallStarted:
			if prev, ok := started[e.Index]; ok {
				t.Errorf("index %d started twice (events %d and %d)", e.Index, prev, i)
			}
			started[e.Index] = i
		case EventToolCallFinished:
			s, ok := started[e.Index]
			if !ok {
				t.Errorf("finished for index %d with no started", e.Index)
				continue
			}
			if i <= s {
				t.Errorf("finished for index %d at %d does not follow started at %d", e.Index, i, s)
			}
			if prev, ok := finished[e.Index]; ok {
				t.Errorf("index %d finished twice (events %d and %d)", e.Index, prev, i)
			}
			finished[e.Index] = i
		}
	}
	if len(started) != len(finished) {
		t.Errorf("%d started vs %d finished", len(started), len(finished))
	}
}

func TestRunThreeTurnScenario(t *testing.T) {
	consultant := &scriptedConsultant{turns: []scriptedTurn{
		{
			reasoning: []string{"Reading the issue first."},
			calls: []modelwire.ToolCall{
				{ID: "call_1", Name: "get_issue", Arguments: rawArgs(t, map[string]interface{}{"repo": "o/r", "issue_number": 7})},
			},
		},
		{
			calls: []modelwire.ToolCall{
				{ID: "call_2", Name: "list_repo_files", Arguments: rawArgs(t, map[string]interface{}{"repo": "o/r", "path_prefixes": []string{"src/"}})},
			},
		},
		{
			text: []string{"Plan: ", "fix app.py"},
		},
	}}

	loop := NewLoop(consultant, planningRegistry(), &RunConfig{MaxTurns: 3})
	result, err := loop.Run(context.Background(), IssueRef{Repo: "o/r", IssueNumber: 7})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.Plan != "Plan: fix app.py" {
		t.Errorf("plan = %q, want %q", result.Plan, "Plan: fix app.py")
	}
	if result.ToolCallCount != 2 {
		t.Errorf("tool call count = %d, want 2", result.ToolCallCount)
	}
	if len(result.ToolsUsed) != 2 || result.ToolsUsed[0] != "get_issue" || result.ToolsUsed[1] != "list_repo_files" {
		t.Errorf("tools used = %v, want [get_issue list_repo_files]", result.ToolsUsed)
	}

	last := result.Events[len(result.Events)-1]
	if last.Kind != EventDone {
		t.Fatalf("last event = %s, want done", last.Kind)
	}
	if last.ToolCallCount != 2 {
		t.Errorf("done tool_call_count = %d, want 2", last.ToolCallCount)
	}

	doneCount := 0
	startedCount := 0
	for _, e := range result.Events {
		switch e.Kind {
		case EventDone:
			doneCount++
		case EventToolCallStarted:
			startedCount++
		case EventError:
			t.Errorf("unexpected error event in successful run: %+v", e)
		}
	}
	if doneCount != 1 {
		t.Errorf("done events = %d, want exactly 1", doneCount)
	}
	if startedCount != last.ToolCallCount {
		t.Errorf("started events = %d, done count = %d", startedCount, last.ToolCallCount)
	}

	checkPairing(t, result.Events)
}

func TestRunFeedsToolResultsBackToModel(t *testing.T) {
	consultant := &scriptedConsultant{turns: []scriptedTurn{
		{calls: []modelwire.ToolCall{
			{ID: "call_1", Name: "get_issue", Arguments: rawArgs(t, map[string]interface{}{"repo": "o/r", "issue_number": 7})},
		}},
		{text: []string{"done"}},
	}}

	loop := NewLoop(consultant, planningRegistry(), &RunConfig{MaxTurns: 2})
	if _, err := loop.Run(context.Background(), IssueRef{Repo: "o/r", IssueNumber: 7}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(consultant.requests) != 2 {
		t.Fatalf("expected 2 consultations, got %d", len(consultant.requests))
	}

	// The second consultation must carry the resolved tool result so no
	// tool call is left outstanding.
	var found bool
	for _, msg := range consultant.requests[1].Messages {
		if msg.Role != modelwire.RoleTool {
			continue
		}
		for _, part := range msg.Content {
			if part.Kind == modelwire.ContentToolResult && part.ToolResult.ToolCallID == "call_1" {
				found = true
				if part.ToolResult.Content != `{"title": "Bug X"}` {
					t.Errorf("tool result content = %q", part.ToolResult.Content)
				}
				if part.ToolResult.IsError {
					t.Error("tool result unexpectedly marked as error")
				}
			}
		}
	}
	if !found {
		t.Error("second consultation missing the tool result for call_1")
	}

	// The tool schema is offered on every consultation.
	if len(consultant.requests[0].ToolDefs) != 2 || len(consultant.requests[1].ToolDefs) != 2 {
		t.Errorf("tool defs per request = %d, %d; want 2, 2",
			len(consultant.requests[0].ToolDefs), len(consultant.requests[1].ToolDefs))
	}
}

func TestRunBudgetExceeded(t *testing.T) {
	consultant := &scriptedConsultant{turns: []scriptedTurn{
		{calls: []modelwire.ToolCall{
			{ID: "call_1", Name: "get_issue", Arguments: rawArgs(t, map[string]interface{}{"repo": "o/r", "issue_number": 7})},
		}},
	}}

	loop := NewLoop(consultant, planningRegistry(), &RunConfig{MaxTurns: 1})
	result, err := loop.Run(context.Background(), IssueRef{Repo: "o/r", IssueNumber: 7})
	if err == nil {
		t.Fatal("expected budget error")
	}
	if KindOf(err) != ErrKindBudgetExceeded {
		t.Errorf("error kind = %s, want %s", KindOf(err), ErrKindBudgetExceeded)
	}

	last := result.Events[len(result.Events)-1]
	if last.Kind != EventError || last.ErrKind != ErrKindBudgetExceeded {
		t.Errorf("last event = %+v, want budget_exceeded error", last)
	}
	for _, e := range result.Events {
		if e.Kind == EventDone {
			t.Error("budget-exceeded run must never emit done")
		}
	}
	// The first turn's tool call was still dispatched before the budget hit.
	checkPairing(t, result.Events)
	if result.ToolCallCount != 1 {
		t.Errorf("tool call count = %d, want 1", result.ToolCallCount)
	}
}

func TestRunUnknownToolContinues(t *testing.T) {
	consultant := &scriptedConsultant{turns: []scriptedTurn{
		{calls: []modelwire.ToolCall{
			{ID: "call_1", Name: "delete_repo", Arguments: rawArgs(t, map[string]interface{}{"repo": "o/r"})},
		}},
		{text: []string{"Plan: no deletion needed"}},
	}}

	loop := NewLoop(consultant, planningRegistry(), &RunConfig{MaxTurns: 3})
	result, err := loop.Run(context.Background(), IssueRef{Repo: "o/r", IssueNumber: 7})
	if err != nil {
		t.Fatalf("unknown tool must not abort the run: %v", err)
	}

	var finished *RunEvent
	for i := range result.Events {
		if result.Events[i].Kind == EventToolCallFinished {
			finished = &result.Events[i]
		}
	}
	if finished == nil {
		t.Fatal("no tool_call_finished event for the unknown tool")
	}
	if !finished.IsError {
		t.Error("unknown tool result not marked as error")
	}

	// The synthesized error reaches the model so it can self-correct.
	var fedBack bool
	for _, msg := range consultant.requests[1].Messages {
		for _, part := range msg.Content {
			if part.Kind == modelwire.ContentToolResult && part.ToolResult.IsError {
				fedBack = true
			}
		}
	}
	if !fedBack {
		t.Error("unknown-tool error result not fed back to the model")
	}

	if len(result.ToolsUsed) != 0 {
		t.Errorf("tools used = %v, want empty (nothing registered was invoked)", result.ToolsUsed)
	}
	if result.Events[len(result.Events)-1].Kind != EventDone {
		t.Error("run should complete with done")
	}
}

func TestRunToolFailureDegrades(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(RegisteredTool{
		Spec: ToolSpec{Name: "get_issue", Description: "Fetch a GitHub issue."},
		Execute: func(ctx context.Context, args json.RawMessage) (string, error) {
			return "", errors.New("dial tcp: connection refused")
		},
	})

	consultant := &scriptedConsultant{turns: []scriptedTurn{
		{calls: []modelwire.ToolCall{
			{ID: "call_1", Name: "get_issue", Arguments: rawArgs(t, map[string]interface{}{"repo": "o/r", "issue_number": 7})},
		}},
		{text: []string{"Plan: retry later"}},
	}}

	loop := NewLoop(consultant, reg, &RunConfig{MaxTurns: 2})
	result, err := loop.Run(context.Background(), IssueRef{Repo: "o/r", IssueNumber: 7})
	if err != nil {
		t.Fatalf("tool failure must degrade, not abort: %v", err)
	}

	var sawErrorFinish bool
	for _, e := range result.Events {
		if e.Kind == EventToolCallFinished && e.IsError {
			sawErrorFinish = true
		}
	}
	if !sawErrorFinish {
		t.Error("expected an error-kind tool_call_finished event")
	}
	if result.Events[len(result.Events)-1].Kind != EventDone {
		t.Error("run should still complete with done")
	}
}

func TestRunModelConsultationFailure(t *testing.T) {
	consultant := &scriptedConsultant{startErr: errors.New("502 bad gateway")}

	loop := NewLoop(consultant, planningRegistry(), nil)
	result, err := loop.Run(context.Background(), IssueRef{Repo: "o/r", IssueNumber: 7})
	if KindOf(err) != ErrKindModelConsultation {
		t.Fatalf("error kind = %s, want %s", KindOf(err), ErrKindModelConsultation)
	}
	last := result.Events[len(result.Events)-1]
	if last.Kind != EventError || last.ErrKind != ErrKindModelConsultation {
		t.Errorf("last event = %+v", last)
	}
}

func TestRunStreamErrorMidTurn(t *testing.T) {
	consultant := &scriptedConsultant{turns: []scriptedTurn{
		{text: []string{"partial "}, streamErr: errors.New("connection reset")},
	}}

	loop := NewLoop(consultant, planningRegistry(), nil)
	result, err := loop.Run(context.Background(), IssueRef{Repo: "o/r", IssueNumber: 7})
	if KindOf(err) != ErrKindModelConsultation {
		t.Fatalf("error kind = %s, want %s", KindOf(err), ErrKindModelConsultation)
	}
	// Fragments streamed before the failure stay available to the assembler.
	if got := AssemblePlan(result.Events); got != "partial " {
		t.Errorf("partial plan = %q, want %q", got, "partial ")
	}
}

func TestRunCancelledBetweenTurns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	consultant := &scriptedConsultant{turns: []scriptedTurn{{text: []string{"never"}}}}
	loop := NewLoop(consultant, planningRegistry(), nil)
	result, err := loop.Run(ctx, IssueRef{Repo: "o/r", IssueNumber: 7})
	if KindOf(err) != ErrKindCancelled {
		t.Fatalf("error kind = %s, want %s", KindOf(err), ErrKindCancelled)
	}
	last := result.Events[len(result.Events)-1]
	if last.Kind != EventError || last.ErrKind != ErrKindCancelled {
		t.Errorf("cancelled run must still end with a terminal error event, got %+v", last)
	}
}

func TestRunEventsDeliveredToSinkInOrder(t *testing.T) {
	consultant := &scriptedConsultant{turns: []scriptedTurn{
		{calls: []modelwire.ToolCall{
			{ID: "call_1", Name: "get_issue", Arguments: rawArgs(t, map[string]interface{}{"repo": "o/r", "issue_number": 7})},
		}},
		{text: []string{"Plan: done"}},
	}}

	var seen []EventKind
	loop := NewLoop(consultant, planningRegistry(), &RunConfig{MaxTurns: 2})
	loop.SetSink(SinkFunc(func(e RunEvent) { seen = append(seen, e.Kind) }))

	result, err := loop.Run(context.Background(), IssueRef{Repo: "o/r", IssueNumber: 7})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(seen) != len(result.Events) {
		t.Fatalf("sink saw %d events, log has %d", len(seen), len(result.Events))
	}
	for i, e := range result.Events {
		if seen[i] != e.Kind {
			t.Errorf("event %d: sink saw %s, log has %s", i, seen[i], e.Kind)
		}
	}
}
