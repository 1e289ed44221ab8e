package planloop

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/martinemde/issueplanner/modelwire"
)

// Consultant is the model-consultation capability the loop depends on.
// *modelwire.Client satisfies it; tests supply scripted implementations.
type Consultant interface {
	Stream(ctx context.Context, req modelwire.Request) (<-chan modelwire.StreamEvent, error)
}

// RunConfig is fixed at run start.
type RunConfig struct {
	// MaxTurns bounds the number of model consultations per run. A run that
	// would need one more consultation than this fails with a
	// budget_exceeded error.
	MaxTurns int `json:"max_turns"`

	// SummaryLimit is the character budget for result summaries on
	// tool_call_finished events. The full result still reaches the model.
	SummaryLimit int `json:"summary_limit"`

	// Model and Provider select what the consultant talks to. Empty values
	// defer to the consultant's defaults.
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// DefaultRunConfig returns the default configuration.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxTurns:     12,
		SummaryLimit: DefaultSummaryLimit,
	}
}

// RunResult is the outcome of one run. On failure it still carries every
// event emitted and whatever plan fragments were streamed before the
// terminal error.
type RunResult struct {
	RunID         string          `json:"run_id"`
	Plan          string          `json:"plan"`
	Events        []RunEvent      `json:"events"`
	ToolCallCount int             `json:"tool_call_count"`
	ToolsUsed     []string        `json:"tools_used"`
	Usage         modelwire.Usage `json:"usage"`
}

// runState is the loop's lifecycle state.
type runState string

const (
	stateAwaitingModel    runState = "awaiting_model"
	stateDispatchingTools runState = "dispatching_tools"
	stateDone             runState = "done"
	stateFailed           runState = "failed"
)

// Loop orchestrates planning runs: it repeatedly consults the model,
// dispatches requested tool calls serially through the registry, feeds
// results back into the conversation, and emits a totally ordered event
// stream until the model produces a final plan or the turn budget runs out.
//
// The consultant and registry are injected by the caller and shared
// read-only; each call to Run owns its conversation, counters, and event log
// exclusively.
type Loop struct {
	consultant Consultant
	registry   *ToolRegistry
	config     RunConfig
	sink       EventSink
}

// NewLoop creates a Loop. A nil config uses DefaultRunConfig.
func NewLoop(consultant Consultant, registry *ToolRegistry, config *RunConfig) *Loop {
	cfg := DefaultRunConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultRunConfig().MaxTurns
	}
	if cfg.SummaryLimit <= 0 {
		cfg.SummaryLimit = DefaultSummaryLimit
	}
	return &Loop{
		consultant: consultant,
		registry:   registry,
		config:     cfg,
		sink:       noopSink{},
	}
}

// SetSink subscribes a live observer. Must be called before Run; events are
// delivered synchronously in emission order.
func (l *Loop) SetSink(sink EventSink) {
	if sink == nil {
		sink = noopSink{}
	}
	l.sink = sink
}

// run holds the mutable state of one run.
type run struct {
	id        string
	history   []Turn
	events    []RunEvent
	assembler PlanAssembler
	usage     modelwire.Usage

	callIndex int      // global, 1-based across the run
	toolsUsed []string // distinct registered tool names, order of first use
	seenTools map[string]bool
}

func (r *run) markToolUsed(name string) {
	if !r.seenTools[name] {
		r.seenTools[name] = true
		r.toolsUsed = append(r.toolsUsed, name)
	}
}

// Run executes the full orchestration loop for one issue reference. It
// returns the assembled plan and the ordered event log; exactly one done or
// error event terminates the log. The context is checked between turns only;
// an in-flight tool invocation is never interrupted.
func (l *Loop) Run(ctx context.Context, ref IssueRef) (*RunResult, error) {
	r := &run{
		id:        uuid.New().String(),
		seenTools: make(map[string]bool),
	}
	r.history = append(r.history,
		NewSystemTurn(plannerSystemPrompt),
		NewUserTurn(BuildUserPrompt(ref)),
	)

	state := stateAwaitingModel
	turns := 0
	var pending []modelwire.ToolCall

	for {
		switch state {
		case stateAwaitingModel:
			if err := ctx.Err(); err != nil {
				return l.fail(r, cancellationError(err))
			}
			if turns+1 > l.config.MaxTurns {
				return l.fail(r, budgetExceededError(l.config.MaxTurns))
			}
			turns++

			calls, err := l.consult(ctx, r)
			if err != nil {
				return l.fail(r, consultationError(err))
			}
			if len(calls) == 0 {
				// Final turn: the streamed text fragments are the plan.
				return l.finish(r)
			}
			pending = calls
			state = stateDispatchingTools

		case stateDispatchingTools:
			results := make([]modelwire.ToolResultData, 0, len(pending))
			for _, call := range pending {
				// Serial dispatch, in the order the model produced the
				// calls: later calls may assume earlier results are already
				// in context, and observers rely on a stable index order.
				results = append(results, l.dispatch(ctx, r, call))
			}
			r.history = append(r.history, NewToolResultsTurn(results))
			pending = nil
			state = stateAwaitingModel
		}
	}
}

// consult performs one model consultation, re-emitting reasoning and output
// text fragments as they arrive, and returns the tool calls requested this
// turn. The raw model stream is consumed only here; observers see the loop's
// re-emitted events, which keeps the ordering contract in one place.
func (l *Loop) consult(ctx context.Context, r *run) ([]modelwire.ToolCall, error) {
	req := modelwire.Request{
		Model:    l.config.Model,
		Provider: l.config.Provider,
		Messages: ConvertHistoryToMessages(r.history),
		ToolDefs: l.registry.Definitions(),
	}

	stream, err := l.consultant.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	var text []byte
	var calls []modelwire.ToolCall
	for event := range stream {
		switch event.Type {
		case modelwire.ReasoningDelta:
			l.emit(r, RunEvent{Kind: EventReasoning, Text: event.Delta})
		case modelwire.TextDelta:
			text = append(text, event.Delta...)
			l.emit(r, RunEvent{Kind: EventOutputText, Fragment: event.Delta})
		case modelwire.ToolCallEvent:
			call := *event.ToolCall
			if call.ID == "" {
				call.ID = "call_" + uuid.New().String()[:8]
			}
			calls = append(calls, call)
		case modelwire.StreamFinish:
			if event.Usage != nil {
				r.usage = r.usage.Add(*event.Usage)
			}
		case modelwire.StreamError:
			return nil, event.Error
		}
	}

	r.history = append(r.history, NewAssistantTurn(string(text), calls))
	return calls, nil
}

// dispatch resolves and invokes one tool call, emitting the started/finished
// event pair and returning the result fed back to the model. A call naming
// an unregistered tool is answered with a synthesized error result so the
// model can self-correct on its next turn.
func (l *Loop) dispatch(ctx context.Context, r *run, call modelwire.ToolCall) modelwire.ToolResultData {
	r.callIndex++
	index := r.callIndex

	l.emit(r, RunEvent{
		Kind:     EventToolCallStarted,
		Index:    index,
		ToolName: call.Name,
		Args:     call.Arguments,
	})

	var outcome ToolOutcome
	tool, ok := l.registry.Resolve(call.Name)
	if !ok {
		outcome = ToolOutcome{
			Content: string(ErrKindUnknownTool) + ": no tool named " + call.Name + " is available",
			IsError: true,
		}
	} else {
		outcome = l.registry.Invoke(ctx, tool, call.Arguments)
		r.markToolUsed(call.Name)
	}

	l.emit(r, RunEvent{
		Kind:          EventToolCallFinished,
		Index:         index,
		ToolName:      call.Name,
		ResultSummary: SummarizeResult(outcome.Content, l.config.SummaryLimit),
		IsError:       outcome.IsError,
	})

	return modelwire.ToolResultData{
		ToolCallID: call.ID,
		Content:    outcome.Content,
		IsError:    outcome.IsError,
	}
}

// finish emits the terminal done event and packages the result.
func (l *Loop) finish(r *run) (*RunResult, error) {
	l.emit(r, RunEvent{
		Kind:          EventDone,
		ToolCallCount: r.callIndex,
		ToolsUsed:     append([]string(nil), r.toolsUsed...),
	})
	return l.result(r), nil
}

// fail emits the terminal error event and returns the partial result
// alongside the run error. Every fatal condition passes through here, so a
// run never ends silently.
func (l *Loop) fail(r *run, runErr *RunError) (*RunResult, error) {
	l.emit(r, RunEvent{
		Kind:    EventError,
		ErrKind: runErr.Kind,
		Message: runErr.Error(),
	})
	return l.result(r), runErr
}

func (l *Loop) result(r *run) *RunResult {
	return &RunResult{
		RunID:         r.id,
		Plan:          r.assembler.String(),
		Events:        r.events,
		ToolCallCount: r.callIndex,
		ToolsUsed:     append([]string(nil), r.toolsUsed...),
		Usage:         r.usage,
	}
}

// emit stamps, logs, assembles, and delivers one event, in that order.
func (l *Loop) emit(r *run, event RunEvent) {
	event.Timestamp = time.Now()
	event.RunID = r.id
	r.events = append(r.events, event)
	r.assembler.Feed(event)
	l.sink.Emit(event)
}
