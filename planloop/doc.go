// Package planloop implements the issue-planning agent loop.
//
// Given a GitHub issue reference, a Loop drives repeated model consultations
// against a growing conversation: each turn the model either requests
// research tool calls (read the issue, list or read repository files, search
// or fetch external docs) or streams the final execution plan. Tool calls
// are dispatched serially through a ToolRegistry, their results appended to
// the conversation, and every step is surfaced as a typed RunEvent so hosts
// can render progress live or replay a persisted log.
//
// The package is organized around these core concepts:
//
//   - Loop: The orchestrator holding the injected consultant and registry,
//     enforcing the turn budget, and emitting the event stream.
//   - ToolRegistry: Registration, lookup, and failure-capturing invocation
//     of research tools.
//   - RunEvent / EventSink: The ordered event model; exactly one done or
//     error event terminates every run.
//   - PlanAssembler: Concatenates output_text fragments into the plan,
//     idempotent over a replayed log.
//
// # Quick Start
//
//	client := modelwire.NewClient(modelwire.WithProvider("openai", adapter))
//	registry := planloop.NewToolRegistry()
//	ghsource.RegisterTools(registry, ghClient)
//
//	loop := planloop.NewLoop(client, registry, nil)
//	result, err := loop.Run(ctx, planloop.IssueRef{Repo: "owner/name", IssueNumber: 7})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Plan)
package planloop
