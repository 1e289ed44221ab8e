package planloop

import "strings"

// PlanAssembler collects output_text fragments into the final plan document.
// It can be fed live while the loop runs or replayed over a persisted event
// log; assembling the same log twice yields byte-identical text.
type PlanAssembler struct {
	sb strings.Builder
}

// NewPlanAssembler creates an empty assembler.
func NewPlanAssembler() *PlanAssembler {
	return &PlanAssembler{}
}

// Feed consumes one event. Only output_text fragments contribute to the
// plan; every other event kind is ignored.
func (a *PlanAssembler) Feed(event RunEvent) {
	if event.Kind == EventOutputText {
		a.sb.WriteString(event.Fragment)
	}
}

// String returns the plan assembled so far.
func (a *PlanAssembler) String() string {
	return a.sb.String()
}

// Reset discards all assembled text.
func (a *PlanAssembler) Reset() {
	a.sb.Reset()
}

// AssemblePlan reconstructs the plan text from a full event log without
// re-running the loop.
func AssemblePlan(events []RunEvent) string {
	var a PlanAssembler
	for _, event := range events {
		a.Feed(event)
	}
	return a.String()
}
