package planloop

import (
	"time"

	"github.com/martinemde/issueplanner/modelwire"
)

// TurnKind discriminates between conversation turn types.
type TurnKind string

const (
	TurnSystem      TurnKind = "system"
	TurnUser        TurnKind = "user"
	TurnAssistant   TurnKind = "assistant"
	TurnToolResults TurnKind = "tool_results"
)

// Turn is a single entry in the conversation. The conversation grows
// monotonically within one run: every assistant turn carrying tool calls is
// followed by exactly one tool-results turn resolving all of them before the
// model is consulted again.
type Turn struct {
	Kind        TurnKind                   `json:"kind"`
	Timestamp   time.Time                  `json:"timestamp"`
	Content     string                     `json:"content,omitempty"`
	ToolCalls   []modelwire.ToolCall       `json:"tool_calls,omitempty"`
	ToolResults []modelwire.ToolResultData `json:"tool_results,omitempty"`
}

// NewSystemTurn creates a system instruction turn.
func NewSystemTurn(content string) Turn {
	return Turn{Kind: TurnSystem, Timestamp: time.Now(), Content: content}
}

// NewUserTurn creates a user request turn.
func NewUserTurn(content string) Turn {
	return Turn{Kind: TurnUser, Timestamp: time.Now(), Content: content}
}

// NewAssistantTurn creates an assistant turn with optional tool calls.
func NewAssistantTurn(content string, toolCalls []modelwire.ToolCall) Turn {
	return Turn{
		Kind:      TurnAssistant,
		Timestamp: time.Now(),
		Content:   content,
		ToolCalls: toolCalls,
	}
}

// NewToolResultsTurn creates a turn resolving the preceding assistant turn's
// tool calls.
func NewToolResultsTurn(results []modelwire.ToolResultData) Turn {
	return Turn{Kind: TurnToolResults, Timestamp: time.Now(), ToolResults: results}
}

// ConvertHistoryToMessages converts the turn-based conversation into model
// messages for the next consultation.
func ConvertHistoryToMessages(history []Turn) []modelwire.Message {
	var messages []modelwire.Message
	for _, turn := range history {
		switch turn.Kind {
		case TurnSystem:
			messages = append(messages, modelwire.SystemMessage(turn.Content))
		case TurnUser:
			messages = append(messages, modelwire.UserMessage(turn.Content))
		case TurnAssistant:
			msg := modelwire.AssistantMessage(turn.Content)
			for _, tc := range turn.ToolCalls {
				msg.Content = append(msg.Content,
					modelwire.ToolCallPart(tc.ID, tc.Name, tc.Arguments))
			}
			messages = append(messages, msg)
		case TurnToolResults:
			for _, result := range turn.ToolResults {
				messages = append(messages,
					modelwire.ToolResultMessage(result.ToolCallID, result.Content, result.IsError))
			}
		}
	}
	return messages
}
