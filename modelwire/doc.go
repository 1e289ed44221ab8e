// Package modelwire is the model-consultation boundary for the planner loop.
//
// It exposes a small streaming contract: build a Request from conversation
// messages and tool definitions, call Client.Stream, and consume an ordered
// channel of StreamEvent values that always ends with exactly one finish or
// error event before the channel closes. The planloop package is the sole
// consumer of the raw stream; downstream observers subscribe to the loop's
// re-emitted run events instead.
//
// Provider access goes through the ProviderAdapter interface. The shipped
// GollmAdapter wraps github.com/teilomillet/gollm, forwarding text tokens as
// deltas and parsing tool calls from the completed response. Adapters are
// constructed explicitly by the caller and registered on a Client; there is
// no ambient default client.
//
// Provider failures are classified into a typed error hierarchy
// (AuthenticationError, RateLimitError, ServerError, ...) with IsRetryable
// deciding whether the adapter's establishment path may retry. Consumers
// treat any error surfaced past this package as terminal for the turn.
package modelwire
