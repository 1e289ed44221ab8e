package modelwire

import "context"

// ProviderAdapter is the interface every provider backend must implement.
// Stream must deliver events in order and close the channel after exactly one
// StreamFinish or StreamError, marking the end of the turn.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Stream sends a request and returns a channel of stream events.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}
