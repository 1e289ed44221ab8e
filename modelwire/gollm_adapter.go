package modelwire

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
// It translates between modelwire types and gollm's prompt API.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
	retry    RetryPolicy
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	retry       RetryPolicy
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithRetryPolicy overrides the stream-establishment retry policy.
func WithRetryPolicy(p RetryPolicy) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.retry = p
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given provider. If
// apiKey is empty, gollm reads it from environment variables.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:      apiKey,
		maxTokens:   8192,
		temperature: 0.2,
		retry:       DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-3-5-sonnet-20241022"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retry handled here, not inside gollm
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmAdapter{
		provider: provider,
		llm:      llm,
		model:    model,
		retry:    cfg.retry,
	}, nil
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Stream sends a streaming consultation. Text tokens are forwarded as they
// arrive; tool calls are parsed from the accumulated response once the
// provider stream ends, then the channel is closed after a finish event.
func (a *GollmAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	ch := make(chan StreamEvent, 64)

	if !a.llm.SupportsStreaming() {
		go a.generateBlocking(ctx, req, prompt, ch)
		return ch, nil
	}

	stream, err := a.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, ClassifyProviderError(a.provider, err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		ch <- StreamEvent{Type: StreamStart}

		var full strings.Builder
		scrub := &textScrubber{}
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Error: ClassifyProviderError(a.provider, err)}
				return
			}
			if token == nil {
				continue
			}
			full.WriteString(token.Text)
			if out := scrub.feed(token.Text); out != "" {
				ch <- StreamEvent{Type: TextDelta, Delta: out}
			}
		}
		if out := scrub.flush(); out != "" {
			ch <- StreamEvent{Type: TextDelta, Delta: out}
		}

		a.finish(req, full.String(), ch)
	}()

	return ch, nil
}

// generateBlocking is the fallback for providers without token streaming:
// one blocking generation emitted as a single delta.
func (a *GollmAdapter) generateBlocking(ctx context.Context, req Request, prompt *gollm.Prompt, ch chan<- StreamEvent) {
	defer close(ch)
	ch <- StreamEvent{Type: StreamStart}

	text, err := Retry(ctx, a.retry, func(ctx context.Context) (string, error) {
		t, err := a.llm.Generate(ctx, prompt)
		if err != nil {
			return "", ClassifyProviderError(a.provider, err)
		}
		return t, nil
	})
	if err != nil {
		ch <- StreamEvent{Type: StreamError, Error: err}
		return
	}

	display := text
	if len(parseToolCalls(text)) > 0 {
		display = removeToolCallJSON(text)
	}
	if display != "" {
		ch <- StreamEvent{Type: TextDelta, Delta: display}
	}
	a.finish(req, text, ch)
}

// finish parses tool calls out of the accumulated text, emits them, and ends
// the stream with a finish event carrying an approximate usage count.
func (a *GollmAdapter) finish(req Request, text string, ch chan<- StreamEvent) {
	for _, tc := range parseToolCalls(text) {
		call := tc
		ch <- StreamEvent{Type: ToolCallEvent, ToolCall: &call}
	}
	usage := Usage{
		InputTokens:  estimateTokens(req),
		OutputTokens: len(text) / 4,
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	ch <- StreamEvent{Type: StreamFinish, Usage: &usage}
}

// translateRequest converts a modelwire Request into a gollm Prompt. gollm
// takes a single prompt string, so prior turns are flattened with role
// prefixes.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt string
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.TextContent() + "\n"
		case RoleUser:
			parts = append(parts, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				parts = append(parts, "[Assistant]: "+text)
			}
			for _, p := range msg.Content {
				if p.Kind == ContentToolCall && p.ToolCall != nil {
					args := string(p.ToolCall.Arguments)
					parts = append(parts, fmt.Sprintf("[Assistant called %s]: %s", p.ToolCall.Name, args))
				}
			}
		case RoleTool:
			for _, p := range msg.Content {
				if p.Kind == ContentToolResult && p.ToolResult != nil {
					prefix := "[Tool Result]"
					if p.ToolResult.IsError {
						prefix = "[Tool Error]"
					}
					parts = append(parts, prefix+": "+p.ToolResult.Content)
				}
			}
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	promptOpts := []gollm.PromptOption{}
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.ToolDefs) > 0 {
		tools := make([]gollm.Tool, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		promptOpts = append(promptOpts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// toolCallMarkers are the prefixes gollm uses when it embeds tool calls in
// the response text.
var toolCallMarkers = []string{`{"tool_calls"`, `[{"name"`}

// markerHoldback is the longest marker length minus one: the number of
// trailing bytes that could still turn out to be the start of a marker.
const markerHoldback = len(`{"tool_calls"`) - 1

// toolCallStart returns the index of the earliest tool-call marker in text,
// or -1.
func toolCallStart(text string) int {
	start := -1
	for _, marker := range toolCallMarkers {
		if idx := strings.Index(text, marker); idx != -1 && (start == -1 || idx < start) {
			start = idx
		}
	}
	return start
}

// removeToolCallJSON strips the embedded tool-call JSON from response text,
// leaving only the text meant for the reader.
func removeToolCallJSON(text string) string {
	if idx := toolCallStart(text); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

// textScrubber filters tool-call JSON out of a token stream. Tokens are
// emitted with a small holdback so a marker split across token boundaries is
// still caught; once a marker is seen, the rest of the stream is tool-call
// payload and no further text is emitted.
type textScrubber struct {
	pending    string
	suppressed bool
}

// feed consumes one token and returns the text now safe to emit.
func (s *textScrubber) feed(token string) string {
	if s.suppressed {
		return ""
	}
	s.pending += token
	if idx := toolCallStart(s.pending); idx != -1 {
		lead := strings.TrimRight(s.pending[:idx], " \t\r\n")
		s.suppressed = true
		s.pending = ""
		return lead
	}
	safe := len(s.pending) - markerHoldback
	if safe <= 0 {
		return ""
	}
	for safe > 0 && !utf8.RuneStart(s.pending[safe]) {
		safe--
	}
	out := s.pending[:safe]
	s.pending = s.pending[safe:]
	return out
}

// flush returns any held-back text once the stream has ended cleanly.
func (s *textScrubber) flush() string {
	if s.suppressed {
		return ""
	}
	out := s.pending
	s.pending = ""
	return out
}

// parseToolCalls extracts tool calls that gollm returns embedded in the
// response text as a JSON array of {"name": ..., "arguments": ...} objects.
func parseToolCalls(text string) []ToolCall {
	start := toolCallStart(text)
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err != nil {
		return nil
	}

	calls := make([]ToolCall, 0, len(rawCalls))
	for _, rc := range rawCalls {
		calls = append(calls, ToolCall{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: rc.Arguments,
		})
	}
	return calls
}

// estimateTokens provides a rough token count estimate from request messages.
// gollm does not expose provider usage numbers.
func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			if part.Kind == ContentText {
				total += len(part.Text) / 4
			}
		}
	}
	return total
}
