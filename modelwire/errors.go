package modelwire

import (
	"fmt"
	"strings"
)

// ClientError is the base error type for all modelwire errors.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by a model provider.
type ProviderError struct {
	ClientError
	Provider   string
	StatusCode int
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ ClientError }
type NetworkError struct{ ClientError }
type AbortError struct{ ClientError }
type ConfigurationError struct{ ClientError }

// IsRetryable reports whether the error is safe to retry at the transport
// level. The orchestration loop never retries; only the adapter's stream
// establishment path consults this.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *AuthenticationError, *NotFoundError, *InvalidRequestError,
		*ContextLengthError, *ConfigurationError, *AbortError:
		return false
	case *RateLimitError, *ServerError, *NetworkError, *RequestTimeoutError:
		return true
	case *ProviderError:
		return e.Retryable
	default:
		// Unknown errors default to retryable.
		return true
	}
}

// ClassifyProviderError converts a raw provider/SDK error into the modelwire
// error hierarchy based on its message content. gollm surfaces provider
// failures as opaque errors, so classification is necessarily textual.
func ClassifyProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	base := func(status int, retryable bool) ProviderError {
		return ProviderError{
			ClientError: ClientError{Message: msg, Cause: err},
			Provider:    provider,
			StatusCode:  status,
			Retryable:   retryable,
		}
	}

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return &AuthenticationError{ProviderError: base(401, false)}
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found"):
		return &NotFoundError{ProviderError: base(404, false)}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return &RateLimitError{ProviderError: base(429, true)}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		return &ContextLengthError{ProviderError: base(413, false)}
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "internal server"):
		return &ServerError{ProviderError: base(500, true)}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return &RequestTimeoutError{ClientError: ClientError{Message: msg, Cause: err}}
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return &NetworkError{ClientError: ClientError{Message: msg, Cause: err}}
	default:
		pe := base(0, true)
		return &pe
	}
}
