package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider generates CV improvement text from a prompt.
type Provider interface {
	// Generate produces an improved CV for the given prompt.
	Generate(ctx context.Context, params GenerateParams) (*GenerateResult, error)
}

// GenerateParams contains parameters for a generation request.
type GenerateParams struct {
	Prompt    string // User-facing prompt built from the questionnaire
	MaxTokens int    // Optional output token cap; provider default when 0
}

// GenerateResult contains the generated text plus usage information.
type GenerateResult struct {
	Text  string    // Improved CV content
	Usage UsageInfo // Token usage for monitoring
}

// UsageInfo tracks API usage for monitoring and cost attribution.
type UsageInfo struct {
	Model        string        // Model that served the request
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for providers.
type ProviderConfig struct {
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error values for provider operations. Callers map these onto HTTP
// responses; the provider itself never retries.
var (
	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")

	// EAIRateLimit indicates the provider rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIQuota indicates the account's usage quota is exhausted
	EAIQuota = errors.New("ai provider quota exhausted")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the service could not be reached or
	// returned a server error
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIEmptyResponse indicates the provider returned no usable content
	EAIEmptyResponse = errors.New("ai provider returned empty response")
)

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
