package providers

import (
	"context"
	"errors"
	"fmt"
)

// CompletionRequest represents a single text-generation call.
type CompletionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// CompletionProvider defines the interface for text-generation endpoints.
type CompletionProvider interface {
	// Complete performs a non-streaming completion and returns the text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// EmbeddingProvider defines the interface for embedding endpoints.
type EmbeddingProvider interface {
	// Embed converts text to a fixed-length vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TransientError marks overload-class inference failures. Only these are
// eligible for backoff-retry; everything else propagates immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("inference endpoint overloaded: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is an overload-class inference failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
