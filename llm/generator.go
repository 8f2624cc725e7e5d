// Package llm is the text-generation port used by the narrative service.
// A Generator takes a prompt and returns raw text; it knows nothing about
// schemas beyond passing an optional JSON schema hint to backends that
// support structured output.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Request is a single non-streamed generation call.
type Request struct {
	Prompt      string
	Temperature float64
	Seed        int
	ContextSize int
	MaxTokens   int

	// SchemaName and Schema describe the expected JSON document.
	// Backends without structured output ignore them.
	SchemaName string
	Schema     map[string]any
}

// Generator produces raw text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Generate(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// Middleware decorates a Generator.
type Middleware func(Generator) Generator

// Wrap applies middlewares in left-to-right order: Wrap(g, A, B) => A(B(g)).
func Wrap(inner Generator, mws ...Middleware) Generator {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrUnavailable is returned by a generator that is switched off.
var ErrUnavailable = errors.New("generation service unavailable")

// TransportError is a failed call to the generation backend. Retryable.
type TransportError struct {
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("generation attempt %d: %v", e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PermanentError is a failure that a retry cannot fix (bad request, auth).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Unavailable returns a Generator that always fails with ErrUnavailable.
func Unavailable() Generator {
	return Func(func(context.Context, Request) (string, error) {
		return "", &PermanentError{Err: ErrUnavailable}
	})
}

// =============================================================================
// CONFIG
// =============================================================================

// Config selects and configures a backend.
type Config struct {
	Provider string `yaml:"provider"` // ollama, openai, none
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

// New creates a Generator from configuration.
func New(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "none":
		return Unavailable(), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
