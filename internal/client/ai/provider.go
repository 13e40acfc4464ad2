// Package ai is the AI inference API boundary. A pluggable Provider does
// the raw model call; the Analyzer wraps it with the response cache and the
// full protection chain. Inference calls are expensive, so the breaker for
// this resource trips faster than the source-control one.
package ai

import "context"

// Provider performs one raw inference call against a model backend.
type Provider interface {
	// Name identifies the backend ("claude", "openai") for logs and keys.
	Name() string

	// Complete sends the prompt and returns the model's text response.
	Complete(ctx context.Context, prompt string) (string, error)
}

// CircuitName is the breaker name shared by all inference calls.
const CircuitName = "ai-api"

// metricsScope prefixes the series the analyzer records.
const metricsScope = "ai_api"

// maxPromptChars bounds the prompt to keep requests inside token limits.
const maxPromptChars = 10000
