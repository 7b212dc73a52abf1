// Package ai wraps the external embedding and completion services.
package ai

import "context"

// Embedder converts text into a fixed-length vector. The dimension must
// match the knowledge base's stored vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer sends a prompt to the LLM completion service and returns the
// raw response content. Callers parse the structured JSON themselves and
// fall back deterministically on any error.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
