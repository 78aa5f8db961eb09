// Package chromem adapts philippgille/chromem-go embedding functions to the
// memory subsystem's Embedder capability. It covers OpenAI, OpenAI-compatible
// and Ollama embedding endpoints without pulling in provider SDKs.
package chromem

import (
	"context"
	"fmt"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/memkeep/memkeep/internal/memory"
)

// Embedder wraps a chromem-go EmbeddingFunc as a memory.Embedder.
type Embedder struct {
	fn chromemgo.EmbeddingFunc
}

// Compile-time interface check.
var _ memory.Embedder = (*Embedder)(nil)

// New wraps fn. The function is called once per Embed and may be shared
// across goroutines.
func New(fn chromemgo.EmbeddingFunc) *Embedder {
	return &Embedder{fn: fn}
}

// NewOpenAI creates an Embedder for the OpenAI embeddings API.
// An empty model defaults to text-embedding-3-small.
func NewOpenAI(apiKey, model string) *Embedder {
	if model == "" {
		model = string(chromemgo.EmbeddingModelOpenAI3Small)
	}
	return New(chromemgo.NewEmbeddingFuncOpenAI(apiKey, chromemgo.EmbeddingModelOpenAI(model)))
}

// NewOpenAICompat creates an Embedder for any OpenAI-compatible embeddings
// endpoint (LocalAI, llama.cpp server, vLLM, and similar).
func NewOpenAICompat(baseURL, apiKey, model string) *Embedder {
	return New(chromemgo.NewEmbeddingFuncOpenAICompat(baseURL, apiKey, model, nil))
}

// NewOllama creates an Embedder for a local Ollama instance. An empty
// baseURL uses chromem-go's default (http://localhost:11434/api).
func NewOllama(model, baseURL string) *Embedder {
	return New(chromemgo.NewEmbeddingFuncOllama(model, baseURL))
}

// Embed implements memory.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.fn(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("chromem: embed: %w", err)
	}
	return vec, nil
}
