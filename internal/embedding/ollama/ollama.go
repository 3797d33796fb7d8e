package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ollama/ollama/api"

	"tutor/internal/llm/ollama"
)

// Embedder produces embeddings with a local Ollama model.
type Embedder struct {
	client *api.Client
	model  string

	mu        sync.Mutex
	dimension int
}

func NewEmbedder(host, model string) (*Embedder, error) {
	c, err := ollama.NewAPIClient(host)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(model) == "" {
		model = "nomic-embed-text"
	}
	return &Embedder{client: c, model: model}, nil
}

func (e *Embedder) Name() string { return "ollama" }

func (e *Embedder) Prepare(corpus []string) error { return nil }

func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, errors.New("ollama embed: no embedding returned")
	}
	v := widen(resp.Embeddings[0])
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(v)
	}
	e.mu.Unlock()
	return v, nil
}

// Ping checks the server is up.
func (e *Embedder) Ping(ctx context.Context) error { return e.client.Heartbeat(ctx) }

func widen(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, f := range in {
		out[i] = float64(f)
	}
	return out
}
