package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	llmgemini "tutor/internal/llm/gemini"
)

// Embedder produces embeddings with a Gemini embedding model.
type Embedder struct {
	client *genai.Client
	model  string

	mu        sync.Mutex
	dimension int
}

func NewEmbedder(ctx context.Context, apiKeyEnv, model string) (*Embedder, error) {
	c, err := llmgemini.NewGenAIClient(ctx, apiKeyEnv)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(model) == "" {
		model = "text-embedding-004"
	}
	return &Embedder{client: c, model: model}, nil
}

func (e *Embedder) Name() string { return "gemini" }

func (e *Embedder) Prepare(corpus []string) error { return nil }

func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini embed: no embedding returned")
	}
	vals := resp.Embeddings[0].Values
	v := make([]float64, len(vals))
	for i, f := range vals {
		v[i] = float64(f)
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(v)
	}
	e.mu.Unlock()
	return v, nil
}

// Ping fetches the embedding model metadata.
func (e *Embedder) Ping(ctx context.Context) error {
	_, err := e.client.Models.Get(ctx, e.model, nil)
	return err
}
