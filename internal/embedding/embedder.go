// Package embedding selects the Embedder backend named by configuration.
package embedding

import (
	"context"
	"fmt"
	"time"

	"tutor/internal/config"
	"tutor/internal/domain"
	"tutor/internal/embedding/gemini"
	"tutor/internal/embedding/ollama"
	"tutor/internal/embedding/openai"
	"tutor/internal/embedding/tfidf"
)

// New builds the embedder for cfg.Type. The tfidf embedder still needs
// Prepare over the corpus before it can embed.
func New(ctx context.Context, cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "openai":
		oc := cfg.OpenAI
		if oc == nil {
			oc = &config.OpenAIEmbedderConfig{}
		}
		return wrap(openai.NewClient(openai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries: oc.MaxRetries,
		}))
	case "ollama":
		var host, model string
		if cfg.Ollama != nil {
			host, model = cfg.Ollama.Host, cfg.Ollama.Model
		}
		return wrap(ollama.NewEmbedder(host, model))
	case "gemini":
		var keyEnv, model string
		if cfg.Gemini != nil {
			keyEnv, model = cfg.Gemini.APIKeyEnv, cfg.Gemini.Model
		}
		return wrap(gemini.NewEmbedder(ctx, keyEnv, model))
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	default:
		return nil, fmt.Errorf("unknown embedder type: %q", cfg.Type)
	}
}

// wrap keeps a failed constructor from yielding a non-nil interface around a nil pointer.
func wrap[E domain.Embedder](e E, err error) (domain.Embedder, error) {
	if err != nil {
		return nil, err
	}
	return e, nil
}
