package llm

import (
	"context"
	"fmt"

	"tutor/internal/config"
	"tutor/internal/domain"
	"tutor/internal/llm/gemini"
	"tutor/internal/llm/ollama"
	"tutor/internal/llm/openai"
)

// New builds the completer for cfg.Type, rate limited to cfg.RequestsPerMinute.
func New(ctx context.Context, cfg config.CompletionConfig) (domain.Completer, error) {
	var (
		c   domain.Completer
		err error
	)
	switch cfg.Type {
	case "openai":
		c, err = wrap(openai.NewClient(openai.Config{BaseURL: cfg.BaseURL, APIKeyEnv: cfg.APIKeyEnv, Model: cfg.Model}))
	case "ollama":
		c, err = wrap(ollama.NewClient(cfg.BaseURL, cfg.Model))
	case "gemini":
		c, err = wrap(gemini.NewClient(ctx, cfg.APIKeyEnv, cfg.Model))
	default:
		return nil, fmt.Errorf("unknown completion type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return NewRateLimited(c, cfg.RequestsPerMinute), nil
}

func wrap[C domain.Completer](c C, err error) (domain.Completer, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}
