// Package ollama runs chat completions against a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"tutor/internal/domain"
)

const defaultModel = "llama3.1"

// Client implements domain.Completer on the Ollama chat API.
type Client struct {
	client *api.Client
	model  string
}

// NewClient connects to host, or to OLLAMA_HOST when host is empty.
func NewClient(host, model string) (*Client, error) {
	c, err := NewAPIClient(host)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	return &Client{client: c, model: model}, nil
}

// NewAPIClient builds an api.Client for host, falling back to the environment.
func NewAPIClient(host string) (*api.Client, error) {
	if host == "" {
		return api.ClientFromEnvironment()
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("ollama: bad host %q: %w", host, err)
	}
	return api.NewClient(u, nil), nil
}

func (c *Client) chatRequest(req domain.CompletionRequest, stream bool) *api.ChatRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	msgs := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, api.Message{Role: string(domain.RoleSystem), Content: req.System})
	}
	for _, m := range req.Messages {
		text := m.Text()
		// Ollama takes raw image bytes only, so an uploaded image travels as its URL.
		if u := m.ImageURL(); u != "" {
			text += "\n\n[Attached image: " + u + "]"
		}
		msgs = append(msgs, api.Message{Role: string(m.Role), Content: text})
	}
	opts := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	return &api.ChatRequest{Model: model, Messages: msgs, Stream: &stream, Options: opts}
}

// Complete returns the whole reply of a non-streamed chat.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	var out strings.Builder
	err := c.client.Chat(ctx, c.chatRequest(req, false), func(cr api.ChatResponse) error {
		out.WriteString(cr.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return out.String(), nil
}

// Stream forwards each streamed message fragment to onDelta.
func (c *Client) Stream(ctx context.Context, req domain.CompletionRequest, onDelta func(string) error) error {
	err := c.client.Chat(ctx, c.chatRequest(req, true), func(cr api.ChatResponse) error {
		if cr.Message.Content == "" {
			return nil
		}
		return onDelta(cr.Message.Content)
	})
	if err != nil {
		return fmt.Errorf("ollama chat: %w", err)
	}
	return nil
}

// Ping checks the server is up.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Heartbeat(ctx)
}
