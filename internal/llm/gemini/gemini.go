// Package gemini runs chat completions through the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"strings"

	"google.golang.org/genai"

	"tutor/internal/domain"
)

const defaultModel = "gemini-2.0-flash"

// Client implements domain.Completer on genai.
type Client struct {
	client *genai.Client
	model  string
}

// NewGenAIClient builds a Gemini API client from the key in apiKeyEnv.
func NewGenAIClient(ctx context.Context, apiKeyEnv string) (*genai.Client, error) {
	if apiKeyEnv == "" {
		apiKeyEnv = "GEMINI_API_KEY"
	}
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s is not set", domain.ErrCredentialsMissing, apiKeyEnv)
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client init: %w", err)
	}
	return c, nil
}

func NewClient(ctx context.Context, apiKeyEnv, model string) (*Client, error) {
	c, err := NewGenAIClient(ctx, apiKeyEnv)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	return &Client{client: c, model: model}, nil
}

func (c *Client) modelFor(req domain.CompletionRequest) string {
	if strings.HasPrefix(strings.ToLower(req.Model), "gemini-") {
		return req.Model
	}
	return c.model
}

// Complete returns the text of the first candidate.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.modelFor(req), toContents(req.Messages), toConfig(req))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

// Stream forwards the text of every streamed response chunk.
func (c *Client) Stream(ctx context.Context, req domain.CompletionRequest, onDelta func(string) error) error {
	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.modelFor(req), toContents(req.Messages), toConfig(req)) {
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		if d := resp.Text(); d != "" {
			if err := onDelta(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ping fetches the model metadata.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.Models.Get(ctx, c.model, nil)
	return err
}

func toConfig(req domain.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return cfg
}

// toContents maps the conversation onto Gemini roles. Image parts are passed
// as file URIs with a MIME type guessed from the extension.
func toContents(msgs []domain.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.Role(genai.RoleUser)
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		if len(m.Parts) == 0 {
			out = append(out, genai.NewContentFromText(m.Content, role))
			continue
		}
		parts := make([]*genai.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch {
			case p.Type == domain.PartText:
				parts = append(parts, genai.NewPartFromText(p.Text))
			case p.Type == domain.PartImageURL && p.ImageURL != nil:
				mt := mime.TypeByExtension(path.Ext(p.ImageURL.URL))
				if mt == "" {
					mt = "image/png"
				}
				parts = append(parts, genai.NewPartFromURI(p.ImageURL.URL, mt))
			}
		}
		out = append(out, genai.NewContentFromParts(parts, role))
	}
	return out
}
