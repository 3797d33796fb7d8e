// Package pinecone is a minimal REST client for a Pinecone serverless index.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"tutor/internal/domain"
)

// upsertBatch bounds the number of vectors per upsert request.
const upsertBatch = 100

type Config struct {
	// Host is the index host shown in the console, e.g.
	// https://project-management-abc123.svc.us-east-1.pinecone.io
	Host      string
	APIKeyEnv string
	Timeout   time.Duration
}

// Storage talks to one Pinecone index. Namespaces map directly onto
// Pinecone namespaces.
type Storage struct {
	host   string
	apiKey string
	client *http.Client
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Host == "" {
		return nil, errors.New("pinecone: index host is required")
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrCredentialsMissing, cfg.APIKeyEnv)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	host := strings.TrimRight(cfg.Host, "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return &Storage{host: host, apiKey: key, client: &http.Client{Timeout: timeout}}, nil
}

// Init checks the index dimension matches the embedder.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	stats, err := s.describe(ctx)
	if err != nil {
		return err
	}
	if stats.Dimension != 0 && stats.Dimension != dimension {
		return fmt.Errorf("pinecone: index dimension %d does not match embedder dimension %d", stats.Dimension, dimension)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, namespace string, records []domain.Record) error {
	type vector struct {
		ID       string         `json:"id"`
		Values   []float64      `json:"values"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}
	for start := 0; start < len(records); start += upsertBatch {
		end := min(start+upsertBatch, len(records))
		batch := make([]vector, 0, end-start)
		for _, r := range records[start:end] {
			batch = append(batch, vector{ID: r.ID, Values: r.Vector, Metadata: r.Metadata})
		}
		body := map[string]any{"vectors": batch, "namespace": namespace}
		if err := s.post(ctx, "/vectors/upsert", body, nil); err != nil {
			return err
		}
	}
	return nil
}

// Query returns matches in the order Pinecone ranks them.
func (s *Storage) Query(ctx context.Context, q domain.QueryRequest) ([]domain.Match, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}
	body := map[string]any{
		"vector":          q.Vector,
		"topK":            topK,
		"namespace":       q.Namespace,
		"includeMetadata": q.IncludeMetadata,
		"includeValues":   false,
	}
	var resp struct {
		Matches []struct {
			ID       string         `json:"id"`
			Score    float64        `json:"score"`
			Metadata map[string]any `json:"metadata"`
		} `json:"matches"`
	}
	if err := s.post(ctx, "/query", body, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, domain.Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return out, nil
}

// Clear deletes every vector in the namespace. A namespace that does not
// exist yet is not an error.
func (s *Storage) Clear(ctx context.Context, namespace string) error {
	err := s.post(ctx, "/vectors/delete", map[string]any{"deleteAll": true, "namespace": namespace}, nil)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil
	}
	return err
}

// Ping fetches the index stats.
func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.describe(ctx)
	return err
}

type indexStats struct {
	Dimension        int `json:"dimension"`
	TotalVectorCount int `json:"totalVectorCount"`
	Namespaces       map[string]struct {
		VectorCount int `json:"vectorCount"`
	} `json:"namespaces"`
}

func (s *Storage) describe(ctx context.Context) (indexStats, error) {
	var stats indexStats
	err := s.post(ctx, "/describe_index_stats", map[string]any{}, &stats)
	return stats, err
}

// NamespaceSize reports how many vectors the namespace holds.
func (s *Storage) NamespaceSize(ctx context.Context, namespace string) (int, error) {
	stats, err := s.describe(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Namespaces[namespace].VectorCount, nil
}

type statusError struct {
	code int
	path string
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("pinecone POST %s failed: %d %s", e.path, e.code, e.body)
}

func (s *Storage) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", s.apiKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		se := &statusError{code: resp.StatusCode, path: path, body: strings.TrimSpace(string(msg))}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %w", domain.ErrCredentialsMissing, se)
		}
		return se
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
