package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"tutor/internal/domain"
)

// namespaceKey is the payload field that partitions one collection into
// namespaces.
const namespaceKey = "namespace"

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKeyEnv  string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     key,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Init creates the collection when it does not exist yet.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	_, err = s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	return err
}

// PointID derives a stable UUID for a record id inside a namespace, since
// Qdrant only accepts integers and UUIDs as point ids.
func PointID(namespace, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+"/"+id)).String()
}

func (s *Storage) Upsert(ctx context.Context, namespace string, records []domain.Record) error {
	points := make([]map[string]any, len(records))
	for i, r := range records {
		payload := make(map[string]any, len(r.Metadata)+2)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		payload[namespaceKey] = namespace
		payload["record_id"] = r.ID
		points[i] = map[string]any{
			"id":      PointID(namespace, r.ID),
			"vector":  r.Vector,
			"payload": payload,
		}
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
	return err
}

// Query returns matches in the order Qdrant ranks them.
func (s *Storage) Query(ctx context.Context, q domain.QueryRequest) ([]domain.Match, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       q.Vector,
		"limit":        topK,
		"with_payload": q.IncludeMetadata,
	}
	if q.Namespace != "" {
		req["filter"] = namespaceFilter(q.Namespace)
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	matches := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		id := fmt.Sprint(r.ID)
		if v, ok := r.Payload["record_id"].(string); ok {
			id = v
		}
		delete(r.Payload, namespaceKey)
		delete(r.Payload, "record_id")
		matches = append(matches, domain.Match{ID: id, Score: r.Score, Metadata: r.Payload})
	}
	return matches, nil
}

// Clear deletes every point of the namespace.
func (s *Storage) Clear(ctx context.Context, namespace string) error {
	body := map[string]any{"filter": namespaceFilter(namespace)}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

// Ping checks the collection is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	return err
}

func namespaceFilter(ns string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": namespaceKey, "match": map[string]any{"value": ns}},
		},
	}
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}
