package domain

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrCredentialsMissing reports that a backend has no usable credentials.
	ErrCredentialsMissing = errors.New("credentials not available")

	// ErrNotConfigured reports that an optional backend was not configured.
	ErrNotConfigured = errors.New("backend not configured")
)

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// CompletionRequest is a chat-style completion call. System is sent as the
// leading system message; Messages follow in conversation order.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Completer generates chat completions, either whole or as content deltas.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Stream calls onDelta for every content delta in arrival order.
	// A non-nil error from onDelta aborts the stream and is returned.
	Stream(ctx context.Context, req CompletionRequest, onDelta func(delta string) error) error
}

// QueryRequest is a top-k similarity search inside one namespace.
type QueryRequest struct {
	Vector          []float64
	TopK            int
	Namespace       string
	IncludeMetadata bool
}

// Retriever performs similarity search over a namespaced vector collection.
// Matches are returned in the order produced by the index.
type Retriever interface {
	Query(ctx context.Context, req QueryRequest) ([]Match, error)
}

// VectorIndex is a Retriever that can also be populated.
type VectorIndex interface {
	Retriever
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, namespace string, records []Record) error
	Clear(ctx context.Context, namespace string) error
}

// ObjectStore uploads binary blobs and returns a retrievable URL.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// Pinger is implemented by backends that can cheaply check reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Digester condenses one transcript for the ingest report.
type Digester interface {
	Digest(text string, maxSentences int) Digest
}
