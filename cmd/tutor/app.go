package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"

	"tutor/internal/chunker"
	"tutor/internal/config"
	"tutor/internal/domain"
	"tutor/internal/embedding"
	"tutor/internal/llm"
	"tutor/internal/objectstore/s3"
	"tutor/internal/observability"
	"tutor/internal/summarizer"
	"tutor/internal/vectorstore"
)

func loadConfig(path string) (*config.AppConfig, error) {
	_ = godotenv.Load()

	var cfg *config.AppConfig
	var err error
	if path == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func initLogging(cfg *config.AppConfig) io.Closer {
	closer, err := observability.Init(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		slog.Warn("log file unavailable, logging disabled", "path", cfg.Log.Path, "error", err)
		return io.NopCloser(nil)
	}
	return closer
}

// backends holds every external collaborator. A backend that failed to
// build is nil and its error is kept under its name.
type backends struct {
	completer domain.Completer
	embedder  domain.Embedder
	index     domain.VectorIndex
	store     domain.ObjectStore
	errs      map[string]error
}

const (
	backendCompletion  = "completion"
	backendEmbedder    = "embedder"
	backendVectorIndex = "vector-index"
	backendObjectStore = "object-store"
)

func openBackends(ctx context.Context, cfg *config.AppConfig) *backends {
	b := &backends{errs: make(map[string]error)}
	var err error
	if b.completer, err = llm.New(ctx, cfg.Completion); err != nil {
		b.errs[backendCompletion] = err
	}
	if b.embedder, err = embedding.New(ctx, cfg.Embedder); err != nil {
		b.errs[backendEmbedder] = err
	}
	if b.index, err = vectorstore.New(cfg.VectorIndex); err != nil {
		b.errs[backendVectorIndex] = err
	}
	switch cfg.ObjectStore.Type {
	case "s3":
		store, err := s3.New(ctx, s3.Config{
			Bucket:  cfg.ObjectStore.Bucket,
			Region:  cfg.ObjectStore.Region,
			BaseURL: cfg.ObjectStore.BaseURL,
		})
		if err != nil {
			b.errs[backendObjectStore] = err
		} else {
			b.store = store
		}
	case "", "none":
	default:
		b.errs[backendObjectStore] = fmt.Errorf("unknown object store type: %q", cfg.ObjectStore.Type)
	}
	return b
}

func newChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "sentence", "":
		return chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}
}

func newDigester(cfg *config.AppConfig) (domain.Digester, error) {
	switch cfg.Summarizer.Type {
	case "keywords", "":
		return summarizer.NewKeySentences(cfg.Summarizer.MaxKeywords), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}
}
