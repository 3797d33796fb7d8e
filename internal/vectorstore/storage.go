// Package vectorstore selects the vector index backend named by configuration.
package vectorstore

import (
	"fmt"
	"time"

	"tutor/internal/config"
	"tutor/internal/domain"
	"tutor/internal/vectorstore/memory"
	"tutor/internal/vectorstore/pinecone"
	"tutor/internal/vectorstore/qdrant"
)

// New builds the index for cfg.Type.
func New(cfg config.VectorIndexConfig) (domain.VectorIndex, error) {
	switch cfg.Type {
	case "pinecone":
		pc := cfg.Pinecone
		if pc == nil {
			pc = &config.PineconeConfig{APIKeyEnv: "PINECONE_API_KEY"}
		}
		s, err := pinecone.NewStorage(pinecone.Config{
			Host:      pc.Host,
			APIKeyEnv: pc.APIKeyEnv,
			Timeout:   time.Duration(pc.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "qdrant":
		qc := cfg.Qdrant
		if qc == nil {
			return nil, fmt.Errorf("%w: vector_index.qdrant section missing", domain.ErrNotConfigured)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        qc.URL,
			APIKeyEnv:  qc.APIKeyEnv,
			Collection: qc.Collection,
			Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
		}), nil
	case "memory":
		return memory.NewStorage(), nil
	default:
		return nil, fmt.Errorf("unknown vector index type: %q", cfg.Type)
	}
}
