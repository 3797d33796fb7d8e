package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tutor/internal/config"
	"tutor/internal/domain"
)

func TestNewSelectsBackend(t *testing.T) {
	e, err := New(context.Background(), config.EmbedderConfig{Type: "tfidf"})
	require.NoError(t, err)
	require.Equal(t, "tfidf", e.Name())

	t.Setenv("TUTOR_TEST_KEY", "k")
	e, err = New(context.Background(), config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIEmbedderConfig{APIKeyEnv: "TUTOR_TEST_KEY"}})
	require.NoError(t, err)
	require.Equal(t, "openai", e.Name())

	e, err = New(context.Background(), config.EmbedderConfig{Type: "ollama", Ollama: &config.OllamaConfig{Host: "http://localhost:11434"}})
	require.NoError(t, err)
	require.Equal(t, "ollama", e.Name())
}

func TestNewErrors(t *testing.T) {
	_, err := New(context.Background(), config.EmbedderConfig{Type: "word2vec"})
	require.Error(t, err)

	_, err = New(context.Background(), config.EmbedderConfig{Type: "openai", OpenAI: &config.OpenAIEmbedderConfig{APIKeyEnv: "TUTOR_TEST_UNSET"}})
	require.ErrorIs(t, err, domain.ErrCredentialsMissing)
}
