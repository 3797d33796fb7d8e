package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor/internal/course"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Course.Objectives, 11)
	assert.Equal(t, "Introduction to Python and its applications", cfg.Course.Objectives[0].Title)
	assert.Equal(t, "Understand and use tuples", cfg.Course.Objectives[10].Title)
	assert.Equal(t, course.DefaultSentinel, cfg.Course.Sentinel)
	assert.Equal(t, 5, cfg.Course.HistoryWindow)

	assert.Equal(t, "openai", cfg.Completion.Type)
	assert.Equal(t, "gpt-4o", cfg.Completion.Model)
	assert.Equal(t, "gpt-4o", cfg.Completion.RewriteModel)
	require.NotNil(t, cfg.Completion.Temperature)
	require.NotNil(t, cfg.Completion.RewriteTemperature)
	assert.InDelta(t, 0.7, *cfg.Completion.Temperature, 1e-9)
	assert.InDelta(t, 0.7, *cfg.Completion.RewriteTemperature, 1e-9)
	assert.Equal(t, 1600, cfg.Completion.MaxTokens)
	assert.Equal(t, 100, cfg.Completion.RewriteMaxTokens)

	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-ada-002", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "pinecone", cfg.VectorIndex.Type)
	assert.Equal(t, "programming_with_mosh_python_for_beginners", cfg.VectorIndex.Namespace)
	assert.Equal(t, 5, cfg.VectorIndex.TopK)
	assert.Equal(t, "PINECONE_API_KEY", cfg.VectorIndex.Pinecone.APIKeyEnv)

	assert.Equal(t, "zoe-images", cfg.ObjectStore.Bucket)
	assert.Equal(t, "learning_app/", cfg.ObjectStore.Prefix)
	assert.Equal(t, "keywords", cfg.Summarizer.Type)
	assert.Equal(t, 3, cfg.Summarizer.MaxSentences)
	assert.Equal(t, 5, cfg.Summarizer.MaxKeywords)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout())
	assert.Equal(t, 120*time.Second, cfg.StreamTimeout())
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
course:
  title: Go basics
  objectives:
    - title: Hello
      instruction: Write hello world.
    - title: Slices
      instruction: Explain slices.
completion:
  type: ollama
embedder:
  type: tfidf
vector_index:
  type: memory
  memory:
    corpus: ["transcripts/*.txt"]
object_store:
  type: none
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	c := cfg.CourseDefinition()
	assert.Equal(t, []string{"Hello", "Slices"}, c.Titles())
	assert.Equal(t, course.DefaultSentinel, c.Sentinel)
	assert.Equal(t, "llama3.1", cfg.Completion.Model)
	assert.Empty(t, cfg.Completion.APIKeyEnv)
	assert.Equal(t, []string{"transcripts/*.txt"}, cfg.VectorIndex.Memory.Corpus)
	assert.Equal(t, "tutor.log", cfg.Log.Path)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Course.Objectives = nil
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Course.Objectives[3].Instruction = ""
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.VectorIndex.Namespace = ""
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.ObjectStore.Bucket = ""
	assert.Error(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.VectorIndex.Namespace = "custom"
	cfg.Completion.RequestsPerMinute = 30
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", loaded.VectorIndex.Namespace)
	assert.Equal(t, 30, loaded.Completion.RequestsPerMinute)
	assert.Equal(t, cfg.Course.Objectives, loaded.Course.Objectives)
}

func TestLoadKeepsExplicitZeroTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
completion:
  type: openai
  temperature: 0
  rewrite_temperature: 0
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Completion.Temperature)
	require.NotNil(t, cfg.Completion.RewriteTemperature)
	assert.Zero(t, *cfg.Completion.Temperature)
	assert.Zero(t, *cfg.Completion.RewriteTemperature)

	resaved := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(resaved, cfg))
	again, err := Load(resaved)
	require.NoError(t, err)
	assert.Zero(t, *again.Completion.Temperature)
	assert.Zero(t, *again.Completion.RewriteTemperature)
}

func TestLoadDefaultDoesNotPersistEnvEndpoints(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PINECONE_INDEX_HOST", "https://idx-abc.svc.pinecone.io")
	t.Setenv("S3_BASE_URL", "https://cdn.example.com")
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "tutor", "config.yaml"), path)
	assert.Equal(t, "https://idx-abc.svc.pinecone.io", cfg.VectorIndex.Pinecone.Host)
	assert.Equal(t, "https://cdn.example.com", cfg.ObjectStore.BaseURL)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(written), "idx-abc")
	assert.NotContains(t, string(written), "cdn.example.com")

	t.Setenv("PINECONE_INDEX_HOST", "https://idx-other.svc.pinecone.io")
	reloaded, _, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, "https://idx-other.svc.pinecone.io", reloaded.VectorIndex.Pinecone.Host)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("course: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
