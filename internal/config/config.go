package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"tutor/internal/course"
)

// CourseConfig defines the objective sequence and tutor prompt knobs.
type CourseConfig struct {
	Title         string             `yaml:"title"`
	Persona       string             `yaml:"persona"`
	Sentinel      string             `yaml:"sentinel"`
	HistoryWindow int                `yaml:"history_window"`
	Objectives    []course.Objective `yaml:"objectives"`
}

const defaultTemperature = 0.7

// CompletionConfig selects and configures the chat completion backend.
// Temperatures are pointers so an explicit 0 survives defaulting.
type CompletionConfig struct {
	Type               string   `yaml:"type"`
	Model              string   `yaml:"model"`
	RewriteModel       string   `yaml:"rewrite_model"`
	BaseURL            string   `yaml:"base_url"`
	APIKeyEnv          string   `yaml:"api_key_env"`
	Temperature        *float64 `yaml:"temperature"`
	RewriteTemperature *float64 `yaml:"rewrite_temperature"`
	MaxTokens          int      `yaml:"max_tokens"`
	RewriteMaxTokens   int      `yaml:"rewrite_max_tokens"`
	RequestsPerMinute  int      `yaml:"requests_per_minute"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// OllamaConfig points at an Ollama server.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// GeminiConfig configures the Gemini API client.
type GeminiConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Ollama *OllamaConfig         `yaml:"ollama,omitempty"`
	Gemini *GeminiConfig         `yaml:"gemini,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorIndexConfig selects and configures the vector index implementation.
type VectorIndexConfig struct {
	Type      string          `yaml:"type"`
	Namespace string          `yaml:"namespace"`
	TopK      int             `yaml:"top_k"`
	Pinecone  *PineconeConfig `yaml:"pinecone,omitempty"`
	Qdrant    *QdrantConfig   `yaml:"qdrant,omitempty"`
	Memory    *MemoryConfig   `yaml:"memory,omitempty"`
}

// PineconeConfig contains connection details for a Pinecone index.
type PineconeConfig struct {
	Host        string `yaml:"host"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// MemoryConfig lists transcripts ingested into the in-memory index at startup.
type MemoryConfig struct {
	Corpus []string `yaml:"corpus"`
}

// ObjectStoreConfig configures where image attachments are uploaded.
type ObjectStoreConfig struct {
	Type    string `yaml:"type"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	BaseURL string `yaml:"base_url"`
	Region  string `yaml:"region"`
}

// SummarizerConfig controls the per-transcript digest printed by ingest.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
	MaxKeywords  int    `yaml:"max_keywords"`
}

// TimeoutConfig bounds every external call.
type TimeoutConfig struct {
	CallSecs   int `yaml:"call_secs"`
	StreamSecs int `yaml:"stream_secs"`
}

// LogConfig controls the structured log file.
type LogConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Course      CourseConfig      `yaml:"course"`
	Completion  CompletionConfig  `yaml:"completion"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Timeouts    TimeoutConfig     `yaml:"timeouts"`
	Log         LogConfig         `yaml:"log"`
}

// CourseDefinition converts the course section into a course.Course.
func (c *AppConfig) CourseDefinition() course.Course {
	return course.Course{
		Title:      c.Course.Title,
		Persona:    c.Course.Persona,
		Objectives: append([]course.Objective(nil), c.Course.Objectives...),
		Sentinel:   c.Course.Sentinel,
	}
}

// CallTimeout bounds non-streaming external calls.
func (c *AppConfig) CallTimeout() time.Duration {
	return time.Duration(c.Timeouts.CallSecs) * time.Second
}

// StreamTimeout bounds a streamed generation.
func (c *AppConfig) StreamTimeout() time.Duration {
	return time.Duration(c.Timeouts.StreamSecs) * time.Second
}

// Validate rejects configurations the tutor cannot run with.
func (c *AppConfig) Validate() error {
	if err := c.CourseDefinition().Validate(); err != nil {
		return fmt.Errorf("course: %w", err)
	}
	if c.VectorIndex.Namespace == "" && c.VectorIndex.Type != "memory" {
		return errors.New("vector_index.namespace is required")
	}
	if c.ObjectStore.Type == "s3" && c.ObjectStore.Bucket == "" {
		return errors.New("object_store.bucket is required for s3")
	}
	return nil
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			resolveEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	resolveEnv(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/tutor/config.yaml.
// If neither exists, it writes defaults to ~/.config/tutor/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	resolveEnv(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tutor", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Course: CourseConfig{
			Title:      "Learn Python from Scratch as a Beginner",
			Objectives: pythonObjectives(),
		},
		Completion: CompletionConfig{Type: "openai"},
		Embedder:   EmbedderConfig{Type: "openai", OpenAI: &OpenAIEmbedderConfig{Model: "text-embedding-ada-002"}},
		Chunker:    ChunkerConfig{Type: "sentence", SentencesPerChunk: 5, OverlapSentences: 1},
		VectorIndex: VectorIndexConfig{
			Type:      "pinecone",
			Namespace: "programming_with_mosh_python_for_beginners",
			Pinecone:  &PineconeConfig{},
		},
		ObjectStore: ObjectStoreConfig{Type: "s3", Bucket: "zoe-images"},
		Summarizer:  SummarizerConfig{Type: "keywords"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

// resolveEnv fills endpoints left empty in the file from the environment.
// It runs after Save so the values never end up in the written config.
func resolveEnv(cfg *AppConfig) {
	if p := cfg.VectorIndex.Pinecone; p != nil && p.Host == "" {
		p.Host = os.Getenv("PINECONE_INDEX_HOST")
	}
	if cfg.ObjectStore.BaseURL == "" {
		cfg.ObjectStore.BaseURL = os.Getenv("S3_BASE_URL")
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Course.Sentinel == "" {
		cfg.Course.Sentinel = course.DefaultSentinel
	}
	if cfg.Course.Persona == "" {
		cfg.Course.Persona = course.DefaultPersona
	}
	if cfg.Course.HistoryWindow == 0 {
		cfg.Course.HistoryWindow = 5
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	applyCompletionDefaults(&cfg.Completion)
	applyEmbedderDefaults(&cfg.Embedder)
	if cfg.VectorIndex.TopK == 0 {
		cfg.VectorIndex.TopK = 5
	}
	if cfg.VectorIndex.Type == "pinecone" && cfg.VectorIndex.Pinecone != nil {
		if cfg.VectorIndex.Pinecone.APIKeyEnv == "" {
			cfg.VectorIndex.Pinecone.APIKeyEnv = "PINECONE_API_KEY"
		}
	}
	if cfg.VectorIndex.Type == "qdrant" && cfg.VectorIndex.Qdrant != nil {
		if cfg.VectorIndex.Qdrant.URL == "" {
			cfg.VectorIndex.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorIndex.Qdrant.Collection == "" {
			cfg.VectorIndex.Qdrant.Collection = "tutor"
		}
	}
	if cfg.ObjectStore.Prefix == "" {
		cfg.ObjectStore.Prefix = "learning_app/"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	if cfg.Summarizer.MaxKeywords == 0 {
		cfg.Summarizer.MaxKeywords = 5
	}
	if cfg.Timeouts.CallSecs == 0 {
		cfg.Timeouts.CallSecs = 30
	}
	if cfg.Timeouts.StreamSecs == 0 {
		cfg.Timeouts.StreamSecs = 120
	}
	if cfg.Log.Path == "" {
		cfg.Log.Path = "tutor.log"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyCompletionDefaults(c *CompletionConfig) {
	if c.Type == "" {
		c.Type = "openai"
	}
	switch c.Type {
	case "openai":
		if c.BaseURL == "" {
			c.BaseURL = "https://api.openai.com/v1"
		}
		if c.APIKeyEnv == "" {
			c.APIKeyEnv = "OPENAI_API_KEY"
		}
		if c.Model == "" {
			c.Model = "gpt-4o"
		}
	case "ollama":
		if c.Model == "" {
			c.Model = "llama3.1"
		}
	case "gemini":
		if c.APIKeyEnv == "" {
			c.APIKeyEnv = "GEMINI_API_KEY"
		}
		if c.Model == "" {
			c.Model = "gemini-2.0-flash"
		}
	}
	if c.RewriteModel == "" {
		c.RewriteModel = c.Model
	}
	if c.Temperature == nil {
		c.Temperature = float64Ptr(defaultTemperature)
	}
	if c.RewriteTemperature == nil {
		c.RewriteTemperature = float64Ptr(defaultTemperature)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1600
	}
	if c.RewriteMaxTokens == 0 {
		c.RewriteMaxTokens = 100
	}
}

func float64Ptr(v float64) *float64 { return &v }

func applyEmbedderDefaults(e *EmbedderConfig) {
	switch e.Type {
	case "openai":
		if e.OpenAI == nil {
			e.OpenAI = &OpenAIEmbedderConfig{}
		}
		if e.OpenAI.BaseURL == "" {
			e.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if e.OpenAI.APIKeyEnv == "" {
			e.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if e.OpenAI.Model == "" {
			e.OpenAI.Model = "text-embedding-ada-002"
		}
		if e.OpenAI.TimeoutSecs == 0 {
			e.OpenAI.TimeoutSecs = 30
		}
	case "ollama":
		if e.Ollama == nil {
			e.Ollama = &OllamaConfig{}
		}
		if e.Ollama.Model == "" {
			e.Ollama.Model = "nomic-embed-text"
		}
	case "gemini":
		if e.Gemini == nil {
			e.Gemini = &GeminiConfig{}
		}
		if e.Gemini.APIKeyEnv == "" {
			e.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if e.Gemini.Model == "" {
			e.Gemini.Model = "text-embedding-004"
		}
	}
}

func pythonObjectives() []course.Objective {
	return []course.Objective{
		{Title: "Introduction to Python and its applications", Instruction: "Introduce Python and its various applications in different fields."},
		{Title: "Write your first Python program", Instruction: "Guide the student through writing their first Python program, explaining basic syntax and structure."},
		{Title: "Understand variables and data types", Instruction: "Explain the concept of variables, their naming conventions, and different data types in Python."},
		{Title: "Work with user input and type conversion", Instruction: "Teach how to receive user input and perform type conversion between different data types."},
		{Title: "Manipulate strings and use arithmetic operators", Instruction: "Demonstrate string manipulation techniques and explain arithmetic operators and their precedence."},
		{Title: "Use comparison and logical operators", Instruction: "Introduce comparison and logical operators, showing how they're used in Python."},
		{Title: "Implement conditional statements (if-else)", Instruction: "Explain conditional statements, focusing on if-else structures and their usage."},
		{Title: "Create and use while loops", Instruction: "Introduce while loops, explaining their syntax and when to use them."},
		{Title: "Work with lists and their methods", Instruction: "Teach about lists, their properties, and common methods used with lists."},
		{Title: "Utilize for loops and the range() function", Instruction: "Explain for loops and how to use the range() function for iteration."},
		{Title: "Understand and use tuples", Instruction: "Introduce tuples, their properties, and how they differ from lists."},
	}
}
