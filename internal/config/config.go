package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"paper-rag/internal/models"
)

type Config struct {
	RAG         RAGConfig         `yaml:"rag"`
	EmbedLLM    LLMConfig         `yaml:"embed_llm"`
	ChatLLM     LLMConfig         `yaml:"chat_llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Database    DatabaseConfig    `yaml:"database"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

type RAGConfig struct {
	ChunkSize             int      `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap          int      `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	MinResponseLength     int      `yaml:"min_response_length" validate:"gte=0"`
	TopK                  int      `yaml:"top_k" validate:"gt=0"`
	SectionMarkers        []string `yaml:"section_markers"`
	ExtraCleaningPatterns []string `yaml:"extra_cleaning_patterns"`
	ExplanationLevel      string   `yaml:"explanation_level" validate:"oneof=brief detailed expert"`
	// ContextualChunks asks the chat model to situate each chunk in its
	// document before embedding
	ContextualChunks bool `yaml:"contextual_chunks"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider" validate:"required,oneof=openai huggingface ollama anthropic gemini"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Key         string  `yaml:"key"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
}

type VectorStoreConfig struct {
	Type          string `yaml:"type" validate:"oneof=chromem pgvector"`
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection" validate:"required"`
	Persist       bool   `yaml:"persist"`
	EncryptionKey string `yaml:"encryption_key"`
	Dimension     int    `yaml:"dimension" validate:"gte=0"`
}

type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver" validate:"oneof=pgdriver pq"`
	Debug  bool   `yaml:"debug"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads the YAML file at path, then .env and the process
// environment. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("path", path).Msg("Config file not found, using defaults")
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	applyDefaults(cfg)
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = 1500
	}
	if cfg.RAG.MinResponseLength <= 0 {
		cfg.RAG.MinResponseLength = 30
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = 4
	}
	if len(cfg.RAG.SectionMarkers) == 0 {
		cfg.RAG.SectionMarkers = append([]string(nil), models.DefaultSectionMarkers...)
	}
	if cfg.RAG.ExplanationLevel == "" {
		cfg.RAG.ExplanationLevel = string(models.LevelDetailed)
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "openai"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = defaultEmbedModel(cfg.EmbedLLM.Provider)
	}

	if cfg.ChatLLM.Provider == "" {
		cfg.ChatLLM.Provider = "openai"
	}
	if cfg.ChatLLM.Model == "" {
		cfg.ChatLLM.Model = defaultChatModel(cfg.ChatLLM.Provider)
	}
	if cfg.ChatLLM.Temperature == 0 {
		cfg.ChatLLM.Temperature = 0.7
	}
	if cfg.ChatLLM.MaxTokens == 0 {
		cfg.ChatLLM.MaxTokens = 1024
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "./chromemdb"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "papers"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
	if cfg.Archive.Path == "" {
		cfg.Archive.Path = "./archive"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func defaultEmbedModel(provider string) string {
	switch provider {
	case "huggingface":
		return "sentence-transformers/all-MiniLM-L6-v2"
	case "ollama":
		return "nomic-embed-text"
	case "gemini":
		return "text-embedding-004"
	default:
		return "text-embedding-ada-002"
	}
}

func defaultChatModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-3-5-haiku-latest"
	case "gemini":
		return "gemini-2.0-flash"
	case "ollama":
		return "llama3.2"
	default:
		return "gpt-3.5-turbo"
	}
}

// env var holding the credential for each provider
var providerKeyEnv = map[string]string{
	"openai":      "OPENAI_API_KEY",
	"huggingface": "HUGGINGFACEHUB_API_TOKEN",
	"anthropic":   "ANTHROPIC_API_KEY",
	"gemini":      "GEMINI_API_KEY",
}

func applyEnv(cfg *Config) {
	for _, llm := range []*LLMConfig{&cfg.EmbedLLM, &cfg.ChatLLM} {
		if llm.Key != "" {
			continue
		}
		if name, ok := providerKeyEnv[llm.Provider]; ok {
			llm.Key = os.Getenv(name)
		}
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

var validate = validator.New()

// Validate checks enum and range constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.ChatLLM.Provider == "huggingface" {
		return fmt.Errorf("invalid config: huggingface is only supported as an embedding provider")
	}
	if c.VectorStore.Type == "pgvector" && c.Database.DSN == "" {
		return fmt.Errorf("invalid config: pgvector store requires database.dsn or DATABASE_URL")
	}
	return nil
}

// MissingKeys lists the credentials the selected providers need but lack
func (c *Config) MissingKeys() []string {
	var missing []string
	seen := map[string]bool{}
	for _, llm := range []LLMConfig{c.EmbedLLM, c.ChatLLM} {
		name, ok := providerKeyEnv[llm.Provider]
		if !ok || llm.Key != "" || seen[name] {
			continue
		}
		// an OpenAI-compatible server at a custom URL may not need a key
		if llm.Provider == "openai" && llm.BaseURL != "" {
			continue
		}
		seen[name] = true
		missing = append(missing, name)
	}
	return missing
}
