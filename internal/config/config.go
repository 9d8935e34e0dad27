// Package config loads runtime configuration from defaults, an optional
// YAML file, and DOCUCHAT_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Provider backends for embeddings and generation.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Vector index backends.
const (
	IndexMemory = "memory"
	IndexQdrant = "qdrant"
)

// Config is the full runtime configuration.
type Config struct {
	Addr        string `mapstructure:"addr"`
	DataDir     string `mapstructure:"data_dir"`
	LogLevel    string `mapstructure:"log_level"`
	MaxUploadMB int    `mapstructure:"max_upload_mb"`

	ChunkSize     int `mapstructure:"chunk_size"`
	ChunkOverlap  int `mapstructure:"chunk_overlap"`
	RetrievalTopK int `mapstructure:"retrieval_top_k"`

	EmbeddingProvider  string `mapstructure:"embedding_provider"`
	EmbeddingModel     string `mapstructure:"embedding_model"`
	GenerationProvider string `mapstructure:"generation_provider"`
	GenerationModel    string `mapstructure:"generation_model"`

	OllamaHost       string `mapstructure:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec"`
	OpenAITimeoutSec int    `mapstructure:"openai_timeout_sec"`

	IndexBackend string `mapstructure:"index_backend"`
	QdrantHost   string `mapstructure:"qdrant_host"`
	QdrantPort   int    `mapstructure:"qdrant_port"`
	VectorDim    int    `mapstructure:"vector_dim"`
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) << 20 }

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCUCHAT")
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("data_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_upload_mb", 50)

	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 150)
	v.SetDefault("retrieval_top_k", 4)

	v.SetDefault("embedding_provider", ProviderOllama)
	v.SetDefault("embedding_model", "")
	v.SetDefault("generation_provider", ProviderOllama)
	v.SetDefault("generation_model", "")

	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 60)
	v.SetDefault("openai_timeout_sec", 30)

	v.SetDefault("index_backend", IndexMemory)
	v.SetDefault("qdrant_host", "localhost")
	v.SetDefault("qdrant_port", 6334)
	v.SetDefault("vector_dim", 0)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("docuchat")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, ".docuchat")
	}
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	return &c, nil
}

func (c *Config) validate() error {
	switch c.EmbeddingProvider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unknown embedding_provider %q", c.EmbeddingProvider)
	}
	switch c.GenerationProvider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unknown generation_provider %q", c.GenerationProvider)
	}
	switch c.IndexBackend {
	case IndexMemory, IndexQdrant:
	default:
		return fmt.Errorf("unknown index_backend %q", c.IndexBackend)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive, got %d", c.MaxUploadMB)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap %d must be smaller than chunk_size %d", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}
