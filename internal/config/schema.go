// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for memkeep.
package config

import (
	"time"

	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/modules/store/sqlite"
)

// Config is the top-level configuration structure.
type Config struct {
	// Store configures the durable SQLite snapshot store.
	Store sqlite.Config `yaml:"store"`

	// Memory configures buffer limits and the write scheduler.
	Memory MemoryConfig `yaml:"memory"`

	// Embedding optionally enables vector relevance scoring. When absent
	// or disabled, scoring is lexical.
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// MemoryConfig configures a Memory instance's limits and timings.
type MemoryConfig struct {
	// MaxMessages caps the in-process buffer length.
	MaxMessages int `yaml:"max_messages"`

	// MaxSizeBytes is the estimated-byte threshold that triggers pruning.
	MaxSizeBytes int `yaml:"max_size_bytes"`

	// BatchSaveDelayMS is the debounce window for durable writes, in
	// milliseconds.
	BatchSaveDelayMS int `yaml:"batch_save_delay_ms"`

	// MaxBatchSize is the pending-write count that forces an immediate
	// flush.
	MaxBatchSize int `yaml:"max_batch_size"`
}

// MemoryOptions converts the YAML fields into a memory.Config, leaving
// zero values for memory.New to default.
func (c MemoryConfig) MemoryOptions(sessionID string) memory.Config {
	return memory.Config{
		SessionID:      sessionID,
		MaxMessages:    c.MaxMessages,
		MaxSizeBytes:   c.MaxSizeBytes,
		BatchSaveDelay: time.Duration(c.BatchSaveDelayMS) * time.Millisecond,
		MaxBatchSize:   c.MaxBatchSize,
	}
}

// Embedding providers.
const (
	EmbeddingProviderOpenAI       = "openai"
	EmbeddingProviderOpenAICompat = "openai_compat"
	EmbeddingProviderOllama       = "ollama"
)

// EmbeddingConfig selects and configures the embedding capability.
type EmbeddingConfig struct {
	// Provider is one of "openai", "openai_compat", "ollama", or empty to
	// disable vector scoring.
	Provider string `yaml:"provider"`

	// BaseURL is the endpoint for openai_compat and ollama providers.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates openai and openai_compat providers. Use
	// ${VAR} expansion to keep secrets out of the file.
	APIKey string `yaml:"api_key"`

	// Model is the embedding model name.
	Model string `yaml:"model"`
}

// Enabled reports whether vector scoring is configured.
func (c EmbeddingConfig) Enabled() bool {
	return c.Provider != ""
}
