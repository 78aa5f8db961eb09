package config

import (
	"errors"
	"fmt"
)

// Validate checks the structural validity of a Config: the store path must
// be set, limits must be non-negative, and embedding settings must be
// complete for the selected provider.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Store.Path == "" {
		errs = append(errs, errors.New("config: store.path is required"))
	}

	if cfg.Memory.MaxMessages < 0 {
		errs = append(errs, fmt.Errorf("config: memory.max_messages must be non-negative, got %d", cfg.Memory.MaxMessages))
	}
	if cfg.Memory.MaxSizeBytes < 0 {
		errs = append(errs, fmt.Errorf("config: memory.max_size_bytes must be non-negative, got %d", cfg.Memory.MaxSizeBytes))
	}
	if cfg.Memory.BatchSaveDelayMS < 0 {
		errs = append(errs, fmt.Errorf("config: memory.batch_save_delay_ms must be non-negative, got %d", cfg.Memory.BatchSaveDelayMS))
	}
	if cfg.Memory.MaxBatchSize < 0 {
		errs = append(errs, fmt.Errorf("config: memory.max_batch_size must be non-negative, got %d", cfg.Memory.MaxBatchSize))
	}

	errs = append(errs, validateEmbedding(cfg.Embedding)...)

	return errors.Join(errs...)
}

func validateEmbedding(cfg EmbeddingConfig) []error {
	var errs []error

	switch cfg.Provider {
	case "":
		// Vector scoring disabled; nothing to check.
	case EmbeddingProviderOpenAI:
		if cfg.APIKey == "" {
			errs = append(errs, errors.New("config: embedding.api_key is required for provider openai"))
		}
	case EmbeddingProviderOpenAICompat:
		if cfg.BaseURL == "" {
			errs = append(errs, errors.New("config: embedding.base_url is required for provider openai_compat"))
		}
		if cfg.Model == "" {
			errs = append(errs, errors.New("config: embedding.model is required for provider openai_compat"))
		}
	case EmbeddingProviderOllama:
		if cfg.Model == "" {
			errs = append(errs, errors.New("config: embedding.model is required for provider ollama"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown embedding provider %q", cfg.Provider))
	}

	return errs
}
