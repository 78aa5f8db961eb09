package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	var cfg Config
	cfg.Store.Path = "/tmp/snapshots.db"
	return cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string // substring; empty means valid
	}{
		{name: "minimal valid", mutate: func(*Config) {}},
		{
			name:    "missing store path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: "store.path is required",
		},
		{
			name:    "negative max messages",
			mutate:  func(c *Config) { c.Memory.MaxMessages = -1 },
			wantErr: "max_messages",
		},
		{
			name:    "negative debounce",
			mutate:  func(c *Config) { c.Memory.BatchSaveDelayMS = -5 },
			wantErr: "batch_save_delay_ms",
		},
		{
			name:    "unknown embedding provider",
			mutate:  func(c *Config) { c.Embedding.Provider = "sparkle" },
			wantErr: `unknown embedding provider "sparkle"`,
		},
		{
			name:    "openai without key",
			mutate:  func(c *Config) { c.Embedding.Provider = EmbeddingProviderOpenAI },
			wantErr: "api_key is required",
		},
		{
			name: "openai_compat without base url",
			mutate: func(c *Config) {
				c.Embedding.Provider = EmbeddingProviderOpenAICompat
				c.Embedding.Model = "nomic-embed-text"
			},
			wantErr: "base_url is required",
		},
		{
			name:    "ollama without model",
			mutate:  func(c *Config) { c.Embedding.Provider = EmbeddingProviderOllama },
			wantErr: "model is required",
		},
		{
			name: "ollama complete",
			mutate: func(c *Config) {
				c.Embedding.Provider = EmbeddingProviderOllama
				c.Embedding.Model = "nomic-embed-text"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(&cfg)

			err := Validate(&cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	raw := `
store:
  path: ${MEMKEEP_TEST_DB}
memory:
  max_messages: 10
  batch_save_delay_ms: ${MEMKEEP_TEST_DELAY:-2000}
`
	path := filepath.Join(t.TempDir(), "memkeep.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("MEMKEEP_TEST_DB", "/tmp/test.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if cfg.Store.Path != "/tmp/test.db" {
		t.Errorf("Store.Path = %q, want expanded env value", cfg.Store.Path)
	}
	if cfg.Memory.MaxMessages != 10 {
		t.Errorf("Memory.MaxMessages = %d, want 10", cfg.Memory.MaxMessages)
	}
	if cfg.Memory.BatchSaveDelayMS != 2000 {
		t.Errorf("Memory.BatchSaveDelayMS = %d, want default-expanded 2000", cfg.Memory.BatchSaveDelayMS)
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	raw := "store:\n  path: ${MEMKEEP_TEST_DOES_NOT_EXIST}\n"
	path := filepath.Join(t.TempDir(), "memkeep.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unresolved variable") {
		t.Fatalf("Load = %v, want unresolved variable error", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load missing file: expected error")
	}
}
