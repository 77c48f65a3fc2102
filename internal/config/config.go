// Package config loads service configuration from a TOML file with
// environment variable overrides.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Store      StoreConfig      `toml:"store"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Generation GenerationConfig `toml:"generation"`
	Ingest     IngestConfig     `toml:"ingest"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
	Observer   ObserverConfig   `toml:"observer"`
}

type ServerConfig struct {
	Addr            string `toml:"addr"`
	ShutdownTimeout int    `toml:"shutdown_timeout_seconds"`
	MaxUploadMB     int    `toml:"max_upload_mb"`
}

type StoreConfig struct {
	// Backend selects the vector store: "memory", "sqlite", or "postgres".
	Backend string `toml:"backend"`
	// Path is the SQLite database file or the memory store snapshot file.
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
	MaxEntries  int    `toml:"max_entries"`
}

type EmbeddingConfig struct {
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	// TimeoutSeconds bounds each embedding attempt; a timed-out attempt is
	// retried.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

type GenerationConfig struct {
	// Models are tried in order until one answers.
	Models         []string `toml:"models"`
	APIKey         string   `toml:"api_key"`
	BaseURL        string   `toml:"base_url"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	RetryAttempts  int      `toml:"retry_attempts"`
	// RetryBaseDelayMS is the first backoff delay in milliseconds; each
	// subsequent delay doubles.
	RetryBaseDelayMS int `toml:"retry_base_delay_ms"`
}

type IngestConfig struct {
	ChunkSize int `toml:"chunk_size"`
	Overlap   int `toml:"overlap"`
}

type RetrievalConfig struct {
	TopK int `toml:"top_k"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8000", ShutdownTimeout: 10, MaxUploadMB: 32},
		Store:  StoreConfig{Backend: "memory", Path: "copilot.db", MaxEntries: 10000},
		Embedding: EmbeddingConfig{
			Model:          "sentence-transformers/all-MiniLM-L6-v2",
			Dimensions:     384,
			TimeoutSeconds: 30,
		},
		Generation: GenerationConfig{
			Models: []string{
				"llama-3.3-70b-versatile",
				"llama-3.1-8b-instant",
				"gemma2-9b-it",
			},
			TimeoutSeconds:   30,
			RetryAttempts:    3,
			RetryBaseDelayMS: 1000,
		},
		Ingest:    IngestConfig{ChunkSize: 1000, Overlap: 200},
		Retrieval: RetrievalConfig{TopK: 3},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "copilot.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("COPILOT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("COPILOT_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("COPILOT_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("COPILOT_POSTGRES_URL"); v != "" {
		cfg.Store.PostgresURL = v
	}
	if v := os.Getenv("COPILOT_HF_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("COPILOT_GROQ_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("COPILOT_GENERATION_MODELS"); v != "" {
		var models []string
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				models = append(models, m)
			}
		}
		if len(models) > 0 {
			cfg.Generation.Models = models
		}
	}
	if v := os.Getenv("COPILOT_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("COPILOT_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
