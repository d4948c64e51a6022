// Package config builds runtime configuration from the environment
// (spec §6.4). All other tunables live in a library's index_params.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config captures everything libracore needs to start serving.
type Config struct {
	Embedding   EmbeddingConfig
	Persistence PersistenceConfig
	APIPort     int
	TestMode    bool
}

// EmbeddingConfig describes how to reach the external embedding service.
type EmbeddingConfig struct {
	URL     string
	APIKey  string
	ModelID string
}

// PersistenceConfig names the durable store libracore recovers from and
// writes to.
type PersistenceConfig struct {
	URI          string
	DatabaseName string
}

// FromEnv builds a Config from environment variables, applying the
// defaults used in local development and test runs.
func FromEnv() (Config, error) {
	cfg := Config{
		Embedding: EmbeddingConfig{
			URL:     getEnv("LIBRACORE_EMBEDDING_URL", "http://localhost:11434/api/embeddings"),
			APIKey:  getEnv("LIBRACORE_EMBEDDING_API_KEY", ""),
			ModelID: getEnv("LIBRACORE_EMBEDDING_MODEL", "nomic-embed-text"),
		},
		Persistence: PersistenceConfig{
			URI:          getEnv("LIBRACORE_PERSISTENCE_URI", "./data"),
			DatabaseName: getEnv("LIBRACORE_DATABASE_NAME", "libracore.db"),
		},
		APIPort:  getEnvInt("LIBRACORE_API_PORT", 8080),
		TestMode: getEnvBool("TEST_MODE", false),
	}

	if cfg.Embedding.ModelID == "" {
		return Config{}, fmt.Errorf("LIBRACORE_EMBEDDING_MODEL must not be empty")
	}
	if cfg.Persistence.DatabaseName == "" {
		return Config{}, fmt.Errorf("LIBRACORE_DATABASE_NAME must not be empty")
	}
	if cfg.APIPort <= 0 {
		return Config{}, fmt.Errorf("LIBRACORE_API_PORT must be positive")
	}

	if cfg.TestMode {
		cfg.Persistence.DatabaseName = "test_" + cfg.Persistence.DatabaseName
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
