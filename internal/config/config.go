package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vector index backends.
const (
	BackendQdrant = "qdrant"
	BackendHNSW   = "hnsw"
)

// Embedding providers. The static provider hashes n-grams locally and is
// meant for offline use and tests.
const (
	EmbeddingOpenAI = "openai"
	EmbeddingStatic = "static"
)

// Language model providers.
const (
	LLMOpenAI = "openai"
	LLMOllama = "ollama"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel  slog.Level
	LogFormat string // "text" or "json"

	APIPort string
	DBPath  string

	VectorBackend    string
	VectorIndexDir   string
	QdrantURL        string
	QdrantCollection string

	EmbeddingProvider  string
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string
	EmbeddingDim       int
	EmbeddingCacheDir  string

	LLMProvider  string
	LLMBaseURL   string
	LLMModelName string
	LLMAPIKey    string

	ExtractTimeout time.Duration
	EmbedTimeout   time.Duration
	LLMTimeout     time.Duration

	SearchK           int
	ChatHistoryTurns  int
	ReconcileSchedule string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates the rest.
// If a .env file exists in the current directory or up to five parents, it is loaded.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		APIPort:            getEnv("API_PORT", "9000"),
		DBPath:             getEnv("DB_PATH", "./data/notebook-rag.db"),
		VectorBackend:      strings.ToLower(getEnv("VECTOR_BACKEND", BackendHNSW)),
		VectorIndexDir:     getEnv("VECTOR_INDEX_DIR", "./data/index"),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "notebook_chunks"),
		EmbeddingProvider:  strings.ToLower(getEnv("EMBEDDING_PROVIDER", EmbeddingOpenAI)),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "all-MiniLM-L6-v2"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingCacheDir:  getEnv("EMBEDDING_CACHE_DIR", "./data/models"),
		LLMProvider:        strings.ToLower(getEnv("LLM_PROVIDER", LLMOpenAI)),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:       getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		ReconcileSchedule:  getEnv("RECONCILE_SCHEDULE", "@every 10m"),
	}

	var err error
	if cfg.LogLevel, err = parseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	if cfg.EmbeddingDim, err = getPositiveInt("EMBEDDING_DIM", 384); err != nil {
		return nil, err
	}
	if cfg.SearchK, err = getPositiveInt("SEARCH_K", 5); err != nil {
		return nil, err
	}
	if cfg.ChatHistoryTurns, err = getNonNegativeInt("CHAT_HISTORY_TURNS", 10); err != nil {
		return nil, err
	}
	if cfg.ExtractTimeout, err = getDuration("EXTRACT_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.EmbedTimeout, err = getDuration("EMBED_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}
	if cfg.LLMTimeout, err = getDuration("LLM_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Create data directories if they don't exist
	dirs := []string{filepath.Dir(cfg.DBPath), cfg.EmbeddingCacheDir}
	if cfg.VectorBackend == BackendHNSW {
		dirs = append(dirs, cfg.VectorIndexDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	switch c.VectorBackend {
	case BackendQdrant:
		if c.QdrantURL == "" {
			return fmt.Errorf("QDRANT_URL is required for the qdrant backend")
		}
	case BackendHNSW:
	default:
		return fmt.Errorf("VECTOR_BACKEND must be qdrant or hnsw, got %q", c.VectorBackend)
	}
	switch c.EmbeddingProvider {
	case EmbeddingOpenAI:
		if c.EmbeddingBaseURL == "" {
			return fmt.Errorf("EMBEDDING_BASE_URL is required for the openai embedding provider")
		}
	case EmbeddingStatic:
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be openai or static, got %q", c.EmbeddingProvider)
	}
	switch c.LLMProvider {
	case LLMOpenAI, LLMOllama:
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai or ollama, got %q", c.LLMProvider)
	}
	if c.LLMBaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required")
	}
	return nil
}

// loadDotEnv loads the first .env found in the working directory or its parents.
func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ { // Limit search depth
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return // Reached filesystem root
		}
		dir = parent
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error: %w", err)
	}
	return level, nil
}

func getPositiveInt(key string, defaultValue int) (int, error) {
	n, err := getInt(key, defaultValue)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return n, nil
}

func getNonNegativeInt(key string, defaultValue int) (int, error) {
	n, err := getInt(key, defaultValue)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return n, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 30s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return d, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
