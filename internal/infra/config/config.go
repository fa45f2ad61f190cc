package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Env  string
	Port string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	OllamaURL      string
	EmbeddingModel string
	EmbeddingDims  int
	ChatModel      string

	EmbedTimeoutSeconds int
	ChatTimeoutSeconds  int

	RewriteEnabled bool
	RerankEnabled  bool
	RerankMinScore float64

	MaxChunks         int
	MaxContextTokens  int
	MinRelevanceScore float64
	GenTemperature    float64
	GenMaxTokens      int

	ChunkTargetTokens  int
	ChunkOverlapTokens int
	ChunkMinTokens     int

	CacheSize       int
	CacheTTLSeconds int

	WorkerPollSeconds   int
	WorkerJobsPerMinute int

	OTelEnabled  bool
	OTLPEndpoint string
}

func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),

		DBHost:     getEnv("DB_HOST", "lorekeeper-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "lorekeeper"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "lorekeeper"),
		DBName:     getEnv("DB_NAME", "lorekeeper_db"),

		OllamaURL:      getEnv("OLLAMA_URL", "http://ollama:11434"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "embeddinggemma"),
		EmbeddingDims:  getEnvInt("EMBEDDING_DIMS", 768),
		ChatModel:      getEnv("CHAT_MODEL", "gemma3:4b"),

		EmbedTimeoutSeconds: getEnvInt("EMBED_TIMEOUT_SECONDS", 30),
		ChatTimeoutSeconds:  getEnvInt("CHAT_TIMEOUT_SECONDS", 120),

		RewriteEnabled: getEnvBool("QUERY_REWRITE_ENABLED", true),
		RerankEnabled:  getEnvBool("RERANK_ENABLED", true),
		RerankMinScore: getEnvFloat("RERANK_MIN_SCORE", 0.2),

		MaxChunks:         getEnvInt("RAG_DEFAULT_MAX_CHUNKS", 20),
		MaxContextTokens:  getEnvInt("RAG_DEFAULT_MAX_CONTEXT_TOKENS", 16000),
		MinRelevanceScore: getEnvFloat("RAG_MIN_RELEVANCE", 0.1),
		GenTemperature:    getEnvFloat("GEN_TEMPERATURE", 0.3),
		GenMaxTokens:      getEnvInt("GEN_MAX_TOKENS", 1024),

		ChunkTargetTokens:  getEnvInt("CHUNK_TARGET_TOKENS", 512),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 100),
		ChunkMinTokens:     getEnvInt("CHUNK_MIN_TOKENS", 50),

		CacheSize:       getEnvInt("ANSWER_CACHE_SIZE", 256),
		CacheTTLSeconds: getEnvInt("ANSWER_CACHE_TTL_SECONDS", 300),

		WorkerPollSeconds:   getEnvInt("WORKER_POLL_SECONDS", 5),
		WorkerJobsPerMinute: getEnvInt("WORKER_JOBS_PER_MINUTE", 30),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTLPEndpoint: getEnv("OTLP_ENDPOINT", "http://otel-collector:4318"),
	}
}

// DSN renders the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
