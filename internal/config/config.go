// Package config loads gateway configuration from the environment once at
// startup. A .env file in the working directory is honored when present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr     string
	LogLevel string

	// Dispatch
	ConcurrencyLimit int
	RequestTimeout   time.Duration

	// Exact-match cache
	ExactCacheSize int
	ExactCacheTTL  time.Duration

	// Semantic cache
	SemanticCacheSize   int
	SimilarityThreshold float64
	EmbeddingBaseURL    string
	EmbeddingModel      string

	// Retry policy
	RetryBaseDelay   time.Duration
	RetryMaxAttempts int
	RetryMaxElapsed  time.Duration

	// Outbound provider pacing (requests per minute, 0 disables)
	ProviderRPM int

	// Providers
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	OllamaBaseURL   string
	BedrockEnabled  bool
	AWSRegion       string

	// Infrastructure
	RedisURL      string
	DatabaseURL   string
	OTLPEndpoint  string
	EncryptionKey string
	SecretsName   string

	// Spend monitoring
	RunBudgetUSD float64
	SNSTopicARN  string

	// Async batch jobs
	SQSRequestQueueURL  string
	SQSResponseQueueURL string

	// Admin endpoints
	AdminAuthEnabled  bool
	AdminUsername     string
	AdminPasswordHash string

	// Graceful shutdown
	ShutdownTimeout time.Duration

	// Distributed backends for breaker state and alert dedup
	UseDistributedCircuitBreaker bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:     getEnv("ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ConcurrencyLimit: getIntEnv("CONCURRENCY_LIMIT", 8),
		RequestTimeout:   getDurationEnv("REQUEST_TIMEOUT", 300*time.Second),

		ExactCacheSize: getIntEnv("EXACT_CACHE_SIZE", 1024),
		ExactCacheTTL:  getDurationEnv("EXACT_CACHE_TTL", 24*time.Hour),

		SemanticCacheSize:   getIntEnv("SEMANTIC_CACHE_SIZE", 512),
		SimilarityThreshold: getFloatEnv("SIMILARITY_THRESHOLD", 0.95),
		EmbeddingBaseURL:    getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		RetryBaseDelay:   getDurationEnv("RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxAttempts: getIntEnv("RETRY_MAX_ATTEMPTS", 5),
		RetryMaxElapsed:  getDurationEnv("RETRY_MAX_ELAPSED", 60*time.Second),

		ProviderRPM: getIntEnv("PROVIDER_RPM", 0),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		DeepSeekAPIKey:  getEnv("DEEPSEEK_API_KEY", ""),
		DeepSeekBaseURL: getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1"),
		OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", ""),
		BedrockEnabled:  getEnv("BEDROCK_ENABLED", "false") == "true",
		AWSRegion:       getEnv("AWS_REGION", ""),

		RedisURL:      getEnv("REDIS_URL", ""),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		OTLPEndpoint:  getEnv("OTLP_ENDPOINT", ""),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		SecretsName:   getEnv("SECRETS_NAME", ""),

		RunBudgetUSD: getFloatEnv("RUN_BUDGET_USD", 0),
		SNSTopicARN:  getEnv("SNS_TOPIC_ARN", ""),

		SQSRequestQueueURL:  getEnv("SQS_REQUEST_QUEUE_URL", ""),
		SQSResponseQueueURL: getEnv("SQS_RESPONSE_QUEUE_URL", ""),

		AdminAuthEnabled:  getEnv("ADMIN_AUTH_ENABLED", "false") == "true",
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		UseDistributedCircuitBreaker: getEnv("USE_DISTRIBUTED_CB", "false") == "true",
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
