package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// JWT
	JWTSecret string

	// Support mailbox identity (direction inference + vendor sender checks)
	SupportMailbox string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	EmbeddingModel string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int
	LLMMaxRetries  int

	// Gmail provider (service account with domain-wide delegation)
	GoogleCredentialsFile string
	PollMailboxes         []string

	// Commerce platform
	CommerceBaseURL    string
	CommerceAPIToken   string
	CommerceTimeoutSec int

	// CRM platform
	CRMBaseURL    string
	CRMAPIToken   string
	CRMTimeoutSec int

	// Worker
	WorkerID        string
	WorkerMin       int
	WorkerMax       int
	WorkerQueueSize int

	// Consumer (Redis Stream)
	ConsumerBatchSize  int
	ConsumerBlockMS    int
	ConsumerMaxRetries int

	// Polling ingestion
	PollIntervalSec     int
	PollFailureLimit    int
	LearningIntervalMin int

	// Retrieval
	RetrievalTopN          int
	RetrievalMinSimilarity float64

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "triage"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Support mailbox
		SupportMailbox: getEnv("SUPPORT_MAILBOX", "support@example.com"),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-ada-002"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2048),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 60),
		LLMMaxRetries:  getEnvInt("LLM_MAX_RETRIES", 3),

		// Gmail provider
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		PollMailboxes:         getEnvSlice("POLL_MAILBOXES", []string{getEnv("SUPPORT_MAILBOX", "support@example.com")}),

		// Commerce
		CommerceBaseURL:    getEnv("COMMERCE_BASE_URL", ""),
		CommerceAPIToken:   getEnv("COMMERCE_API_TOKEN", ""),
		CommerceTimeoutSec: getEnvInt("COMMERCE_TIMEOUT_SEC", 15),

		// CRM
		CRMBaseURL:    getEnv("CRM_BASE_URL", ""),
		CRMAPIToken:   getEnv("CRM_API_TOKEN", ""),
		CRMTimeoutSec: getEnvInt("CRM_TIMEOUT_SEC", 10),

		// Worker
		WorkerID:        getEnv("WORKER_ID", generateWorkerID()),
		WorkerMin:       getEnvInt("WORKER_MIN", 2),
		WorkerMax:       getEnvInt("WORKER_MAX", 8),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 500),

		// Consumer
		ConsumerBatchSize:  getEnvInt("CONSUMER_BATCH_SIZE", 20),
		ConsumerBlockMS:    getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries: getEnvInt("CONSUMER_MAX_RETRIES", 3),

		// Polling
		PollIntervalSec:     getEnvInt("POLL_INTERVAL_SEC", 60),
		PollFailureLimit:    getEnvInt("POLL_FAILURE_LIMIT", 5),
		LearningIntervalMin: getEnvInt("LEARNING_INTERVAL_MIN", 30),

		// Retrieval
		RetrievalTopN:          getEnvInt("RETRIEVAL_TOP_N", 5),
		RetrievalMinSimilarity: getEnvFloat("RETRIEVAL_MIN_SIMILARITY", 0.70),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// LLMTimeout returns the configured LLM call timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
