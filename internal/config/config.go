// Package config loads reachbox settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted for LLM_PROVIDER and EMBED_PROVIDER.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Backend names for KNOWLEDGE_BACKEND and CONTENT_BACKEND.
const (
	BackendSurreal = "surreal"
	BackendMemory  = "memory"
	BackendChroma  = "chroma"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Language model used for categorization and replies
	LLMProvider      string
	CategorizeModel  string
	ReplyModel       string
	ReplyTemperature float64
	AWSRegion        string

	// Embeddings
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int

	// Provider credentials
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Stage budgets
	CategorizeTimeout time.Duration
	ReplyTimeout      time.Duration
	NotifyTimeout     time.Duration
	IndexTimeout      time.Duration
	VectorizeTimeout  time.Duration
	IndexAttempts     int
	Workers           int

	// Stores
	KnowledgeBackend string
	ContentBackend   string
	KnowledgeSeed    string
	ChromaURL        string
	ChromaCollection string

	// Notification sinks (each enabled when its settings are present)
	SlackToken        string
	SlackChannel      string
	WebhookURL        string
	FCMCredentials    string
	FCMTokens         []string
	PubSubProject     string
	PubSubTopic       string
	PubSubCredentials string

	// Mailbox source
	MailboxConfig       string
	MailboxPollInterval time.Duration
	MailboxSinceDays    int
	MailboxStateFile    string

	// HTTP API
	ServerPort   string
	APIJWTSecret string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
// A .env file in the working directory is applied first when present;
// real environment variables win over it.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		// SurrealDB
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "reachbox"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "mail"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		// LLM (same models the original service used)
		LLMProvider:      getEnv("LLM_PROVIDER", ProviderOpenAI),
		CategorizeModel:  getEnv("CATEGORIZE_MODEL", "gpt-3.5-turbo"),
		ReplyModel:       getEnv("REPLY_MODEL", "gpt-4"),
		ReplyTemperature: getFloat("REPLY_TEMPERATURE", 0.7),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),

		// Embeddings: all-minilm is the Ollama build of all-MiniLM-L6-v2 (384-dim)
		EmbedProvider:  getEnv("EMBED_PROVIDER", ProviderOllama),
		EmbedModel:     getEnv("EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getInt("EMBED_DIMENSION", 384),

		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		CategorizeTimeout: getDuration("CATEGORIZE_TIMEOUT", 20*time.Second),
		ReplyTimeout:      getDuration("REPLY_TIMEOUT", 60*time.Second),
		NotifyTimeout:     getDuration("NOTIFY_TIMEOUT", 5*time.Second),
		IndexTimeout:      getDuration("INDEX_TIMEOUT", 10*time.Second),
		VectorizeTimeout:  getDuration("VECTORIZE_TIMEOUT", 30*time.Second),
		IndexAttempts:     getInt("INDEX_ATTEMPTS", 3),
		Workers:           getInt("INGEST_WORKERS", 4),

		KnowledgeBackend: getEnv("KNOWLEDGE_BACKEND", BackendSurreal),
		ContentBackend:   getEnv("CONTENT_BACKEND", BackendSurreal),
		KnowledgeSeed:    getEnv("KNOWLEDGE_SEED", ""),
		ChromaURL:        getEnv("CHROMA_URL", "http://localhost:8001"),
		ChromaCollection: getEnv("CHROMA_COLLECTION", "emails"),

		SlackToken:        getEnv("SLACK_TOKEN", ""),
		SlackChannel:      getEnv("SLACK_CHANNEL", "#email-notifications"),
		WebhookURL:        getEnv("WEBHOOK_URL", ""),
		FCMCredentials:    getEnv("FCM_CREDENTIALS", ""),
		FCMTokens:         getList("FCM_TOKENS"),
		PubSubProject:     getEnv("PUBSUB_PROJECT", ""),
		PubSubTopic:       getEnv("PUBSUB_TOPIC", "email-interested"),
		PubSubCredentials: getEnv("PUBSUB_CREDENTIALS", ""),

		MailboxConfig:       getEnv("MAILBOX_CONFIG", ""),
		MailboxPollInterval: getDuration("MAILBOX_POLL_INTERVAL", time.Minute),
		MailboxSinceDays:    getInt("MAILBOX_SINCE_DAYS", 30),
		MailboxStateFile:    getEnv("MAILBOX_STATE_FILE", ""),

		ServerPort:   getEnv("REACHBOX_PORT", "8000"),
		APIJWTSecret: getEnv("API_JWT_SECRET", ""),

		LogFile:  getEnv("REACHBOX_LOG_FILE", "/tmp/reachbox.log"),
		LogLevel: parseLogLevel(getEnv("REACHBOX_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultVal
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
