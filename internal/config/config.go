package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ChatwootBaseURL       string
	ChatwootAPIToken      string
	ChatwootAccountID     int
	ChatwootInboxID       int
	ChatwootWebhookSecret string

	OpenAIAPIKey string
	OpenAIModel  string

	GoogleCredentialsPath string
	GoogleCalendarID      string
	CalendarTimezone      string
	CalendarSyncInterval  time.Duration
	CalendarSyncWindow    SyncWindow

	RateLimitMaxMessages   int
	RateLimitWindowSeconds int

	MessageGroupDelay    time.Duration
	ProcessingLockTTL    time.Duration
	AgentTimeout         time.Duration
	ContextWindowSize    int
	PendingMessageTTL    time.Duration
	ConversationCtxTTL   time.Duration
	ReferenceCacheTTL    time.Duration
	DailyReminderCron    string

	SalonName string
}

// SyncWindow bounds the calendar reconciliation range around now.
type SyncWindow struct {
	PastDays   int
	FutureDays int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		ChatwootBaseURL:       getEnv("CHATWOOT_BASE_URL", ""),
		ChatwootAPIToken:      getEnv("CHATWOOT_API_TOKEN", ""),
		ChatwootAccountID:     getEnvAsInt("CHATWOOT_ACCOUNT_ID", 1),
		ChatwootInboxID:       getEnvAsInt("CHATWOOT_INBOX_ID", 1),
		ChatwootWebhookSecret: getEnv("CHATWOOT_WEBHOOK_SECRET", ""),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		GoogleCredentialsPath: getEnv("GOOGLE_CREDENTIALS_PATH", "/app/credentials/google_service_account.json"),
		GoogleCalendarID:      getEnv("GOOGLE_CALENDAR_ID", ""),
		CalendarTimezone:      getEnv("CALENDAR_TIMEZONE", "America/Mexico_City"),
		CalendarSyncInterval:  getEnvAsDuration("CALENDAR_SYNC_INTERVAL", 15*time.Minute),
		CalendarSyncWindow: SyncWindow{
			PastDays:   getEnvAsInt("CALENDAR_SYNC_PAST_DAYS", 7),
			FutureDays: getEnvAsInt("CALENDAR_SYNC_FUTURE_DAYS", 30),
		},

		RateLimitMaxMessages:   getEnvAsInt("RATE_LIMIT_MAX_MESSAGES", 30),
		RateLimitWindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 3600),

		MessageGroupDelay:  getEnvAsDuration("MESSAGE_GROUP_DELAY", 3*time.Second),
		ProcessingLockTTL:  getEnvAsDuration("PROCESSING_LOCK_TTL", 30*time.Second),
		AgentTimeout:       getEnvAsDuration("AGENT_TIMEOUT", 20*time.Second),
		ContextWindowSize:  getEnvAsInt("CONTEXT_WINDOW_SIZE", 20),
		PendingMessageTTL:  getEnvAsDuration("PENDING_MESSAGE_TTL", time.Minute),
		ConversationCtxTTL: getEnvAsDuration("CONVERSATION_CONTEXT_TTL", time.Hour),
		ReferenceCacheTTL:  getEnvAsDuration("REFERENCE_CACHE_TTL", time.Hour),
		DailyReminderCron:  getEnv("DAILY_REMINDER_CRON", "0 18 * * *"),

		SalonName: getEnv("SALON_NAME", "Salon de Belleza"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
