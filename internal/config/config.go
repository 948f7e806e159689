package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	// Scheduling policy
	BusinessTimezone   string
	BusinessHours      string
	DefaultDurationMin int
	BufferMinutes      int
	SlotStepMinutes    int
	SessionTTL         time.Duration
	BookingLockTTL     time.Duration

	// Phone normalization
	DefaultDialPrefix string

	// Telephony provider
	TelephonyWebhookSecret string
	TransferNumber         string

	// AI voice-agent provider
	VoiceAgentBaseURL string
	VoiceAgentAPIKey  string
	VoiceAgentID      string
	VoiceAgentTimeout time.Duration

	AdminJWTSecret     string
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		BusinessTimezone:   getEnv("BUSINESS_TIMEZONE", "America/Los_Angeles"),
		BusinessHours:      getEnv("BUSINESS_HOURS", "Mon-Fri=09:00-18:00"),
		DefaultDurationMin: getEnvAsInt("DEFAULT_DURATION_MINUTES", 30),
		BufferMinutes:      getEnvAsInt("BUFFER_MINUTES", 15),
		SlotStepMinutes:    getEnvAsInt("SLOT_STEP_MINUTES", 15),
		SessionTTL:         getEnvAsDuration("SESSION_TTL", time.Hour),
		BookingLockTTL:     getEnvAsDuration("BOOKING_LOCK_TTL", 10*time.Second),

		DefaultDialPrefix: getEnv("DEFAULT_DIAL_PREFIX", "+1"),

		TelephonyWebhookSecret: getEnv("TELEPHONY_WEBHOOK_SECRET", ""),
		TransferNumber:         getEnv("TRANSFER_NUMBER", ""),

		VoiceAgentBaseURL: getEnv("VOICE_AGENT_BASE_URL", ""),
		VoiceAgentAPIKey:  getEnv("VOICE_AGENT_API_KEY", ""),
		VoiceAgentID:      getEnv("VOICE_AGENT_ID", ""),
		VoiceAgentTimeout: getEnvAsDuration("VOICE_AGENT_TIMEOUT", 10*time.Second),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
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

func splitAndTrim(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
