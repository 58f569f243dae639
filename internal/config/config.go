package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Reply providers.
const (
	ProviderRules  = "rules"
	ProviderRemote = "remote"
)

// Session store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	ReplyProvider     string
	RemoteChatURL     string
	RemoteChatTimeout time.Duration

	SessionStore  string
	SessionTTL    time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string
	SessionsTable string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Typing simulation
	TypingMinDelay time.Duration
	TypingMaxDelay time.Duration
	TypingPerChar  time.Duration
	SentDelay      time.Duration

	AuthJWTSecret      string
	CORSAllowedOrigins []string
	ChatRateLimit      float64
	ChatRateBurst      int
	WidgetJSPath       string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		ReplyProvider:     strings.ToLower(strings.TrimSpace(getEnv("REPLY_PROVIDER", ProviderRules))),
		RemoteChatURL:     getEnv("REMOTE_CHAT_URL", ""),
		RemoteChatTimeout: getEnvAsDuration("REMOTE_CHAT_TIMEOUT", 10*time.Second),

		SessionStore:  strings.ToLower(strings.TrimSpace(getEnv("SESSION_STORE", StoreMemory))),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 30*24*time.Hour),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		SessionsTable: getEnv("SESSIONS_TABLE", "assistant_sessions"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		TypingMinDelay: getEnvAsDuration("TYPING_MIN_DELAY", 600*time.Millisecond),
		TypingMaxDelay: getEnvAsDuration("TYPING_MAX_DELAY", 3*time.Second),
		TypingPerChar:  getEnvAsDuration("TYPING_PER_CHAR", 15*time.Millisecond),
		SentDelay:      getEnvAsDuration("SENT_DELAY", 300*time.Millisecond),

		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		ChatRateLimit:      getEnvAsFloat("CHAT_RATE_LIMIT", 5),
		ChatRateBurst:      getEnvAsInt("CHAT_RATE_BURST", 10),
		WidgetJSPath:       getEnv("WIDGET_JS_PATH", ""),
	}
}

// Validate reports configuration combinations that cannot be wired.
func (c *Config) Validate() error {
	var errs []error
	switch c.ReplyProvider {
	case ProviderRules:
	case ProviderRemote:
		if strings.TrimSpace(c.RemoteChatURL) == "" {
			errs = append(errs, errors.New("REMOTE_CHAT_URL is required when REPLY_PROVIDER=remote"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown REPLY_PROVIDER %q", c.ReplyProvider))
	}

	switch c.SessionStore {
	case StoreMemory, StoreDynamoDB:
	case StoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when SESSION_STORE=redis"))
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when SESSION_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore))
	}

	if c.TypingMaxDelay < c.TypingMinDelay {
		errs = append(errs, errors.New("TYPING_MAX_DELAY must not be below TYPING_MIN_DELAY"))
	}
	return errors.Join(errs...)
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
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

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
