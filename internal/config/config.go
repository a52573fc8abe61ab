package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultObfuscationKey is the built-in token store key. It only hides tokens from casual
// inspection of the storage medium; anyone with the binary can recover them.
const DefaultObfuscationKey = "finboard-token-obfuscation"

type Config struct {
	// HTTP Server
	Port string

	// REST backend
	APIBaseURL        string
	APITimeout        time.Duration
	APIRefreshTimeout time.Duration

	// Token store
	TokenBackend        string
	TokenObfuscationKey string
	SQLiteDBPath        string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	RedisTokenTTL       time.Duration
	// SQLite rows untouched for SQLiteTokenRetention are purged every
	// TokenPurgeInterval; zero retention keeps them forever.
	SQLiteTokenRetention time.Duration
	TokenPurgeInterval   time.Duration

	// Browser sessions
	SessionCookieName   string
	SessionCookieSecure bool
	SessionIdleTTL      time.Duration
	SessionMax          int

	// AMQP activity events (empty URL disables publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets activity log (worker only)
	GoogleSpreadsheetID string
	GoogleActivitySheet string

	// Logging
	LogLevel  string
	LogFormat string

	// Rate limiting for login/signup posts
	LoginRateLimit int
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		APIBaseURL:        getEnv("API_BASE_URL", "http://localhost:8000/api"),
		APITimeout:        getEnvDuration("API_TIMEOUT", 15*time.Second),
		APIRefreshTimeout: getEnvDuration("API_REFRESH_TIMEOUT", 10*time.Second),

		TokenBackend:        getEnv("TOKEN_BACKEND", "memory"),
		TokenObfuscationKey: getEnv("TOKEN_OBFUSCATION_KEY", DefaultObfuscationKey),
		SQLiteDBPath:        getEnv("SQLITE_DB_PATH", "./data/finboard.db"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		RedisTokenTTL:       getEnvDuration("REDIS_TOKEN_TTL", 7*24*time.Hour),

		SQLiteTokenRetention: getEnvDuration("SQLITE_TOKEN_RETENTION", 30*24*time.Hour),
		TokenPurgeInterval:   getEnvDuration("TOKEN_PURGE_INTERVAL", time.Hour),

		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "finboard_session"),
		SessionCookieSecure: getEnvBool("SESSION_COOKIE_SECURE", false),
		SessionIdleTTL:      getEnvDuration("SESSION_IDLE_TTL", 12*time.Hour),
		SessionMax:          getEnvInt("SESSION_MAX", 1000),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finboard"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "finboard.activity"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleActivitySheet: getEnv("GOOGLE_ACTIVITY_SHEET", "Activity"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		LoginRateLimit: getEnvInt("RATE_LIMIT_LOGIN_PER_MINUTE", 10),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.APIBaseURL == "" {
		errors = append(errors, "API base URL cannot be empty")
	} else if parsedURL, err := url.Parse(c.APIBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid API base URL '%s': %v", c.APIBaseURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}

	if c.APITimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be at least 1 second", c.APITimeout))
	}
	if c.APIRefreshTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid API refresh timeout %v: must be at least 1 second", c.APIRefreshTimeout))
	}

	validBackends := []string{"memory", "sqlite", "redis"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.TokenBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid token backend '%s': must be one of %v", c.TokenBackend, validBackends))
	}

	if c.TokenObfuscationKey == "" {
		errors = append(errors, "token obfuscation key cannot be empty")
	}

	if c.TokenBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite token backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.SQLiteTokenRetention < 0 {
		errors = append(errors, fmt.Sprintf("invalid SQLite token retention %v: must not be negative", c.SQLiteTokenRetention))
	}
	if c.SQLiteTokenRetention > 0 && c.TokenPurgeInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid token purge interval %v: must be at least 1 minute", c.TokenPurgeInterval))
	}

	if c.TokenBackend == "redis" {
		if c.RedisAddr == "" {
			errors = append(errors, "Redis address cannot be empty when using redis token backend")
		}
		if c.RedisDB < 0 {
			errors = append(errors, fmt.Sprintf("invalid Redis DB %d: must not be negative", c.RedisDB))
		}
		if c.RedisTokenTTL < 0 {
			errors = append(errors, fmt.Sprintf("invalid Redis token TTL %v: must not be negative", c.RedisTokenTTL))
		}
	}

	if c.SessionCookieName == "" {
		errors = append(errors, "session cookie name cannot be empty")
	}
	if c.SessionIdleTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session idle TTL %v: must be at least 1 minute", c.SessionIdleTTL))
	}
	if c.SessionMax < 1 {
		errors = append(errors, fmt.Sprintf("invalid session max %d: must be at least 1", c.SessionMax))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.LoginRateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid login rate limit %d: must be at least 1", c.LoginRateLimit))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks the extra settings the activity worker needs.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP URL is required for the activity worker")
	}
	if c.GoogleSpreadsheetID != "" && c.GoogleActivitySheet == "" {
		errors = append(errors, "Google activity sheet name is required when a spreadsheet is configured")
	}
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
