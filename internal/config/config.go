package config

import (
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string // Empty selects the in-memory store
	TablePrefix string
	CORSOrigins string
	// Chat
	DefaultModel       string
	ToolMinPending     time.Duration // Minimum time a tool call is shown as pending
	SSEKeepAlive       time.Duration
	SSEWriteTimeout    time.Duration // Per-frame write deadline, zero disables
	ResponderWordDelay time.Duration
	// Client (CLI host)
	APIBaseURL string
	OwnerID    string
	// Logging
	LogDir      string
	LogMaxFiles int
	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Environment:        env,
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		TablePrefix:        getTablePrefix(env),
		CORSOrigins:        getEnv("CORS_ORIGINS", "http://localhost:3000"),
		DefaultModel:       getEnv("DEFAULT_MODEL", DefaultModel),
		ToolMinPending:     getDuration("TOOL_MIN_PENDING", DefaultToolMinPending),
		SSEKeepAlive:       getDuration("SSE_KEEPALIVE", 10*time.Second),
		SSEWriteTimeout:    getDuration("SSE_WRITE_TIMEOUT", 30*time.Second),
		ResponderWordDelay: getDuration("RESPONDER_WORD_DELAY", 0),
		APIBaseURL:         getEnv("API_BASE_URL", "http://localhost:8080"),
		OwnerID:            getEnv("OWNER_ID", "local-user"),
		LogDir:             getEnv("LOG_DIR", "logs"),
		LogMaxFiles:        getInt("LOG_MAX_FILES", 10),
		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, is.Port),
		validation.Field(&c.Environment, validation.Required, validation.In("dev", "test", "prod")),
		validation.Field(&c.DefaultModel, validation.Required, validation.Length(1, MaxModelLength)),
		validation.Field(&c.ToolMinPending, validation.Min(time.Duration(0))),
		validation.Field(&c.SSEKeepAlive, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.SSEWriteTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.APIBaseURL, validation.Required, is.URL),
		validation.Field(&c.OwnerID, validation.Required),
		validation.Field(&c.LogMaxFiles, validation.Min(1)),
	)
}

// getDefaultDebug returns the default debug setting based on environment.
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment.
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
