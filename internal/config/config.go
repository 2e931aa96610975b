package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURI string
	LocalDBPath string

	HTTPListen  string
	CORSOrigins []string

	AuthJWTSecret string

	TelegramToken   string
	TelegramOwnerID int64

	AIAPIKey          string
	AIBaseURL         string
	AIModel           string
	EmbeddingProvider string
	EmbeddingModel    string

	RedisURL string

	BootstrapMode string
	SyncOnLogin   bool

	SyncCron     string
	BackfillCron string
	NotifyCron   string
	NotifyBefore time.Duration

	RemoteTimeout time.Duration
	EmbedTimeout  time.Duration

	Timezone string
	LogLevel string
}

func Load() (*Config, error) {
	// .env file is optional in production
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURI:       os.Getenv("DATABASE_URI"),
		LocalDBPath:       getEnvOrDefault("LOCAL_DB_PATH", "timeline.db"),
		HTTPListen:        getEnvOrDefault("HTTP_LISTEN", "127.0.0.1:8080"),
		CORSOrigins:       splitList(getEnvOrDefault("CORS_ORIGINS", "http://localhost:3000")),
		AuthJWTSecret:     os.Getenv("AUTH_JWT_SECRET"),
		TelegramToken:     os.Getenv("TELEGRAM_TOKEN"),
		AIAPIKey:          os.Getenv("AI_API_KEY"),
		AIBaseURL:         getEnvOrDefault("AI_BASE_URL", "https://openrouter.ai/api/v1"),
		AIModel:           getEnvOrDefault("AI_MODEL", "openai/gpt-4o-mini"),
		EmbeddingProvider: getEnvOrDefault("EMBEDDING_PROVIDER", "local"),
		EmbeddingModel:    getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		RedisURL:          os.Getenv("REDIS_URL"),
		BootstrapMode:     getEnvOrDefault("BOOTSTRAP_MODE", "merge"),
		SyncCron:          getEnvOrDefault("SYNC_CRON", "*/10 * * * *"),
		BackfillCron:      getEnvOrDefault("BACKFILL_CRON", "*/15 * * * *"),
		NotifyCron:        getEnvOrDefault("NOTIFY_CRON", "* * * * *"),
		Timezone:          os.Getenv("TIMEZONE"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.TelegramOwnerID, err = getEnvInt64("TELEGRAM_OWNER_ID", 0); err != nil {
		return nil, err
	}
	if cfg.SyncOnLogin, err = getEnvBool("SYNC_ON_LOGIN", true); err != nil {
		return nil, err
	}
	if cfg.NotifyBefore, err = getEnvDuration("NOTIFY_BEFORE", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RemoteTimeout, err = getEnvDuration("REMOTE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.EmbedTimeout, err = getEnvDuration("EMBED_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.BootstrapMode {
	case "merge", "replace":
	default:
		return fmt.Errorf("BOOTSTRAP_MODE must be merge or replace, got %q", c.BootstrapMode)
	}

	switch c.EmbeddingProvider {
	case "local":
	case "openai":
		if c.AIAPIKey == "" {
			return fmt.Errorf("EMBEDDING_PROVIDER=openai requires AI_API_KEY")
		}
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be local or openai, got %q", c.EmbeddingProvider)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	if c.TelegramToken != "" && c.TelegramOwnerID == 0 {
		return fmt.Errorf("TELEGRAM_OWNER_ID is required when TELEGRAM_TOKEN is set")
	}
	return nil
}

// Location returns the zone used for day boundaries and displayed times. An
// empty TIMEZONE means UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
