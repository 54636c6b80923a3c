package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	ServerPort  string
	PublicURL   string
	LogLevel    string

	AdminSecret string
	StateSecret string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubAPIURL       string
	GitHubAuthURL      string
	GitHubTokenURL     string

	OAuthCodeTTL    time.Duration
	SSEHeartbeat    time.Duration
	AuditBufferSize int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxBodyBytes    int64
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		PublicURL:          strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		AdminSecret:        getEnv("ADMIN_SECRET", ""),
		StateSecret:        getEnv("STATE_SECRET", ""),
		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		GitHubAPIURL:       strings.TrimRight(getEnv("GITHUB_API_URL", "https://api.github.com"), "/"),
		GitHubAuthURL:      getEnv("GITHUB_AUTH_URL", ""),
		GitHubTokenURL:     getEnv("GITHUB_TOKEN_URL", ""),
		OAuthCodeTTL:       getEnvDuration("OAUTH_CODE_TTL", 5*time.Minute),
		SSEHeartbeat:       getEnvDuration("SSE_HEARTBEAT", 15*time.Second),
		AuditBufferSize:    getEnvInt("AUDIT_BUFFER_SIZE", 10_000),
		ReadTimeout:        getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:       getEnvDuration("WRITE_TIMEOUT", 60*time.Second),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("config: DATABASE_URL is required"))
	}
	if c.StateSecret == "" {
		errs = append(errs, errors.New("config: STATE_SECRET is required"))
	}
	if c.OAuthCodeTTL <= 0 {
		errs = append(errs, errors.New("config: OAUTH_CODE_TTL must be positive"))
	}
	if c.SSEHeartbeat <= 0 {
		errs = append(errs, errors.New("config: SSE_HEARTBEAT must be positive"))
	}
	if c.AuditBufferSize <= 0 {
		errs = append(errs, errors.New("config: AUDIT_BUFFER_SIZE must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("config: MAX_BODY_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

// GitHubEnabled reports whether delegated GitHub access is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}
