package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	StoragePath        string
	FashnAPIKey        string
	FashnBaseURL       string
	ImgBBAPIKey        string
	ImgBBBaseURL       string
	DefaultCategory    string
	PollInterval       time.Duration
	MaxPollDuration    time.Duration
	RemoteTimeout      time.Duration
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		StoragePath:        strings.TrimSpace(os.Getenv("STORAGE_PATH")),
		FashnAPIKey:        firstEnv("FASHN_API_KEY", "API_KEY", "NEXT_PUBLIC_API_KEY"),
		FashnBaseURL:       getEnv("FASHN_BASE_URL", "https://api.fashn.ai/v1"),
		ImgBBAPIKey:        strings.TrimSpace(os.Getenv("IMGBB_API_KEY")),
		ImgBBBaseURL:       getEnv("IMGBB_BASE_URL", "https://api.imgbb.com/1"),
		DefaultCategory:    getEnv("DEFAULT_CATEGORY", "auto"),
		PollInterval:       time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)),
		MaxPollDuration:    time.Second * time.Duration(getEnvInt("MAX_POLL_SECONDS", 300)),
		RemoteTimeout:      time.Second * time.Duration(getEnvInt("REMOTE_TIMEOUT_SECONDS", 30)),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:4200"}),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if cfg.MaxPollDuration <= 0 {
		return nil, fmt.Errorf("MAX_POLL_SECONDS must be positive")
	}

	return cfg, nil
}

// HasDatabase reports whether attempt history and stored credentials are available.
func (c *Config) HasDatabase() bool {
	return c != nil && c.DatabaseURL != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// firstEnv returns the first non-empty value among keys. The later keys are
// the names older front-end builds injected the key under.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}
