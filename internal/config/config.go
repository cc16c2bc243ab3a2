package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port           string
	PostgresDSN    string
	MongoURI       string
	MongoDB        string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string
	AIServiceURL   string

	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
	AdminEmails      []string

	ListingQuota   int
	AllowedOrigins []string
	CookieSecure   bool

	LogLevel  string
	LogFormat string
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	quota, err := strconv.Atoi(getenv("LISTING_QUOTA", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid LISTING_QUOTA: %w", err)
	}
	redisDB, err := strconv.Atoi(getenv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		Port:             getenv("PORT", "8080"),
		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		MongoURI:         getenv("MONGO_URI", ""),
		MongoDB:          getenv("MONGO_DB", "homeonmap"),
		RedisAddr:        getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword:    getenv("REDIS_PASSWORD", ""),
		RedisDB:          redisDB,
		MinioEndpoint:    getenv("MINIO_ENDPOINT", "minio:9000"),
		MinioAccessKey:   getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:   getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:      getenv("MINIO_BUCKET", "property-images"),
		MinioUseSSL:      getenv("MINIO_USE_SSL", "false") == "true",
		MinioPublicURL:   getenv("MINIO_PUBLIC_URL", ""),
		AIServiceURL:     getenv("AI_SERVICE_URL", "http://ai-service:8000"),
		OIDCIssuer:       getenv("OIDC_ISSUER", "https://accounts.google.com"),
		OIDCClientID:     getenv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getenv("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getenv("OIDC_REDIRECT_URL", "http://localhost:8080/api/auth/callback"),
		AdminEmails:      splitList(getenv("ADMIN_EMAILS", "")),
		ListingQuota:     quota,
		AllowedOrigins:   splitList(getenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		CookieSecure:     getenv("COOKIE_SECURE", "false") == "true",
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFormat:        getenv("LOG_FORMAT", "json"),
	}
	if cfg.MinioPublicURL == "" {
		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}
		cfg.MinioPublicURL = scheme + "://" + cfg.MinioEndpoint
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var problems []string
	if c.PostgresDSN == "" {
		problems = append(problems, "POSTGRES_DSN is required")
	}
	if c.MongoURI == "" {
		problems = append(problems, "MONGO_URI is required")
	}
	if c.OIDCClientID == "" {
		problems = append(problems, "OIDC_CLIENT_ID is required")
	}
	if c.ListingQuota < 1 {
		problems = append(problems, "LISTING_QUOTA must be at least 1")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		problems = append(problems, "LOG_FORMAT must be json or console")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
