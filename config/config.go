package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string
	Port        string
	GoEnv       string
	LogLevel    string

	Auth0Domain   string
	Auth0Audience string

	// S3 media store for artwork; disabled when bucket or key is empty
	AWSRegion          string
	AWSS3Bucket        string
	AWSS3Endpoint      string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Redis backs notifications and the catalog cache; optional
	RedisAddr          string
	RedisNotifyChannel string

	CatalogCacheTTL      time.Duration
	DefaultDailyCapacity int
	CORSAllowedOrigins   []string
}

var appConfig *Config

// Load reads configuration from the environment. Values from .env.<GO_ENV>
// (or .env) are applied first without overriding variables already set.
func Load() (*Config, error) {
	loadEnvFile(getEnv("GO_ENV", "development"))

	cfg := &Config{
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		Port:                 getEnv("PORT", "8080"),
		GoEnv:                getEnv("GO_ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		Auth0Domain:          getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience:        getEnv("AUTH0_AUDIENCE", ""),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:          getEnv("AWS_S3_BUCKET", ""),
		AWSS3Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisNotifyChannel:   getEnv("REDIS_NOTIFY_CHANNEL", "printhouse.notifications"),
		CatalogCacheTTL:      getEnvDuration("CATALOG_CACHE_TTL", 5*time.Minute),
		DefaultDailyCapacity: getEnvInt("DEFAULT_DAILY_CAPACITY", 100),
		CORSAllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appConfig = cfg
	return cfg, nil
}

// loadEnvFile applies the first dotenv file found; deployments that set
// variables directly have none.
func loadEnvFile(env string) {
	for _, name := range []string{".env." + env, ".env"} {
		if err := godotenv.Load(name); err == nil {
			log.Printf("Loaded configuration from %s", name)
			return
		}
	}
	log.Printf("No .env file found, using system environment variables")
}

// GetConfig returns the most recently loaded configuration
func GetConfig() *Config {
	return appConfig
}

// SetConfig replaces the loaded configuration (primarily for testing)
func SetConfig(cfg *Config) {
	appConfig = cfg
}

// Validate checks required values. Production additionally needs Auth0,
// since every non-catalog route validates tokens against it.
func (c *Config) Validate() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.DefaultDailyCapacity <= 0 {
		problems = append(problems, "DEFAULT_DAILY_CAPACITY must be positive")
	}
	if c.IsProduction() && (c.Auth0Domain == "" || c.Auth0Audience == "") {
		problems = append(problems, "AUTH0_DOMAIN and AUTH0_AUDIENCE are required in production")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction reports GO_ENV=production
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest reports GO_ENV=test
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// RedisEnabled reports whether a Redis address was configured
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// MediaStoreEnabled reports whether S3 credentials were configured
func (c *Config) MediaStoreEnabled() bool {
	return c.AWSS3Bucket != "" && c.AWSAccessKeyID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return i
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid duration for %s=%q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getEnvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
