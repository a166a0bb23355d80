package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	APIBaseURL         string
	StorageBaseURL     string
	DatabaseURL        string
	Port               string
	GoEnv              string
	Auth0Domain        string
	Auth0Audience      string
	AWSRegion          string
	AWSS3Bucket        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	RedisURL           string
	QueryStaleTime     time.Duration
	HTTPTimeout        time.Duration
	CORSOrigins        []string
	LogLevel           string

	loadedFrom string
}

var current *Config

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Environment-specific file first, then .env, then whatever the process already has
	envFile := fmt.Sprintf(".env.%s", env)
	loadedFrom := envFile
	if err := godotenv.Load(envFile); err != nil {
		loadedFrom = ".env"
		if err := godotenv.Load(); err != nil {
			loadedFrom = ""
		}
	}

	staleTime, err := getDuration("QUERY_STALE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := getDuration("HTTP_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	config := &Config{
		APIBaseURL:         strings.TrimRight(getEnv("API_BASE_URL", ""), "/"),
		StorageBaseURL:     strings.TrimRight(getEnv("STORAGE_BASE_URL", ""), "/"),
		DatabaseURL:        getEnv("DATABASE_URL", "marketplace_client.db"),
		Port:               getEnv("PORT", "8080"),
		GoEnv:              getEnv("GO_ENV", "development"),
		Auth0Domain:        getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience:      getEnv("AUTH0_AUDIENCE", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:        getEnv("AWS_S3_BUCKET", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		QueryStaleTime:     staleTime,
		HTTPTimeout:        httpTimeout,
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "http://localhost:8081")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	// Storage paths default to being served from the API host
	if config.StorageBaseURL == "" && config.APIBaseURL != "" {
		config.StorageBaseURL = strings.TrimSuffix(config.APIBaseURL, "/api") + "/storage"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.loadedFrom = loadedFrom
	current = config
	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		return fmt.Errorf("API_BASE_URL must be an http(s) URL, got %q", c.APIBaseURL)
	}
	if c.QueryStaleTime < 0 {
		return fmt.Errorf("QUERY_STALE_TIME must not be negative")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// UsesS3Attachments reports whether attachment refs should be resolved through S3 presigning
func (c *Config) UsesS3Attachments() bool {
	return c.AWSS3Bucket != ""
}

// UsesAuth0 reports whether the view server validates Auth0 access tokens
func (c *Config) UsesAuth0() bool {
	return c.Auth0Domain != "" && c.Auth0Audience != ""
}

// LoadedFrom returns the env file the configuration was read from, if any
func (c *Config) LoadedFrom() string {
	return c.loadedFrom
}

// GetConfig returns the most recently loaded configuration
func GetConfig() *Config {
	return current
}

// SetConfig replaces the current configuration (primarily for testing)
func SetConfig(cfg *Config) {
	current = cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s: %w", key, err)
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
