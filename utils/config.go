package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// ErrMissingCredentials is returned when a run is attempted without the keys it needs
var ErrMissingCredentials = errors.New("missing credentials")

// Config holds all configuration for the application
type Config struct {
	App        AppConfig
	Apify      ApifyConfig
	Backend    BackendConfig
	Classifier ClassifierConfig
	Themes     ThemesConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Server     ServerConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name           string
	Version        string
	DefaultContext string
}

// ApifyConfig holds scraping provider configuration
type ApifyConfig struct {
	Token    string
	Actor    string
	MaxItems int
	Timeout  time.Duration
}

// BackendConfig holds text-generation backend configuration
type BackendConfig struct {
	Provider             string // gemini or claude
	GeminiAPIKey         string
	AnthropicAPIKey      string
	Model                string
	MaxRequestsPerMinute int
	Timeout              time.Duration
	MaxRetries           int
}

// ClassifierConfig holds batch classifier configuration
type ClassifierConfig struct {
	BatchSize int
	Workers   int
}

// ThemesConfig holds theme extractor configuration
type ThemesConfig struct {
	SampleLimit    int
	GlobalCount    int
	SentimentCount int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string
}

// RedisConfig holds the scrape cache configuration; an empty Addr disables caching
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port                 int
	MaxRequestsPerMinute int
}

// LoadConfig loads configuration from the environment, reading envPath first when it exists
func LoadConfig(envPath string, log *logrus.Logger) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}

	if err := godotenv.Load(envPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
		log.WithField("file", envPath).Warn("No .env file found, using process environment")
	}

	config := &Config{
		App: AppConfig{
			Name:           getEnv("APP_NAME", "Tweet Listener"),
			Version:        getEnv("APP_VERSION", "1.0.0"),
			DefaultContext: getEnv("DEFAULT_CONTEXT", ""),
		},
		Apify: ApifyConfig{
			Token:    getEnv("APIFY_TOKEN", ""),
			Actor:    getEnv("APIFY_ACTOR", "apidojo~twitter-scraper-lite"),
			MaxItems: getEnvAsInt("APIFY_MAX_ITEMS", 10000),
			Timeout:  time.Duration(getEnvAsInt("APIFY_TIMEOUT_SECONDS", 300)) * time.Second,
		},
		Backend: BackendConfig{
			Provider:             strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
			GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
			AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
			Model:                getEnv("LLM_MODEL", ""),
			MaxRequestsPerMinute: getEnvAsInt("BACKEND_REQUESTS_PER_MINUTE", 60),
			Timeout:              time.Duration(getEnvAsInt("BACKEND_TIMEOUT_SECONDS", 60)) * time.Second,
			MaxRetries:           getEnvAsInt("BACKEND_MAX_RETRIES", 2),
		},
		Classifier: ClassifierConfig{
			BatchSize: getEnvAsInt("CLASSIFIER_BATCH_SIZE", 50),
			Workers:   getEnvAsInt("CLASSIFIER_WORKERS", 5),
		},
		Themes: ThemesConfig{
			SampleLimit:    getEnvAsInt("THEMES_SAMPLE_LIMIT", 500),
			GlobalCount:    getEnvAsInt("THEMES_GLOBAL_COUNT", 5),
			SentimentCount: getEnvAsInt("THEMES_SENTIMENT_COUNT", 3),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./listener.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvAsInt("REDIS_CACHE_TTL_SECONDS", 3600)) * time.Second,
		},
		Server: ServerConfig{
			Port:                 getEnvAsInt("SERVER_PORT", 8080),
			MaxRequestsPerMinute: getEnvAsInt("SERVER_MAX_REQUESTS_PER_MINUTE", 30),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	log.WithField("file", envPath).Info("Config loaded successfully")
	return config, nil
}

var termSeparator = regexp.MustCompile(`[,\n]`)

// ParseSearchTerms splits user input on commas and newlines, dropping blanks
func ParseSearchTerms(input string) []string {
	parts := termSeparator.Split(input, -1)

	terms := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			terms = append(terms, trimmed)
		}
	}

	return terms
}

// BackendAPIKey returns the key for the configured provider
func (c *Config) BackendAPIKey() string {
	if c.Backend.Provider == "claude" {
		return c.Backend.AnthropicAPIKey
	}
	return c.Backend.GeminiAPIKey
}

// ValidateCredentials checks the keys a run needs. It is called once before a run starts.
func ValidateCredentials(config *Config) error {
	if config.Apify.Token == "" {
		return fmt.Errorf("%w: APIFY_TOKEN environment variable is required", ErrMissingCredentials)
	}

	switch config.Backend.Provider {
	case "gemini":
		if config.Backend.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required", ErrMissingCredentials)
		}
	case "claude":
		if config.Backend.AnthropicAPIKey == "" {
			return fmt.Errorf("%w: ANTHROPIC_API_KEY environment variable is required", ErrMissingCredentials)
		}
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Backend.Provider != "gemini" && config.Backend.Provider != "claude" {
		return fmt.Errorf("LLM_PROVIDER must be gemini or claude, got %q", config.Backend.Provider)
	}
	if config.Classifier.BatchSize < 1 {
		return fmt.Errorf("CLASSIFIER_BATCH_SIZE must be positive")
	}
	if config.Classifier.Workers < 1 {
		return fmt.Errorf("CLASSIFIER_WORKERS must be positive")
	}
	if config.Themes.SampleLimit < 1 {
		return fmt.Errorf("THEMES_SAMPLE_LIMIT must be positive")
	}
	if config.Backend.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("BACKEND_REQUESTS_PER_MINUTE must be positive")
	}
	if config.Backend.MaxRetries < 0 {
		return fmt.Errorf("BACKEND_MAX_RETRIES must not be negative")
	}

	// if we are storing the db in a nested directory, create the directory
	dbDir := filepath.Dir(config.Database.Path)
	if dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
