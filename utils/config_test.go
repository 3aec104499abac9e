package utils

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEnvPath = "./test.env"

func cleanup() {
	os.Remove(testEnvPath)
}

// TestMain handles test setup and cleanup for all tests in this package
func TestMain(m *testing.M) {
	exitCode := m.Run()

	cleanup()

	os.Exit(exitCode)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_ENV_VAR", "test-value")
	defer os.Unsetenv("TEST_ENV_VAR")

	value := getEnv("TEST_ENV_VAR", "default-value")
	assert.Equal(t, "test-value", value)

	value = getEnv("NON_EXISTENT_VAR", "default-value")
	assert.Equal(t, "default-value", value)
}

func TestGetEnvAsInt(t *testing.T) {
	os.Setenv("TEST_INT_VAR", "42")
	defer os.Unsetenv("TEST_INT_VAR")

	value := getEnvAsInt("TEST_INT_VAR", 10)
	assert.Equal(t, 42, value)

	os.Setenv("TEST_INVALID_INT_VAR", "not-an-int")
	defer os.Unsetenv("TEST_INVALID_INT_VAR")

	value = getEnvAsInt("TEST_INVALID_INT_VAR", 10)
	assert.Equal(t, 10, value)

	value = getEnvAsInt("NON_EXISTENT_VAR", 10)
	assert.Equal(t, 10, value)
}

func TestLoadConfig(t *testing.T) {
	content := "APIFY_TOKEN=apify-token\nLLM_PROVIDER=claude\nANTHROPIC_API_KEY=sk-test\nCLASSIFIER_BATCH_SIZE=25\nDATABASE_PATH=./test.db\n"
	require.NoError(t, os.WriteFile(testEnvPath, []byte(content), 0644))
	defer func() {
		for _, key := range []string{"APIFY_TOKEN", "LLM_PROVIDER", "ANTHROPIC_API_KEY", "CLASSIFIER_BATCH_SIZE", "DATABASE_PATH"} {
			os.Unsetenv(key)
		}
	}()

	config, err := LoadConfig(testEnvPath, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, "apify-token", config.Apify.Token)
	assert.Equal(t, "claude", config.Backend.Provider)
	assert.Equal(t, "sk-test", config.BackendAPIKey())
	assert.Equal(t, 25, config.Classifier.BatchSize)
	assert.Equal(t, 5, config.Classifier.Workers)
	assert.Equal(t, 500, config.Themes.SampleLimit)
	assert.Equal(t, 5, config.Themes.GlobalCount)
	assert.Equal(t, 3, config.Themes.SentimentCount)
	assert.Equal(t, 10000, config.Apify.MaxItems)
	assert.NoError(t, ValidateCredentials(config))
}

func TestLoadConfigMissingFile(t *testing.T) {
	config, err := LoadConfig("./does-not-exist.env", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "gemini", config.Backend.Provider)
}

func validConfig() *Config {
	return &Config{
		Apify:      ApifyConfig{Token: "token"},
		Backend:    BackendConfig{Provider: "gemini", GeminiAPIKey: "key", MaxRequestsPerMinute: 60},
		Classifier: ClassifierConfig{BatchSize: 50, Workers: 5},
		Themes:     ThemesConfig{SampleLimit: 500},
		Database:   DatabaseConfig{Path: "./test.db"},
	}
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, validateConfig(validConfig()))

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown provider", func(c *Config) { c.Backend.Provider = "ollama" }, "LLM_PROVIDER"},
		{"zero batch size", func(c *Config) { c.Classifier.BatchSize = 0 }, "CLASSIFIER_BATCH_SIZE"},
		{"zero workers", func(c *Config) { c.Classifier.Workers = 0 }, "CLASSIFIER_WORKERS"},
		{"zero sample", func(c *Config) { c.Themes.SampleLimit = 0 }, "THEMES_SAMPLE_LIMIT"},
		{"zero rate", func(c *Config) { c.Backend.MaxRequestsPerMinute = 0 }, "BACKEND_REQUESTS_PER_MINUTE"},
		{"negative retries", func(c *Config) { c.Backend.MaxRetries = -1 }, "BACKEND_MAX_RETRIES"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := validConfig()
			tc.mutate(config)
			err := validateConfig(config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid gemini", func(c *Config) {}, ""},
		{"missing apify token", func(c *Config) { c.Apify.Token = "" }, "APIFY_TOKEN"},
		{"missing gemini key", func(c *Config) { c.Backend.GeminiAPIKey = "" }, "GEMINI_API_KEY"},
		{"missing anthropic key", func(c *Config) { c.Backend.Provider = "claude" }, "ANTHROPIC_API_KEY"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := validConfig()
			tc.mutate(config)
			err := ValidateCredentials(config)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingCredentials))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseSearchTerms(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Single term",
			input:    "golang",
			expected: []string{"golang"},
		},
		{
			name:     "Comma separated",
			input:    "milei,inflación,#dolar",
			expected: []string{"milei", "inflación", "#dolar"},
		},
		{
			name:     "Newline separated",
			input:    "milei\ninflación\n#dolar",
			expected: []string{"milei", "inflación", "#dolar"},
		},
		{
			name:     "Mixed separators with whitespace",
			input:    " milei ,\n inflación\t,#dolar ",
			expected: []string{"milei", "inflación", "#dolar"},
		},
		{
			name:     "Extra separators",
			input:    ",,milei,\n\n,#dolar,",
			expected: []string{"milei", "#dolar"},
		},
		{
			name:     "Phrases keep inner spaces",
			input:    "banco central, tipo de cambio",
			expected: []string{"banco central", "tipo de cambio"},
		},
		{
			name:     "Empty input",
			input:    "  \n , ",
			expected: []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseSearchTerms(tc.input))
		})
	}
}
