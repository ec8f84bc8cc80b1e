// ABOUTME: Centralized configuration for the twin routing service
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Providers selectable through TWIN_PROVIDER
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Stores selectable through TWIN_STORE
const (
	StoreSQLite   = "sqlite"
	StoreCharm    = "charm"
	StorePostgres = "postgres"
)

// Config holds all configuration for the twin system
type Config struct {
	// Model settings
	Provider       string
	OpenAIKey      string
	OpenAIBaseURL  string
	GeminiKey      string
	AnthropicKey   string
	ChatModel      string
	EmbeddingModel string
	CallTimeout    time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	RetrievalTopK  int

	// Turn settings
	MaxIterations    int
	MaxMessageLength int

	// Storage settings
	Store       string
	DBPath      string // empty selects the XDG data directory
	DatabaseURL string
	CharmHost   string
	CharmDBName string
	AutoSync    bool

	// Server settings
	Port        int
	CORSOrigins []string

	// Observability settings
	OTelEnabled     bool
	OTelEndpoint    string
	OTelServiceName string
	LogLevel        string
	LogPretty       bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Provider:         strings.ToLower(getEnv("TWIN_PROVIDER", ProviderOpenAI)),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		GeminiKey:        os.Getenv("GEMINI_API_KEY"),
		AnthropicKey:     os.Getenv("ANTHROPIC_API_KEY"),
		ChatModel:        os.Getenv("TWIN_CHAT_MODEL"),
		EmbeddingModel:   getEnv("TWIN_EMBEDDING_MODEL", "text-embedding-3-small"),
		CallTimeout:      getEnvDuration("TWIN_CALL_TIMEOUT", 30*time.Second),
		MaxRetries:       getEnvInt("TWIN_MAX_RETRIES", 3),
		RetryDelay:       getEnvDuration("TWIN_RETRY_DELAY", 2*time.Second),
		RetrievalTopK:    getEnvInt("TWIN_RETRIEVAL_TOP_K", 3),
		MaxIterations:    getEnvInt("TWIN_MAX_ITERATIONS", 5),
		MaxMessageLength: getEnvInt("TWIN_MAX_MESSAGE_LENGTH", 4000),
		Store:            strings.ToLower(getEnv("TWIN_STORE", StoreSQLite)),
		DBPath:           os.Getenv("TWIN_DB_PATH"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		CharmHost:        getEnv("CHARM_HOST", "charm.2389.dev"),
		CharmDBName:      getEnv("CHARM_DB", "twin"),
		AutoSync:         getEnvBool("CHARM_AUTO_SYNC", true),
		Port:             getEnvInt("TWIN_PORT", 8080),
		CORSOrigins:      getEnvList("TWIN_CORS_ORIGINS", []string{"*"}),
		OTelEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelServiceName:  getEnv("OTEL_SERVICE_NAME", "twin"),
		LogLevel:         getEnv("TWIN_LOG_LEVEL", "info"),
		LogPretty:        getEnvBool("TWIN_LOG_PRETTY", false),
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderAnthropic:
	default:
		return fmt.Errorf("TWIN_PROVIDER must be openai, gemini or anthropic, got %q", c.Provider)
	}
	switch c.Store {
	case StoreSQLite, StoreCharm, StorePostgres:
	default:
		return fmt.Errorf("TWIN_STORE must be sqlite, charm or postgres, got %q", c.Store)
	}
	if c.Store == StorePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when TWIN_STORE=postgres")
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("TWIN_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if c.MaxIterations < 1 || c.MaxIterations > 20 {
		return fmt.Errorf("TWIN_MAX_ITERATIONS must be 1-20, got %d", c.MaxIterations)
	}
	if c.MaxMessageLength < 1 {
		return fmt.Errorf("TWIN_MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}
	if c.RetrievalTopK < 0 || c.RetrievalTopK > 50 {
		return fmt.Errorf("TWIN_RETRIEVAL_TOP_K must be 0-50, got %d", c.RetrievalTopK)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("TWIN_PORT must be 1-65535, got %d", c.Port)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("TWIN_CALL_TIMEOUT must be positive, got %v", c.CallTimeout)
	}
	return nil
}

// ResolvedChatModel returns TWIN_CHAT_MODEL or the provider's default model
func (c *Config) ResolvedChatModel() string {
	if c.ChatModel != "" {
		return c.ChatModel
	}
	switch c.Provider {
	case ProviderGemini:
		return "gemini-2.0-flash"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	default:
		return "gpt-4o-mini"
	}
}

// APIKey returns the key for the configured provider
func (c *Config) APIKey() string {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiKey
	case ProviderAnthropic:
		return c.AnthropicKey
	default:
		return c.OpenAIKey
	}
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
