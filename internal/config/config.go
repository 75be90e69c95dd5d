package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// JWT
	JWTSecret string

	// Storage
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	// Redis
	RedisURL string

	// AI provider
	AIProvider           string
	GeminiAPIKey         string
	GeminiModel          string
	OpenAIAPIKey         string
	OpenAIModel          string
	AnthropicAPIKey      string
	AnthropicModel       string
	AIConcurrentRequests int

	// Sharing
	ShareBaseURL      string
	ShareMaxURLLength int

	// Frontend
	FrontendURL string

	WorkerCount int
	Verbose     bool
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		StoreDriver:          strings.ToLower(getEnvOrDefault("STORE_DRIVER", "memory")),
		DatabaseURL:          getEnvOrDefault("DATABASE_URL", ""),
		SQLitePath:           getEnvOrDefault("SQLITE_PATH", "lalaquiz.db"),
		RedisURL:             getEnvOrDefault("REDIS_URL", ""),
		AIProvider:           strings.ToLower(getEnvOrDefault("AI_PROVIDER", "gemini")),
		GeminiAPIKey:         getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:         getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		AnthropicAPIKey:      getEnvOrDefault("ANTHROPIC_API_KEY", ""),
		AnthropicModel:       getEnvOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		AIConcurrentRequests: getEnvAsIntOrDefault("AI_CONCURRENT_REQUESTS", 5),
		ShareBaseURL:         getEnvOrDefault("SHARE_BASE_URL", "http://localhost:5173/"),
		ShareMaxURLLength:    getEnvAsIntOrDefault("SHARE_MAX_URL_LENGTH", 10000000),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
		WorkerCount:          getEnvAsIntOrDefault("WORKER_COUNT", 3),
		Verbose:              getEnvAsBoolOrDefault("VERBOSE", false),
	}

	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}

	return cfg
}

// Validate checks the combinations a single variable cannot express.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("STORE_DRIVER=redis requires REDIS_URL")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.AIProvider {
	case "gemini", "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("unsupported AI_PROVIDER %q", c.AIProvider)
	}

	if c.AIConcurrentRequests < 1 {
		return fmt.Errorf("AI_CONCURRENT_REQUESTS must be at least 1")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	return nil
}

// ProviderAPIKey returns the credential for the selected AI provider. The
// mock provider needs none.
func (c *Config) ProviderAPIKey() string {
	switch c.AIProvider {
	case "gemini":
		return c.GeminiAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	}
	return ""
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
