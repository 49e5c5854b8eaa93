// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers understood by the storage package.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config is the process-wide configuration. It is loaded once at startup and
// handed to every component explicitly; nothing mutates it afterwards.
type Config struct {
	// Server
	Port           string
	FrontendOrigin string
	DataDir        string
	LogDir         string
	LogLevel       string
	DebugMode      bool

	// Generation
	UseModel        bool
	DefaultEngine   string
	Temperature     float64
	ProviderTimeout time.Duration
	ProviderRetries int
	StagesFile      string

	// LLM providers
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIBaseURL    string
	OpenRouterAPIKey string
	OpenRouterModel  string
	AnthropicAPIKey  string
	AnthropicModel   string

	// Persistence
	StoreDriver   string
	SQLitePath    string
	Autosave      bool
	AutosaveQueue int

	// Auth
	AuthSecret string
	AuthIssuer string

	// Telemetry
	OTelEnabled  bool
	OTelStdout   bool
	OTLPEndpoint string
}

// Load reads configuration from the environment. envFile, when non-empty,
// must exist; otherwise a .env in the working directory is loaded if present.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		// .env is optional
		_ = godotenv.Load()
	}

	dataDir := getEnvPath("DATA_DIR", "data")

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendOrigin: getEnv("FRONTEND_ORIGIN", ""),
		DataDir:        dataDir,
		LogDir:         getEnvPath("LOG_DIR", "logs"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DebugMode:      getEnvBool("DEBUG_MODE", false),

		UseModel:      getEnvBool("USE_MODEL", false),
		DefaultEngine: getEnv("DEFAULT_ENGINE", "gpt-5-mini"),
		StagesFile:    getEnv("STAGES_FILE", ""),

		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnv("OPENAI_MODEL", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterModel:  getEnv("OPENROUTER_MODEL", "openai/gpt-4o-mini"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreFile)),
		SQLitePath:  getEnvPath("SQLITE_PATH", filepath.Join(dataDir, "manthan.db")),
		Autosave:    getEnvBool("AUTOSAVE", true),

		AuthSecret: getEnv("AUTH_SECRET", ""),
		AuthIssuer: getEnv("AUTH_ISSUER", ""),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTelStdout:   getEnvBool("OTEL_STDOUT", false),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	var err error
	if config.Temperature, err = getEnvFloat("MODEL_TEMPERATURE", 0.9); err != nil {
		return nil, err
	}
	if config.ProviderTimeout, err = getEnvDuration("PROVIDER_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if config.ProviderRetries, err = getEnvInt("PROVIDER_RETRIES", 2); err != nil {
		return nil, err
	}
	if config.AutosaveQueue, err = getEnvInt("AUTOSAVE_QUEUE", 64); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want memory, file or sqlite)", c.StoreDriver)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", c.ProviderTimeout)
	}
	if c.ProviderRetries < 0 {
		return fmt.Errorf("PROVIDER_RETRIES must not be negative, got %d", c.ProviderRetries)
	}
	if c.AutosaveQueue <= 0 {
		return fmt.Errorf("AUTOSAVE_QUEUE must be positive, got %d", c.AutosaveQueue)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("MODEL_TEMPERATURE must be within [0, 2], got %v", c.Temperature)
	}
	if c.DefaultEngine == "" {
		return fmt.Errorf("DEFAULT_ENGINE must not be empty")
	}
	return nil
}

// AuthRequired reports whether bearer tokens are verified. Without a secret
// every caller acts as the guest identity.
func (c *Config) AuthRequired() bool {
	return c.AuthSecret != ""
}

// AllowedOrigin is the CORS origin, "*" when none is configured.
func (c *Config) AllowedOrigin() string {
	if c.FrontendOrigin == "" {
		return "*"
	}
	return c.FrontendOrigin
}

// ProviderConfigs returns the Initialize map for each provider that has
// credentials. Providers without a key are left out.
func (c *Config) ProviderConfigs() map[string]map[string]string {
	configs := make(map[string]map[string]string)
	if c.OpenAIAPIKey != "" {
		configs["openai"] = map[string]string{
			"api_key":  c.OpenAIAPIKey,
			"base_url": c.OpenAIBaseURL,
		}
		if c.OpenAIModel != "" {
			configs["openai"]["default_model"] = c.OpenAIModel
		}
	}
	if c.OpenRouterAPIKey != "" {
		configs["openrouter"] = map[string]string{
			"api_key":       c.OpenRouterAPIKey,
			"default_model": c.OpenRouterModel,
			"http_referer":  c.AllowedOriginOrDefault("https://manthan.local"),
			"app_name":      "Manthan Creator Suite",
		}
	}
	if c.AnthropicAPIKey != "" {
		configs["anthropic"] = map[string]string{
			"api_key":       c.AnthropicAPIKey,
			"default_model": c.AnthropicModel,
		}
	}
	return configs
}

// AllowedOriginOrDefault returns FrontendOrigin or fallback when unset.
func (c *Config) AllowedOriginOrDefault(fallback string) string {
	if c.FrontendOrigin == "" {
		return fallback
	}
	return c.FrontendOrigin
}

// getEnv returns the trimmed value of key or defaultValue when unset.
func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath is getEnv for filesystem paths.
func getEnvPath(key, defaultValue string) string {
	return filepath.Clean(getEnv(key, defaultValue))
}

// getEnvBool treats true, 1 and yes as true.
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(getEnv(key, ""))
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

// getEnvDuration accepts Go durations ("20s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
