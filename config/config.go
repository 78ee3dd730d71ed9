package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete gateway configuration
type Config struct {
	Server        ServerConfig
	Ledger        LedgerConfig
	Routing       RoutingConfig
	Providers     ProvidersConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LedgerConfig holds the usage ledger configuration
type LedgerConfig struct {
	// Path is the SQLite file holding per-identity call timestamps and
	// accumulated cost.
	Path string
}

// RoutingConfig holds routing engine configuration
type RoutingConfig struct {
	// TablesPath is an optional TOML file with the identity registry and
	// category preference lists. Empty means the compiled-in tables.
	TablesPath string

	// ExecTimeout bounds each backend call.
	ExecTimeout time.Duration

	// CacheSize bounds the response cache entry count.
	CacheSize int
}

// ProvidersConfig holds per-provider endpoint and credential configuration
type ProvidersConfig struct {
	Local   LocalConfig
	OpenAI  HostedConfig
	Mistral HostedConfig
	Private HostedConfig
}

// LocalConfig holds the local open-weight runtime configuration. The
// local provider needs no credential.
type LocalConfig struct {
	BaseURL string
}

// HostedConfig holds one hosted tier's configuration. APIKeys rotate
// round-robin across all models of the provider.
type HostedConfig struct {
	BaseURL string
	APIKeys []string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables.
// A .env file is honored in development when present.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Ledger: LedgerConfig{
			Path: getEnv("LEDGER_PATH", "gateway-usage.db"),
		},
		Routing: RoutingConfig{
			TablesPath:  getEnv("ROUTING_TABLES_PATH", ""),
			ExecTimeout: getEnvAsDuration("EXEC_TIMEOUT", 30*time.Second),
			CacheSize:   getEnvAsInt("CACHE_SIZE", 4096),
		},
		Providers: ProvidersConfig{
			Local: LocalConfig{
				BaseURL: getEnv("LOCAL_BASE_URL", "http://127.0.0.1:11434"),
			},
			OpenAI: HostedConfig{
				BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				APIKeys: getEnvAsList("OPENAI_API_KEYS"),
			},
			Mistral: HostedConfig{
				BaseURL: getEnv("MISTRAL_BASE_URL", "https://api.mistral.ai/v1"),
				APIKeys: getEnvAsList("MISTRAL_API_KEYS"),
			},
			Private: HostedConfig{
				BaseURL: getEnv("PRIVATE_POOL_BASE_URL", ""),
				APIKeys: getEnvAsList("PRIVATE_POOL_API_KEYS"),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger path is required")
	}
	if c.Routing.ExecTimeout <= 0 {
		return fmt.Errorf("exec timeout must be positive")
	}
	if c.Routing.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	// The private pool is the last-resort tier; in production it must be
	// reachable.
	if c.IsProduction() {
		if c.Providers.Private.BaseURL == "" {
			return fmt.Errorf("private pool base URL is required in production")
		}
		if len(c.Providers.Private.APIKeys) == 0 {
			return fmt.Errorf("private pool credentials are required in production")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Credentials returns the per-provider credential lists for the key
// rotator. Providers without keys are absent.
func (c *ProvidersConfig) Credentials() map[string][]string {
	creds := make(map[string][]string)
	if len(c.OpenAI.APIKeys) > 0 {
		creds["openai"] = c.OpenAI.APIKeys
	}
	if len(c.Mistral.APIKeys) > 0 {
		creds["mistral"] = c.Mistral.APIKeys
	}
	if len(c.Private.APIKeys) > 0 {
		creds["private"] = c.Private.APIKeys
	}
	return creds
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList parses a comma-separated environment variable, dropping
// empty entries.
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
