// Package config loads deliberation service configuration from environment
// variables, with an optional .env file loaded first via godotenv.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-tunable setting for the service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	LLM      LLMConfig
	Auth     AuthConfig
	Engine   EngineConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           string
	Host           string
	Mode           string // gin.DebugMode / gin.ReleaseMode
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestLogging bool
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConnections int32
	ConnTimeout    time.Duration
	// PoolProfile selects one of database.DefaultPoolOptions,
	// database.HighPerformancePoolOptions, or database.LowLatencyPoolOptions.
	PoolProfile string
}

// LLMConfig configures the external text-generation model client.
type LLMConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	DefaultTimeout    time.Duration
	MaxRetries        int
	RequestsPerSecond int
}

// AuthConfig configures credential hashing.
type AuthConfig struct {
	// Salt is mixed into every credential token before hashing. Rotating it
	// invalidates every outstanding token.
	Salt string
}

// EngineConfig configures Mediation Engine defaults (spec.md §6 Configuration).
type EngineConfig struct {
	NumCandidates    int
	DefaultNumRounds int
	RetryBudget      int
	VerboseLogging   bool
}

// Load reads configuration from the environment, applying the defaults named
// in spec.md §6.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Mode:           getEnv("GIN_MODE", "release"),
			ReadTimeout:    getDurationEnv("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 30*time.Second),
			RequestLogging: getBoolEnv("REQUEST_LOGGING", true),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "deliberation"),
			Password:       getEnv("DB_PASSWORD", "secret"),
			Name:           getEnv("DB_NAME", "deliberation_db"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConnections: int32(getIntEnv("DB_MAX_CONNECTIONS", 20)),
			ConnTimeout:    getDurationEnv("DB_CONN_TIMEOUT", 10*time.Second),
			PoolProfile:    getEnv("DB_POOL_PROFILE", "default"),
		},
		LLM: LLMConfig{
			BaseURL:           getEnv("LLM_BASE_URL", "http://localhost:11434"),
			APIKey:            getEnv("LLM_API_KEY", ""),
			Model:             getEnv("LLM_MODEL", "mock"),
			DefaultTimeout:    getDurationEnv("LLM_TIMEOUT", 60*time.Second),
			MaxRetries:        getIntEnv("LLM_MAX_RETRIES", 3),
			RequestsPerSecond: getIntEnv("LLM_REQUESTS_PER_SECOND", 10),
		},
		Auth: AuthConfig{
			Salt: getEnv("CREDENTIAL_SALT", ""),
		},
		Engine: EngineConfig{
			NumCandidates:    getIntEnv("ENGINE_NUM_CANDIDATES", 16),
			DefaultNumRounds: getIntEnv("ENGINE_DEFAULT_CRITIQUE_ROUNDS", 1),
			RetryBudget:      getIntEnv("ENGINE_RETRY_BUDGET", 3),
			VerboseLogging:   getBoolEnv("VERBOSE_LOGGING", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
