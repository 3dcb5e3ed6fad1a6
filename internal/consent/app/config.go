package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseFile    string // Optional: path to SQLite database file (default: ./consent.db)
	ProfileFile     string // Optional: ASPSP profile YAML; built-in defaults when empty
	BankFixtureFile string // Required: accounts, PSUs and corporates served by the fixture bank
	TppKeysDir      string // Required: directory of <kid>.pem Ed25519 public keys
	TokenIssuer     string // Optional: expected "iss" of bearer tokens (default: tpp-registry)
	RedirectKeyFile string // Optional: key for encrypted redirect ids; random per start when empty
	ActionLogBuffer int    // Optional: async action log queue size (default: 1024)
	GraphURI        string // Optional: neo4j URI of the audit graph; disabled when empty
	GraphDatabase   string // Optional: neo4j database (default: neo4j)
	GraphUsername   string // Optional: neo4j user
	GraphPassword   string // Optional: neo4j password
	GraphMaxConns   int    // Optional: neo4j pool size (default: 10)
	Env             string // Environment (dev, staging, prod) (default: dev)
	LogLevel        string // Log level (debug, info, warn, error) (default: info)
	LogFormat       string // Log format (json, text) (default: json)
	Port            int    // HTTP server port (default: 8080)

	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 5m)
}

func LoadConfig() Config {
	return Config{
		DatabaseFile:         getEnvOrDefault("CONSENT_DATABASE_FILE", "consent.db"),
		ProfileFile:          os.Getenv("CONSENT_PROFILE_FILE"),
		BankFixtureFile:      getEnvOrDefault("CONSENT_BANK_FIXTURE_FILE", "fixture.yaml"),
		TppKeysDir:           getEnvOrDefault("CONSENT_TPP_KEYS_DIR", "keys"),
		TokenIssuer:          getEnvOrDefault("CONSENT_TOKEN_ISSUER", "tpp-registry"),
		RedirectKeyFile:      os.Getenv("CONSENT_REDIRECT_KEY_FILE"),
		ActionLogBuffer:      getEnvIntOrDefault("CONSENT_ACTION_LOG_BUFFER", 1024),
		GraphURI:             os.Getenv("GRAPH_URI"),
		GraphDatabase:        getEnvOrDefault("GRAPH_DATABASE", "neo4j"),
		GraphUsername:        os.Getenv("GRAPH_USERNAME"),
		GraphPassword:        os.Getenv("GRAPH_PASSWORD"),
		GraphMaxConns:        getEnvIntOrDefault("GRAPH_MAX_CONNECTIONS", 10),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 5*time.Minute),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// "1h", "30m", "90s"
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
