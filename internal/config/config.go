// Package config loads server configuration from flags, environment variables and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendBadger    = "badger"
	BackendSQLite    = "sqlite"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
)

// Identity providers.
const (
	IdentityFirebase = "firebase"
	IdentityDev      = "dev"
)

// Profile lookup strategies.
const (
	LookupScan  = "scan"
	LookupIndex = "index"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Storage  StorageConfig
	Identity IdentityConfig
	Server   ServerConfig
	Auth     AuthConfig
	Session  SessionConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StorageConfig selects and configures the remote document store.
type StorageConfig struct {
	Backend  string
	DataPath string // badger directory and sqlite file live here
	Lookup   string // how e-mail addresses are resolved to profiles

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	FirestoreProjectID string
	CredentialsFile    string // GOOGLE_APPLICATION_CREDENTIALS, optional
}

// IdentityConfig selects the identity provider.
type IdentityConfig struct {
	Provider          string
	FirebaseProjectID string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	CORSAllowedOrigins []string
}

// AuthConfig holds access token configuration.
type AuthConfig struct {
	// PASETO v4 symmetric key, set by auth.LoadOrGenerateKey at startup.
	AccessTokenKey      []byte
	AccessTokenDuration time.Duration
}

// SessionConfig controls the lifetime of client sessions.
type SessionConfig struct {
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(flag.CommandLine, os.Args[1:])
}

// LoadConfigFrom is LoadConfig over an explicit flag set and argument list.
func LoadConfigFrom(fs *flag.FlagSet, args []string) (*Config, error) {
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Directory for embedded store data")
	backend := fs.String("store", "", "Store backend (badger, sqlite, redis, firestore)")
	lookup := fs.String("profile-lookup", "", "Profile lookup strategy (scan, index)")
	redisAddr := fs.String("redis-addr", "", "Redis address (default: localhost:6379)")
	projectID := fs.String("firestore-project", "", "Google Cloud project id")
	identity := fs.String("identity", "", "Identity provider (firebase, dev)")

	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 0, streams stay open)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma separated allowed CORS origins")

	accessTokenDuration := fs.String("access-token-duration", "", "Access token lifetime (e.g., 12h)")
	sessionIdle := fs.String("session-idle-timeout", "", "Idle time before a session is closed (default: 2h)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Missing .env files are fine. Existing environment variables are never overwritten.
	_ = godotenv.Load(*envFile)

	environment := getConfigValue(*env, "ENV", "development")
	defaultIdentity := IdentityFirebase
	if environment == "development" {
		defaultIdentity = IdentityDev
	}

	cfg := &Config{
		App: AppConfig{
			Environment: environment,
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			Backend:            strings.ToLower(getConfigValue(*backend, "STORE_BACKEND", BackendBadger)),
			DataPath:           getConfigValue(*dataPath, "DATA_PATH", ""),
			Lookup:             strings.ToLower(getConfigValue(*lookup, "PROFILE_LOOKUP", LookupScan)),
			RedisAddr:          getConfigValue(*redisAddr, "REDIS_ADDR", "localhost:6379"),
			RedisPassword:      getConfigValue("", "REDIS_PASSWORD", ""),
			RedisDB:            getIntConfigValue("", "REDIS_DB", 0),
			RedisPrefix:        getConfigValue("", "REDIS_PREFIX", "darkscore"),
			FirestoreProjectID: getConfigValue(*projectID, "FIRESTORE_PROJECT_ID", os.Getenv("GOOGLE_CLOUD_PROJECT")),
			CredentialsFile:    getConfigValue("", "GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Identity: IdentityConfig{
			Provider: strings.ToLower(getConfigValue(*identity, "IDENTITY_PROVIDER", defaultIdentity)),
		},
		Server: ServerConfig{
			Port:               getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSAllowedOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ALLOWED_ORIGINS", "*")),
		},
	}
	cfg.Identity.FirebaseProjectID = getConfigValue("", "FIREBASE_PROJECT_ID", cfg.Storage.FirestoreProjectID)

	durations := []struct {
		flagValue, envKey, def string
		dst                    *time.Duration
	}{
		{*accessTokenDuration, "ACCESS_TOKEN_DURATION", "12h", &cfg.Auth.AccessTokenDuration},
		{*readTimeout, "SERVER_READ_TIMEOUT", "15s", &cfg.Server.ReadTimeout},
		{*writeTimeout, "SERVER_WRITE_TIMEOUT", "0s", &cfg.Server.WriteTimeout},
		{*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s", &cfg.Server.IdleTimeout},
		{*sessionIdle, "SESSION_IDLE_TIMEOUT", "2h", &cfg.Session.IdleTimeout},
		{"", "SESSION_CLEANUP_INTERVAL", "5m", &cfg.Session.CleanupInterval},
	}
	for _, d := range durations {
		value := getConfigValue(d.flagValue, d.envKey, d.def)
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, value, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Storage.Backend {
	case BackendBadger, BackendSQLite:
		if c.Storage.DataPath == "" {
			return errors.New("data path cannot be empty for embedded stores")
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis backend")
		}
	case BackendFirestore:
		if c.Storage.FirestoreProjectID == "" {
			return errors.New("FIRESTORE_PROJECT_ID is required for the firestore backend")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (must be badger, sqlite, redis, or firestore)", c.Storage.Backend)
	}

	if c.Storage.Lookup != LookupScan && c.Storage.Lookup != LookupIndex {
		return fmt.Errorf("invalid profile lookup: %s (must be scan or index)", c.Storage.Lookup)
	}

	switch c.Identity.Provider {
	case IdentityFirebase:
		if c.Identity.FirebaseProjectID == "" {
			return errors.New("FIREBASE_PROJECT_ID is required for the firebase identity provider")
		}
	case IdentityDev:
		if c.App.Environment == "production" {
			return errors.New("the dev identity provider cannot be used in production")
		}
	default:
		return fmt.Errorf("invalid identity provider: %s (must be firebase or dev)", c.Identity.Provider)
	}

	if c.Auth.AccessTokenDuration <= 0 {
		return errors.New("access token duration must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath defaults the data path to ~/DarkScore/data.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "DarkScore", "data")

	expanded, err := expandPath(c.Storage.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Storage.DataPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
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
