package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfigFile names an optional TOML file layered under the environment
const EnvConfigFile = "LIBRARY_CONFIG"

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
	Log       LogConfig       `toml:"log"`
	Bootstrap BootstrapConfig `toml:"bootstrap"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port int    `toml:"port"`
	Mode string `toml:"mode"` // gin mode: debug, release or test
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Driver       string `toml:"driver"` // "postgres" (lib/pq) or "pgx"
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	DBName       string `toml:"dbname"`
	SSLMode      string `toml:"sslmode"`
	TestDBName   string `toml:"test_dbname"` // Separate database for testing
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// StoreConfig selects the repository backend
type StoreConfig struct {
	Backend string `toml:"backend"` // "postgres" or "memory"
}

// NotifyConfig holds the notification sink configuration
type NotifyConfig struct {
	WebhookURL string        `toml:"webhook_url"`
	Async      bool          `toml:"async"`
	QueueSize  int           `toml:"queue_size"`
	Timeout    time.Duration `toml:"timeout"`
}

// LogConfig holds the logger configuration
type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// BootstrapConfig names CSV files loaded into the store at startup. Empty
// paths are skipped.
type BootstrapConfig struct {
	BooksCSV string `toml:"books_csv"`
	UsersCSV string `toml:"users_csv"`
}

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

// LoadConfig loads the configuration from environment variables. When
// LIBRARY_CONFIG points at a TOML file it is applied first and the
// environment still wins.
func LoadConfig() (*Config, error) {
	if path := getEnv(EnvConfigFile, ""); path != "" {
		return LoadConfigFile(path)
	}
	cfg := defaultConfig()
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile decodes path over the defaults, then applies environment overrides
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends, drivers and gin modes
func (c *Config) Validate() error {
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("unknown server mode %q", c.Server.Mode)
	}
	switch c.Store.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Database.Driver {
	case DriverPQ, DriverPGX:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Mode: "release",
		},
		Database: DatabaseConfig{
			Driver:       DriverPQ,
			Host:         "localhost",
			Port:         5432,
			Username:     "postgres",
			Password:     "password",
			DBName:       "library",
			SSLMode:      "disable",
			TestDBName:   "library_test",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Store: StoreConfig{
			Backend: BackendPostgres,
		},
		Notify: NotifyConfig{
			Async:     true,
			QueueSize: 256,
			Timeout:   5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvAsInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Mode = getEnv("GIN_MODE", cfg.Server.Mode)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.Username = getEnv("DB_USERNAME", cfg.Database.Username)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.TestDBName = getEnv("TEST_DB_NAME", cfg.Database.TestDBName)
	cfg.Database.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)

	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.Async = getEnvAsBool("NOTIFY_ASYNC", cfg.Notify.Async)
	cfg.Notify.QueueSize = getEnvAsInt("NOTIFY_QUEUE_SIZE", cfg.Notify.QueueSize)
	cfg.Notify.Timeout = getEnvAsDuration("NOTIFY_TIMEOUT", cfg.Notify.Timeout)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Pretty = getEnvAsBool("LOG_PRETTY", cfg.Log.Pretty)

	cfg.Bootstrap.BooksCSV = getEnv("BOOKS_CSV", cfg.Bootstrap.BooksCSV)
	cfg.Bootstrap.UsersCSV = getEnv("USERS_CSV", cfg.Bootstrap.UsersCSV)
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
