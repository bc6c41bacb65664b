package config

import (
	"fmt"
	"os"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Broker   BrokerConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type StoreConfig struct {
	// Backend selects the storage backend: "memory" (default) or "postgres".
	Backend string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type BrokerConfig struct {
	// URL enables AMQP notification mirroring when non-empty.
	URL      string
	Exchange string
}

func Load() (*Config, error) {
	var missing []string

	require := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}
	getWithDefault := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	config := &Config{
		Server: ServerConfig{
			Host: getWithDefault("SERVER_HOST", "0.0.0.0"),
			Port: getWithDefault("SERVER_PORT", "8080"),
		},
		Store: StoreConfig{
			Backend: getWithDefault("STORE_BACKEND", BackendMemory),
		},
		Broker: BrokerConfig{
			URL:      os.Getenv("RABBITMQ_URL"),
			Exchange: getWithDefault("RABBITMQ_EXCHANGE", "eventbus.notifications"),
		},
	}

	if config.Store.Backend != BackendMemory && config.Store.Backend != BackendPostgres {
		return nil, fmt.Errorf("unknown store backend: %s", config.Store.Backend)
	}

	// The database section is only required for the postgres backend.
	if config.Store.Backend == BackendPostgres {
		config.Database = DatabaseConfig{
			Host:     require("DB_HOST"),
			Port:     require("DB_PORT"),
			User:     require("DB_USER"),
			Password: require("DB_PASSWORD"),
			DBName:   require("DB_NAME"),
			SSLMode:  require("DB_SSLMODE"),
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return config, nil
}

// ConnectionString returns a DSN string for GORM.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

// MigrationURL returns a postgres:// URL for golang-migrate.
func (c *DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}
