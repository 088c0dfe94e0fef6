package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Audit   AuditConfig   `yaml:"audit" mapstructure:"audit"`
	Mock    MockConfig    `yaml:"mock" mapstructure:"mock"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	Host         string        `yaml:"host" mapstructure:"host"`
	ReadTimeout  time.Duration `yaml:"readTimeout" mapstructure:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout" mapstructure:"writeTimeout"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes" mapstructure:"maxBodyBytes"` // Cap on buffered mock request bodies
	TLS          TLSConfig     `yaml:"tls" mapstructure:"tls"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	CertFile     string `yaml:"certFile" mapstructure:"certFile"`
	KeyFile      string `yaml:"keyFile" mapstructure:"keyFile"`
	AutoGenerate bool   `yaml:"autoGenerate" mapstructure:"autoGenerate"` // Self-signed cert when no files are configured
	StorePath    string `yaml:"storePath" mapstructure:"storePath"`       // Empty means storage.path/certs
}

// StorageConfig holds configuration store settings
type StorageConfig struct {
	Type  string `yaml:"type" mapstructure:"type"`   // memory, file, sqlite, postgres
	Path  string `yaml:"path" mapstructure:"path"`   // Directory for file storage, database file for sqlite
	DSN   string `yaml:"dsn" mapstructure:"dsn"`     // Connection string for postgres
	Watch bool   `yaml:"watch" mapstructure:"watch"` // Reload file storage when files change on disk
}

// AuditConfig holds request log settings
type AuditConfig struct {
	Sinks         []string      `yaml:"sinks" mapstructure:"sinks"` // memory, store, redis
	MaxLogs       int           `yaml:"maxLogs" mapstructure:"maxLogs"`
	Retention     time.Duration `yaml:"retention" mapstructure:"retention"`
	PruneSchedule string        `yaml:"pruneSchedule" mapstructure:"pruneSchedule"` // Cron expression
	WriteTimeout  time.Duration `yaml:"writeTimeout" mapstructure:"writeTimeout"`
	Redis         RedisConfig   `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig holds the redis audit sink connection
type RedisConfig struct {
	Address  string `yaml:"address" mapstructure:"address"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Key      string `yaml:"key" mapstructure:"key"` // Key prefix
}

// MockConfig holds mock serving settings
type MockConfig struct {
	PathPrefix string `yaml:"pathPrefix" mapstructure:"pathPrefix"` // Stripped before endpoint lookup
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Storage types
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Audit sink names
const (
	SinkMemory = "memory"
	SinkStore  = "store"
	SinkRedis  = "redis"
)

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			MaxBodyBytes: 10 << 20,
			TLS: TLSConfig{
				AutoGenerate: true,
			},
		},
		Storage: StorageConfig{
			Type: StorageMemory,
			Path: "./data",
		},
		Audit: AuditConfig{
			Sinks:         []string{SinkMemory},
			MaxLogs:       1000,
			Retention:     7 * 24 * time.Hour,
			PruneSchedule: "@hourly",
			WriteTimeout:  5 * time.Second,
			Redis: RedisConfig{
				Address: "localhost:6379",
				Key:     "antbee:logs",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/_api/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the server cannot start with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.maxBodyBytes must be positive")
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageFile, StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for %s storage", c.Storage.Type)
		}
	case StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage type: %q", c.Storage.Type)
	}

	for _, sink := range c.Audit.Sinks {
		switch sink {
		case SinkMemory, SinkRedis:
		case SinkStore:
			if c.Storage.Type != StorageSQLite && c.Storage.Type != StoragePostgres {
				return fmt.Errorf("audit sink %q requires sqlite or postgres storage", sink)
			}
		default:
			return fmt.Errorf("unknown audit sink: %q", sink)
		}
	}
	if c.Audit.MaxLogs < 0 {
		return fmt.Errorf("audit.maxLogs must not be negative")
	}

	if c.Server.TLS.Enabled && !c.Server.TLS.AutoGenerate && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls.certFile and server.tls.keyFile are required when autoGenerate is off")
	}

	return nil
}

// HasSink reports whether the named audit sink is enabled
func (c *Config) HasSink(name string) bool {
	for _, sink := range c.Audit.Sinks {
		if sink == name {
			return true
		}
	}
	return false
}
