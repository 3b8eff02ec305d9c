// Package config provides configuration loading and management for ldgraph.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ldgraph configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Access   AccessConfig   `yaml:"access"`
	Tracking TrackingConfig `yaml:"tracking"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	// Host is the listen address (default: 0.0.0.0)
	Host string `yaml:"host"`
	// Port is the listen port (default: 3007)
	Port int `yaml:"port"`
	// PublicHost is the host documents identify themselves by; falls
	// back to the request Host header when empty
	PublicHost string `yaml:"public_host"`
	// Tenant is the tenant documents are stored under when the request
	// carries no CE-Tenant header
	Tenant string `yaml:"tenant"`
	// ShutdownTimeout bounds graceful shutdown on SIGTERM
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// CheckAccess enables per-resource permission enforcement
	CheckAccess bool `yaml:"check_access"`
}

// MongoConfig configures the document store connection
type MongoConfig struct {
	// URI is the MongoDB connection string
	URI string `yaml:"uri"`
	// Database is the database holding all tenant collections
	Database string `yaml:"database"`
}

// AccessConfig configures the permissions collaborator
type AccessConfig struct {
	// BaseURL is the permissions service endpoint (empty = owner-only access)
	BaseURL string `yaml:"base_url"`
	// UnreachablePolicy selects behavior when the permissions service
	// cannot be reached: "deny" treats the caller as having no rights,
	// "fail" surfaces the error to the client
	UnreachablePolicy string `yaml:"unreachable_policy"`
	// Timeout bounds each permissions lookup
	Timeout time.Duration `yaml:"timeout"`
}

// TrackingConfig configures change-event publication
type TrackingConfig struct {
	// Enabled turns on publication of change entries
	Enabled bool `yaml:"enabled"`
	// URL is the NATS server URL
	URL string `yaml:"url"`
	// SubjectPrefix is prepended to the tenant and namespace when
	// forming the publication subject
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3007,
			Tenant:          "main",
			ShutdownTimeout: 10 * time.Second,
			CheckAccess:     true,
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "ldgraph",
		},
		Access: AccessConfig{
			BaseURL:           "",
			UnreachablePolicy: "deny",
			Timeout:           5 * time.Second,
		},
		Tracking: TrackingConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "ldgraph.changes",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.Tenant == "" {
		return fmt.Errorf("server.tenant is required")
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("mongo.database is required")
	}
	switch c.Access.UnreachablePolicy {
	case "deny", "fail":
	default:
		return fmt.Errorf("access.unreachable_policy must be \"deny\" or \"fail\"")
	}
	if c.Tracking.Enabled && c.Tracking.URL == "" {
		return fmt.Errorf("tracking.url is required when tracking is enabled")
	}
	return nil
}

// ListenAddr returns the address the HTTP server binds to
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.PublicHost != "" {
		c.Server.PublicHost = other.Server.PublicHost
	}
	if other.Server.Tenant != "" {
		c.Server.Tenant = other.Server.Tenant
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}
	c.Server.CheckAccess = other.Server.CheckAccess

	// Mongo
	if other.Mongo.URI != "" {
		c.Mongo.URI = other.Mongo.URI
	}
	if other.Mongo.Database != "" {
		c.Mongo.Database = other.Mongo.Database
	}

	// Access
	if other.Access.BaseURL != "" {
		c.Access.BaseURL = other.Access.BaseURL
	}
	if other.Access.UnreachablePolicy != "" {
		c.Access.UnreachablePolicy = other.Access.UnreachablePolicy
	}
	if other.Access.Timeout != 0 {
		c.Access.Timeout = other.Access.Timeout
	}

	// Tracking
	c.Tracking.Enabled = other.Tracking.Enabled
	if other.Tracking.URL != "" {
		c.Tracking.URL = other.Tracking.URL
	}
	if other.Tracking.SubjectPrefix != "" {
		c.Tracking.SubjectPrefix = other.Tracking.SubjectPrefix
	}
}
