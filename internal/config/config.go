package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/jensholdgaard/art-auction/internal/auction"
)

// Config represents the application configuration.
type Config struct {
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	Auction        AuctionConfig        `yaml:"auction"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver      string `yaml:"driver" env:"AUCTION_DATABASE_DRIVER"` // "postgres", "sqlite" or "memory"
	Host        string `yaml:"host" env:"AUCTION_DATABASE_HOST"`
	Port        int    `yaml:"port" env:"AUCTION_DATABASE_PORT"`
	User        string `yaml:"user" env:"AUCTION_DATABASE_USER"`
	Password    string `yaml:"password" env:"AUCTION_DATABASE_PASSWORD"`
	DBName      string `yaml:"dbname" env:"AUCTION_DATABASE_NAME"`
	SSLMode     string `yaml:"sslmode" env:"AUCTION_DATABASE_SSLMODE"`
	Path        string `yaml:"path" env:"AUCTION_DATABASE_PATH"` // sqlite file
	AutoMigrate bool   `yaml:"auto_migrate" env:"AUCTION_DATABASE_AUTO_MIGRATE"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"AUCTION_SERVER_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"AUCTION_SERVER_SHUTDOWN_TIMEOUT"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure       bool   `yaml:"insecure"`
	// LogLevel applies to the local stderr logger used when no OTLP
	// endpoint is configured.
	LogLevel string `yaml:"log_level" env:"AUCTION_LOG_LEVEL"`
}

// Level parses LogLevel; an empty value means info.
func (t TelemetryConfig) Level() (slog.Level, error) {
	var l slog.Level
	if t.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(t.LogLevel)); err != nil {
		return 0, err
	}
	return l, nil
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled" env:"AUCTION_LEADER_ELECTION_ENABLED"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace" env:"POD_NAMESPACE"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// AuctionConfig holds bidding and sweeping rules.
type AuctionConfig struct {
	// MinIncrement is a decimal string so amounts never pass through float64.
	MinIncrement  string        `yaml:"min_increment" env:"AUCTION_MIN_INCREMENT"`
	IncrementMode string        `yaml:"increment_mode" env:"AUCTION_INCREMENT_MODE"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"AUCTION_SWEEP_INTERVAL"`
}

// Policy converts the configured increment into an auction.IncrementPolicy.
func (a AuctionConfig) Policy() (auction.IncrementPolicy, error) {
	return auction.NewIncrementPolicy(a.IncrementMode, a.MinIncrement)
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:      "postgres",
			Host:        "localhost",
			Port:        5432,
			SSLMode:     "disable",
			Path:        "auction.db",
			AutoMigrate: true,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctiond",
			ServiceVersion: "0.1.0",
			LogLevel:       "info",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctiond-sweeper",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		Auction: AuctionConfig{
			MinIncrement:  "10",
			IncrementMode: string(auction.IncrementAbsolute),
			SweepInterval: 30 * time.Second,
		},
	}
}

// Load reads a YAML configuration file from the given path and applies
// environment overrides on top of it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"postgres\", \"sqlite\" or \"memory\"", c.Database.Driver)
	}
	if _, err := c.Auction.Policy(); err != nil {
		return fmt.Errorf("auction increment: %w", err)
	}
	if _, err := c.Telemetry.Level(); err != nil {
		return fmt.Errorf("telemetry.log_level: %w", err)
	}
	if c.Auction.SweepInterval <= 0 {
		return fmt.Errorf("auction.sweep_interval must be positive, got %s", c.Auction.SweepInterval)
	}
	return nil
}
