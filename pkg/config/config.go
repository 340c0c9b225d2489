// Package config loads process configuration from the environment with viper.
// Environment variables win over an optional config.env file in the working directory.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config groups everything the server, worker and ledgerctl need.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Mirror MirrorConfig
	HTTP   HTTPConfig
	JWT    JWTConfig
}

// AppConfig holds general settings.
type AppConfig struct {
	Env      string // development, staging, production
	LogLevel string
}

// IsDevelopment reports whether pretty logging should be used.
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// DBConfig describes the primary ledger database.
type DBConfig struct {
	URL              string
	MaxConns         int
	StatementTimeout time.Duration
}

// MirrorConfig describes the secondary store and the replication pool.
type MirrorConfig struct {
	Enabled         bool
	URL             string
	Workers         int
	QueueSize       int
	Timeout         time.Duration
	DiagnosticsSize int
	RepairInterval  time.Duration
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig holds the shared secret used to verify bearer tokens.
type JWTConfig struct {
	Secret string
}

// Load reads configuration from the environment and optional config.env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // optional

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		DB: DBConfig{
			URL:              v.GetString("DATABASE_URL"),
			MaxConns:         v.GetInt("DB_MAX_CONNS"),
			StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
		},
		Mirror: MirrorConfig{
			Enabled:         v.GetBool("MIRROR_ENABLED"),
			URL:             v.GetString("MIRROR_DATABASE_URL"),
			Workers:         v.GetInt("MIRROR_WORKERS"),
			QueueSize:       v.GetInt("MIRROR_QUEUE_SIZE"),
			Timeout:         v.GetDuration("MIRROR_TIMEOUT"),
			DiagnosticsSize: v.GetInt("MIRROR_DIAGNOSTICS_SIZE"),
			RepairInterval:  v.GetDuration("REPAIR_INTERVAL"),
		},
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Mirror.Enabled && c.Mirror.URL == "" {
		return fmt.Errorf("MIRROR_DATABASE_URL is required when MIRROR_ENABLED is set")
	}
	if c.Mirror.Workers <= 0 {
		return fmt.Errorf("MIRROR_WORKERS must be positive, got %d", c.Mirror.Workers)
	}
	if c.Mirror.QueueSize <= 0 {
		return fmt.Errorf("MIRROR_QUEUE_SIZE must be positive, got %d", c.Mirror.QueueSize)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_STATEMENT_TIMEOUT", 30*time.Second)
	v.SetDefault("MIRROR_ENABLED", false)
	v.SetDefault("MIRROR_WORKERS", 4)
	v.SetDefault("MIRROR_QUEUE_SIZE", 1024)
	v.SetDefault("MIRROR_TIMEOUT", 5*time.Second)
	v.SetDefault("MIRROR_DIAGNOSTICS_SIZE", 256)
	v.SetDefault("REPAIR_INTERVAL", time.Hour)
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
}
