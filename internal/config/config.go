package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Dispatch DispatchConfig  `yaml:"dispatch"`
	Serial   SerialConfig    `yaml:"serial"`
	Spooler  SpoolerConfig   `yaml:"spooler"`
	Proxy    ProxyConfig     `yaml:"proxy"`
	Auth     AuthConfig      `yaml:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Logging  LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type DispatchConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MinTimeout     time.Duration `yaml:"min_timeout"`
	DefaultPort    int           `yaml:"default_port"`
	WorkerCount    int           `yaml:"worker_count"`
	QueueSize      int           `yaml:"queue_size"`
}

type SerialConfig struct {
	Enabled      bool     `yaml:"enabled"`
	PortPrefixes []string `yaml:"port_prefixes"`
}

type SpoolerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DocumentName string `yaml:"document_name"`
}

type ProxyConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	Enabled       bool          `yaml:"enabled"`
	PasswordHash  string        `yaml:"password_hash"`
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

type WebhookConfig struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/labelgate.db",
		},
		Dispatch: DispatchConfig{
			DefaultTimeout: 3 * time.Second,
			MinTimeout:     250 * time.Millisecond,
			DefaultPort:    9100,
			WorkerCount:    2,
			QueueSize:      64,
		},
		Serial: SerialConfig{
			Enabled:      true,
			PortPrefixes: []string{"COM"},
		},
		Spooler: SpoolerConfig{
			Enabled:      true,
			DocumentName: "TSPL label",
		},
		Proxy: ProxyConfig{
			URL:     "http://127.0.0.1:9001",
			Timeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:       false,
			TokenDuration: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaults()
}

// Load reads a YAML file over the defaults and applies LABELGATE_* environment
// overrides. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFromEnv() (*Config, error) {
	cfg := defaults()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("LABELGATE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LABELGATE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	if v := os.Getenv("LABELGATE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("LABELGATE_PROXY_URL"); v != "" {
		cfg.Proxy.URL = v
	}

	if v := os.Getenv("LABELGATE_PROXY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LABELGATE_PROXY_TIMEOUT: %w", err)
		}
		cfg.Proxy.Timeout = d
	}

	if v := os.Getenv("LABELGATE_SERIAL_PREFIXES"); v != "" {
		cfg.Serial.PortPrefixes = strings.Split(v, ",")
	}

	if v := os.Getenv("LABELGATE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	if v := os.Getenv("LABELGATE_PASSWORD_HASH"); v != "" {
		cfg.Auth.PasswordHash = v
		cfg.Auth.Enabled = true
	}

	if v := os.Getenv("LABELGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("LABELGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("LABELGATE_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Dispatch.MinTimeout < 250*time.Millisecond {
		return fmt.Errorf("dispatch min timeout must be at least 250ms, got %s", c.Dispatch.MinTimeout)
	}

	if c.Dispatch.DefaultTimeout < c.Dispatch.MinTimeout {
		return fmt.Errorf("dispatch default timeout must be at least %s", c.Dispatch.MinTimeout)
	}

	if c.Dispatch.DefaultPort < 1 || c.Dispatch.DefaultPort > 65535 {
		return fmt.Errorf("dispatch default port must be between 1 and 65535, got %d", c.Dispatch.DefaultPort)
	}

	if c.Dispatch.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	if c.Dispatch.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1")
	}

	if c.Serial.Enabled && len(c.Serial.PortPrefixes) == 0 {
		return fmt.Errorf("serial port prefixes are required when serial is enabled")
	}

	if c.Proxy.URL == "" {
		return fmt.Errorf("proxy url is required")
	}

	if c.Proxy.Timeout <= 0 {
		return fmt.Errorf("proxy timeout must be positive")
	}

	if c.Auth.Enabled {
		if c.Auth.PasswordHash == "" {
			return fmt.Errorf("auth password hash is required when auth is enabled")
		}
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth jwt secret is required when auth is enabled")
		}
		if c.Auth.TokenDuration <= 0 {
			return fmt.Errorf("auth token duration must be positive")
		}
	}

	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}
